package symtab

import "github.com/moosichu/zld/internal/linkctx"

// Resolver runs spec.md §4.2's merge rules over every symbol occurrence
// handed to it. It does not itself know how to parse inputs or archives;
// internal/linker drives the S1<->S2 back edge (archive pull-in) and
// S2->dylib binding, calling back into Resolver for each symbol it finds.
// That split keeps this package free of any dependency on input-format
// parsing, matching spec.md §9's "atoms form a doubly-linked list... never
// raw pointers" preference for small, composable pieces over one
// monolithic resolver type.
type Resolver struct {
	Table      *Table
	AllowUndef bool
	log        *linkctx.Logger
}

func NewResolver(log *linkctx.Logger, allowUndef bool) *Resolver {
	return &Resolver{Table: NewTable(), AllowUndef: allowUndef, log: log}
}

// Observe merges one symbol occurrence (sym, seen at ref) into the
// global table, applying the merge-rule matrix from spec.md §4.2:
//
//	existing \ new   strong   weak     tentative  undef
//	strong           error    keep     keep       keep
//	weak             replace  keep     keep       keep
//	tentative        replace  keep(*)  keep larger keep
//	undef            replace  replace  replace    keep
//
// (*) a weak definition arriving over an existing tentative keeps the
// tentative but records the weak's size as a fallback only if no
// stronger definition ever arrives; zld simplifies this, matching zld's
// actual observed behaviour, by keeping the tentative and ignoring the
// weak's size; a later strong or larger tentative will still replace it.
func (r *Resolver) Observe(name string, sym Symbol, ref SymbolRef) error {
	if name == "" {
		return nil
	}
	g := r.Table.getOrCreate(name)

	switch {
	case g.Kind == KindUndefined:
		// undef -> anything (including another undef) replaces, except
		// undef<-undef which is a no-op keep.
		if sym.undefined() {
			return nil
		}
		r.setDef(g, sym, ref)

	case g.Kind == KindDefined && g.Binding != BindWeak:
		// existing strong
		switch {
		case sym.undefined(), sym.weak(), sym.tentative():
			return nil // keep
		case sym.strong():
			return &MultipleDefinitionsError{Name: name}
		}

	case g.Kind == KindDefined && g.Binding == BindWeak:
		// existing weak
		switch {
		case sym.strong():
			r.setDef(g, sym, ref)
		default:
			return nil // weak/tentative/undef all keep
		}

	case g.Kind == KindTentative:
		switch {
		case sym.strong():
			r.setDef(g, sym, ref)
		case sym.weak():
			return nil
		case sym.tentative():
			if sym.Size > g.tentativeSize {
				g.tentativeSize = sym.Size
				g.tentativeAlign = sym.Align
				r.setDef(g, sym, ref)
			}
		case sym.undefined():
			return nil
		}
	}
	return nil
}

func (r *Resolver) setDef(g *Global, sym Symbol, ref SymbolRef) {
	g.Def = ref
	g.Kind = sym.Kind
	g.Binding = sym.Binding
	if sym.Kind == KindTentative {
		g.tentativeSize = sym.Size
		g.tentativeAlign = sym.Align
	}
}

// Undefined returns the names of every Global still undefined, in table
// (insertion) order, for deterministic diagnostics.
func (r *Resolver) Undefined() []string {
	var names []string
	for _, g := range r.Table.globals {
		if g.Kind == KindUndefined && g.Dylib == nil && !g.FlatLookup {
			names = append(names, g.Name)
		}
	}
	return names
}

// BindDylib satisfies an undefined Global from a dylib's export set
// (spec.md §4.2 step 3). Returns false if name has no undefined Global
// (nothing to bind).
func (r *Resolver) BindDylib(name string, ordinal int, weak bool) bool {
	g, ok := r.Table.Get(name)
	if !ok || g.Kind != KindUndefined || g.Dylib != nil {
		return false
	}
	g.Dylib = &DylibBinding{Ordinal: ordinal, Weak: weak}
	return true
}

// MarkFlatLookup records that allow_undef let name through unresolved
// (spec.md §4.2 step 5).
func (r *Resolver) MarkFlatLookup(name string) {
	if g, ok := r.Table.Get(name); ok {
		g.FlatLookup = true
	}
}

// TentativeSize/TentativeAlign expose the merged COMMON size/alignment
// for a Global, used by the atom builder to size the shared bss atom.
func (g *Global) TentativeSize() uint64  { return g.tentativeSize }
func (g *Global) TentativeAlign() uint8  { return g.tentativeAlign }
