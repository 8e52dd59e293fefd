package symtab

import "fmt"

// DylibBinding records that an undefined Global was satisfied by an
// exported symbol in a Mach-O dylib rather than by another input's
// definition (spec.md §4.2 step 3).
type DylibBinding struct {
	Ordinal int // 1-based LC_LOAD_DYLIB ordinal
	Weak    bool
}

// Global is the resolver's chosen definition for one externally-visible
// name (spec.md §3). Table stores Globals in a flat array in insertion
// order so that iteration is deterministic (spec.md §5).
type Global struct {
	Name string

	// Def is the SymbolRef of the winning definition. Zero value
	// (SymbolRef{}) until resolved; an undefined Global never has a
	// meaningful Def and instead carries Dylib or FlatLookup.
	Def SymbolRef

	Kind    Kind
	Binding Binding

	// AtomIndex is not set by any stage of this linker and stays 0 (the
	// null atom); Def's owning atom is found through atom.LocationIndex.
	AtomIndex uint32

	Dylib      *DylibBinding // set once bound to an exported dylib symbol
	FlatLookup bool          // set when allow_undef let an undefined ref through

	// tentativeSize/tentativeAlign track the widest/most-aligned COMMON
	// definition seen so far, per the merge table in spec.md §4.2.
	tentativeSize  uint64
	tentativeAlign uint8
}

// Table is the resolver's symbol-name -> Global index, plus the flat
// Global array spec.md §3 describes.
type Table struct {
	globals []Global
	byName  map[string]int
}

func NewTable() *Table {
	return &Table{byName: make(map[string]int)}
}

func (t *Table) Globals() []Global { return t.globals }

func (t *Table) Get(name string) (*Global, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.globals[i], true
}

func (t *Table) Index(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

func (t *Table) At(i int) *Global { return &t.globals[i] }

// getOrCreate returns the Global for name, creating an undefined
// placeholder entry if this is the first time name has been seen.
func (t *Table) getOrCreate(name string) *Global {
	if i, ok := t.byName[name]; ok {
		return &t.globals[i]
	}
	t.byName[name] = len(t.globals)
	t.globals = append(t.globals, Global{Name: name, Kind: KindUndefined})
	return &t.globals[len(t.globals)-1]
}

// MultipleDefinitionsError is spec.md §7's MultipleSymbolDefinitions.
type MultipleDefinitionsError struct {
	Name string
}

func (e *MultipleDefinitionsError) Error() string {
	return fmt.Sprintf("multiple definitions of symbol %q", e.Name)
}

// UndefinedSymbolError is spec.md §7's UndefinedSymbolReference.
type UndefinedSymbolError struct {
	Name string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined symbol reference: %q", e.Name)
}
