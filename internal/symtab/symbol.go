// Package symtab implements spec.md §3 "Symbol"/"Global"/"SymbolRef" and
// the §4.2 resolver pipeline: deciding, across every input, which
// definition of each externally-visible name wins.
package symtab

// Binding is a symbol's linkage, per spec.md §3.
type Binding uint8

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
)

// Kind records whether a symbol is defined, undefined, tentative
// (COMMON), absolute, indirect, or a stab.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindDefined
	KindTentative
	KindAbsolute
	KindIndirect
	KindStab
)

// Visibility narrows a defined symbol's reach. PrivateExtern mirrors
// Mach-O's "private extern" and ELF's STV_HIDDEN: the symbol is external
// for relocation purposes inside this link but must not be re-exported.
type Visibility uint8

const (
	VisDefault Visibility = iota
	VisHidden
	VisPrivateExtern
)

// Symbol is one entry of a per-input symbol table (spec.md §3). It is
// addressed by the pair (input_id, sym_index); atoms and relocations
// never hold a *Symbol directly, only a SymbolRef.
type Symbol struct {
	Name         string
	Value        uint64 // offset within Section, or size for a tentative def
	Size         uint64
	SectionIndex int // index into the owning Input's section list, -1 if undefined/absolute
	Binding      Binding
	Kind         Kind
	Visibility   Visibility
	Align        uint8 // log2 alignment, meaningful only for KindTentative
	Type         uint8 // raw format-specific type byte, carried through to output symtabs
}

func (s *Symbol) strong() bool {
	return s.Kind == KindDefined && s.Binding != BindWeak && s.Visibility != VisPrivateExtern
}

func (s *Symbol) tentative() bool { return s.Kind == KindTentative }
func (s *Symbol) undefined() bool { return s.Kind == KindUndefined }
func (s *Symbol) weak() bool      { return s.Binding == BindWeak && s.Kind == KindDefined }

// SymbolRef is the opaque (input_or_zero, sym_index) pair from spec.md §3:
// the only way atoms and relocations refer to symbols. InputID 0 means a
// synthesized local symbol (attached to a generated atom); InputID
// GlobalSentinel means SymIndex is a Table index rather than a per-input
// one (see GlobalSymbolRef); any other value is input_id+1, so InputID 1
// refers to Inputs[0].
//
// The Global sentinel is how "each input keeps a side table
// local_sym_index -> global_index for quick remapping" (spec.md §3) is
// realized here: rather than a second reference type, an
// externally-visible symbol is referred to by its Global table index
// wrapped in the same SymbolRef shape every relocation and atom already
// uses, so GOT/stub/thunk dedup (keyed by SymbolRef) naturally collapses
// every input's reference to the same external name onto one slot.
type SymbolRef struct {
	InputID  uint32
	SymIndex uint32
}

// GlobalSentinel is the reserved InputID marking a SymbolRef as a Global
// table index rather than a per-input symbol index.
const GlobalSentinel uint32 = 0xFFFFFFFF

// GlobalSymbolRef returns the canonical ref for Global table index i.
func GlobalSymbolRef(i int) SymbolRef {
	return SymbolRef{InputID: GlobalSentinel, SymIndex: uint32(i)}
}

// IsSynthetic reports whether this ref names a linker-synthesized local
// symbol rather than one read from an input's symbol table.
func (r SymbolRef) IsSynthetic() bool { return r.InputID == 0 }

// IsGlobal reports whether this ref names a Global table entry.
func (r SymbolRef) IsGlobal() bool { return r.InputID == GlobalSentinel }

// InputIndex converts the 1-based InputID to a zero-based Inputs slice
// index. Callers must check IsSynthetic and IsGlobal first.
func (r SymbolRef) InputIndex() int { return int(r.InputID) - 1 }
