// Package atom implements spec.md §3 "Atom" / §4.3 "Atom Builder" and
// §4.4 "Synthetic Atoms": the units input sections are sliced into, and
// the linker-generated atoms (GOT entries, stubs, thunks, tentative
// definitions) that reference them.
package atom

import "github.com/moosichu/zld/internal/symtab"

// Index identifies an Atom inside a Pool. Index 0 is the reserved null
// atom (spec.md §3); atoms are never addressed by pointer so that the
// pool can grow (e.g. during thunk insertion, spec.md §4.5 step 5)
// without invalidating any reference held elsewhere.
type Index uint32

const Null Index = 0

// Relocation is the unified internal relocation form atoms carry
// (spec.md §3). Format-specific relocation types are translated into
// this shape by the atom builder (spec.md §4.3).
type Relocation struct {
	Offset uint32 // offset within the atom's payload
	Length uint8  // 1, 2, 4, or 8
	Target symtab.SymbolRef
	Type   uint16 // architecture-specific relocation type enum
	Addend int64
	PCRel  bool
}

// Kind distinguishes atoms that came from an input section from the
// synthetic kinds the linker itself generates (spec.md §4.4).
type Kind uint8

const (
	KindRegular Kind = iota
	KindGOTEntry
	KindStub
	KindLazyPointer
	KindStubHelper
	KindStubHelperPreamble
	KindTLVPointer
	KindThunk
	KindTentativeBSS
	KindHeaderPad
)

// InnerSymbol is a symbol contained within an atom at a non-zero offset,
// used when an input section was not subdividable (spec.md §4.3: "every
// symbol in it is added as an inner symbol").
type InnerSymbol struct {
	Ref    symtab.SymbolRef
	Offset uint32
}

// Atom is spec.md §3's atomic relocatable unit.
type Atom struct {
	Kind Kind

	// OwningInput is the 1-based input id this atom's bytes came from,
	// or 0 if Kind != KindRegular (a synthetic atom has no owning input).
	OwningInput uint32

	Primary symtab.SymbolRef // always local for a synthetic atom (spec.md §3 invariant)

	Size      uint64
	AlignLog2 uint8

	Payload []byte // nil for zerofill (bss / KindTentativeBSS) atoms
	Zerofill bool

	Relocs []Relocation
	Inner  []InnerSymbol

	// Linked names another synthetic atom this one indirects through: a
	// stub's lazy pointer, a lazy pointer's stub helper, a stub helper's
	// shared preamble, without overloading Relocs with atom-to-atom
	// references that have no SymbolRef of their own.
	Linked Index

	// OutputSection is filled in once the atom has been assigned to an
	// output section (spec.md §4.3 "mapping function").
	OutputSection int

	// Address/FileOffset are undefined until S5, final after (spec.md
	// §3 "Lifecycles").
	Address    uint64
	FileOffset uint64

	prev, next Index // doubly-linked chain within OutputSection, final order set in S5
}

func (a *Atom) Prev() Index { return a.prev }
func (a *Atom) Next() Index { return a.next }

// Pool is the arena Atoms live in (spec.md §9 "Represent atoms as
// indices into a single growable pool").
type Pool struct {
	atoms []Atom
}

func NewPool() *Pool {
	p := &Pool{}
	p.atoms = append(p.atoms, Atom{}) // index 0: null atom
	return p
}

func (p *Pool) New(a Atom) Index {
	a.prev, a.next = Null, Null
	p.atoms = append(p.atoms, a)
	return Index(len(p.atoms) - 1)
}

func (p *Pool) Get(i Index) *Atom { return &p.atoms[i] }

func (p *Pool) Len() int { return len(p.atoms) }

// Targets returns the set of target symbol refs keyed to a given
// synthetic atom kind -> atom index, used to enforce "a GOT entry, stub,
// or thunk for a given target symbol is unique" (spec.md §3 invariant).
type Targets struct {
	byKindTarget map[Kind]map[symtab.SymbolRef]Index
}

func NewTargets() *Targets {
	return &Targets{byKindTarget: make(map[Kind]map[symtab.SymbolRef]Index)}
}

// GetOrCreate returns the existing synthetic atom for (kind, target) if
// one was already created, otherwise calls create and remembers the
// result.
func (t *Targets) GetOrCreate(kind Kind, target symtab.SymbolRef, create func() Index) Index {
	m, ok := t.byKindTarget[kind]
	if !ok {
		m = make(map[symtab.SymbolRef]Index)
		t.byKindTarget[kind] = m
	}
	if idx, ok := m[target]; ok {
		return idx
	}
	idx := create()
	m[target] = idx
	return idx
}

// Lookup reports whether a synthetic atom of the given kind already
// exists for target, without creating one.
func (t *Targets) Lookup(kind Kind, target symtab.SymbolRef) (Index, bool) {
	m, ok := t.byKindTarget[kind]
	if !ok {
		return Null, false
	}
	idx, ok := m[target]
	return idx, ok
}
