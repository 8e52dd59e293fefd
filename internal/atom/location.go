package atom

import "github.com/moosichu/zld/internal/symtab"

// Loc is where a symbol ends up once atoms have addresses: the atom that
// carries it and the byte offset within that atom (0 for the atom's own
// Primary symbol, non-zero for an InnerSymbol).
type Loc struct {
	Atom   Index
	Offset uint64
}

// LocationIndex maps every symbol this link can place (an atom's
// Primary, every InnerSymbol, and, via the Global sentinel, see
// symtab.GlobalSymbolRef, every resolved Global) to its Loc. Built once
// after S4 so that S5's address pass and S6's relocation writer can
// resolve any SymbolRef in O(1).
type LocationIndex struct {
	byRef map[symtab.SymbolRef]Loc
}

// BuildLocationIndex scans every atom in pool and records its Primary
// and InnerSymbol locations, then adds one entry per resolved Global so
// that symtab.GlobalSymbolRef(i) resolves directly without a second
// lookup through the Global table.
func BuildLocationIndex(pool *Pool, globals *symtab.Table) *LocationIndex {
	li := &LocationIndex{byRef: make(map[symtab.SymbolRef]Loc)}
	for i := 1; i < pool.Len(); i++ {
		idx := Index(i)
		a := pool.Get(idx)
		li.byRef[a.Primary] = Loc{Atom: idx, Offset: 0}
		for _, inner := range a.Inner {
			li.byRef[inner.Ref] = Loc{Atom: idx, Offset: uint64(inner.Offset)}
		}
	}
	for i, g := range globals.Globals() {
		if g.Kind == symtab.KindDefined || g.Kind == symtab.KindTentative {
			if loc, ok := li.byRef[g.Def]; ok {
				li.byRef[symtab.GlobalSymbolRef(i)] = loc
			}
		}
	}
	return li
}

// Resolve returns the Loc for ref, if any symbol this link placed
// carries it. A ref bound to a dylib (undefined, satisfied externally)
// has no Loc and Resolve reports false.
func (li *LocationIndex) Resolve(ref symtab.SymbolRef) (Loc, bool) {
	loc, ok := li.byRef[ref]
	return loc, ok
}

// Address returns the final virtual address for ref given the pool's
// post-layout atom addresses.
func (li *LocationIndex) Address(pool *Pool, ref symtab.SymbolRef) (uint64, bool) {
	loc, ok := li.Resolve(ref)
	if !ok {
		return 0, false
	}
	return pool.Get(loc.Atom).Address + loc.Offset, true
}
