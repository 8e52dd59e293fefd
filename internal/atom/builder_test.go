package atom

import (
	"testing"

	"github.com/moosichu/zld/internal/symtab"
)

func symRef(idx uint32) symtab.SymbolRef { return symtab.SymbolRef{InputID: 1, SymIndex: idx} }

func TestSplitNonSubdividableKeepsOneAtom(t *testing.T) {
	pool := NewPool()
	sec := SectionSource{
		Data:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Subdividable:  false,
		SectionSymRef: symRef(0),
		Symbols: []SectionSymbol{
			{Ref: symRef(1), Offset: 2, External: true},
			{Ref: symRef(2), Offset: 5, External: false},
		},
	}
	idxs := Split(pool, 1, sec)
	if len(idxs) != 1 {
		t.Fatalf("Split on non-subdividable section returned %d atoms, want 1", len(idxs))
	}
	a := pool.Get(idxs[0])
	if a.Primary != symRef(0) {
		t.Errorf("Primary = %v, want the section symbol %v", a.Primary, symRef(0))
	}
	if a.Size != 8 {
		t.Errorf("Size = %d, want 8", a.Size)
	}
	if len(a.Inner) != 2 {
		t.Errorf("Inner = %v, want both symbols recorded as InnerSymbol", a.Inner)
	}
}

func TestSplitSubdividableNoExternalSymbolsStaysWhole(t *testing.T) {
	pool := NewPool()
	sec := SectionSource{
		Data:          []byte{1, 2, 3, 4},
		Subdividable:  true,
		SectionSymRef: symRef(0),
		Symbols: []SectionSymbol{
			{Ref: symRef(1), Offset: 0, External: false},
		},
	}
	idxs := Split(pool, 1, sec)
	if len(idxs) != 1 {
		t.Fatalf("got %d atoms, want 1", len(idxs))
	}
	if pool.Get(idxs[0]).Primary != symRef(0) {
		t.Errorf("Primary should fall back to the section symbol with no external symbols present")
	}
}

func TestSplitSubdividableByExternalSymbols(t *testing.T) {
	pool := NewPool()
	// 16 bytes; external symbols at 0 and 8, a local static at 4 and 12.
	sec := SectionSource{
		Data:          make([]byte, 16),
		Subdividable:  true,
		AlignLog2:     2,
		SectionSymRef: symRef(0),
		Symbols: []SectionSymbol{
			{Ref: symRef(1), Offset: 0, External: true},
			{Ref: symRef(2), Offset: 4, External: false},
			{Ref: symRef(3), Offset: 8, External: true},
			{Ref: symRef(4), Offset: 12, External: false},
		},
		Relocs: []Relocation{
			{Offset: 2, Length: 4},
			{Offset: 10, Length: 4},
		},
	}

	idxs := Split(pool, 1, sec)
	if len(idxs) != 2 {
		t.Fatalf("Split produced %d atoms, want 2 (one per external symbol)", len(idxs))
	}

	first := pool.Get(idxs[0])
	if first.Primary != symRef(1) || first.Size != 8 {
		t.Errorf("first atom: Primary=%v Size=%d, want Primary=%v Size=8", first.Primary, first.Size, symRef(1))
	}
	if len(first.Inner) != 1 || first.Inner[0].Ref != symRef(2) || first.Inner[0].Offset != 4 {
		t.Errorf("first atom Inner = %+v, want the local static at offset 4", first.Inner)
	}
	if len(first.Relocs) != 1 || first.Relocs[0].Offset != 2 {
		t.Errorf("first atom Relocs = %+v, want the relocation at offset 2 rebased into this atom", first.Relocs)
	}

	second := pool.Get(idxs[1])
	if second.Primary != symRef(3) || second.Size != 8 {
		t.Errorf("second atom: Primary=%v Size=%d, want Primary=%v Size=8", second.Primary, second.Size, symRef(3))
	}
	if len(second.Inner) != 1 || second.Inner[0].Ref != symRef(4) || second.Inner[0].Offset != 4 {
		t.Errorf("second atom Inner = %+v, want the local static at offset 12 rebased to 4", second.Inner)
	}
	if len(second.Relocs) != 1 || second.Relocs[0].Offset != 2 {
		t.Errorf("second atom Relocs = %+v, want the relocation at offset 10 rebased to 2", second.Relocs)
	}
}

func TestSplitSubdividableLeadingBytesBeforeFirstExternal(t *testing.T) {
	pool := NewPool()
	sec := SectionSource{
		Data:          make([]byte, 12),
		Subdividable:  true,
		SectionSymRef: symRef(0),
		Symbols: []SectionSymbol{
			{Ref: symRef(1), Offset: 4, External: true},
		},
	}
	idxs := Split(pool, 1, sec)
	if len(idxs) != 2 {
		t.Fatalf("got %d atoms, want 2 (anonymous lead-in + one external)", len(idxs))
	}
	lead := pool.Get(idxs[0])
	if lead.Primary != symRef(0) || lead.Size != 4 {
		t.Errorf("lead atom: Primary=%v Size=%d, want Primary=%v Size=4", lead.Primary, lead.Size, symRef(0))
	}
	tail := pool.Get(idxs[1])
	if tail.Primary != symRef(1) || tail.Size != 8 {
		t.Errorf("tail atom: Primary=%v Size=%d, want Primary=%v Size=8", tail.Primary, tail.Size, symRef(1))
	}
}

func TestSplitZerofillSizesFromSymbols(t *testing.T) {
	pool := NewPool()
	sec := SectionSource{
		Zerofill:      true,
		Subdividable:  false,
		SectionSymRef: symRef(0),
		Symbols: []SectionSymbol{
			{Ref: symRef(1), Offset: 0, Size: 4},
			{Ref: symRef(2), Offset: 4, Size: 8},
		},
	}
	idxs := Split(pool, 1, sec)
	a := pool.Get(idxs[0])
	if a.Size != 12 {
		t.Errorf("zerofill Size = %d, want 12 (highest offset+size)", a.Size)
	}
	if a.Payload != nil {
		t.Errorf("zerofill atom must have a nil Payload, got %v", a.Payload)
	}
}
