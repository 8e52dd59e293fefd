package atom

import (
	"sort"

	"github.com/moosichu/zld/internal/symtab"
)

// SectionSymbol is one symbol defined within an input section, as seen
// by the atom builder (offsets are relative to the section start).
type SectionSymbol struct {
	Ref      symtab.SymbolRef
	Offset   uint32
	Size     uint64
	External bool // externally addressable: starts a new atom under subsections-via-symbols
}

// SectionSource is the slice of an Input's parsed section data the atom
// builder needs; internal/input's object readers populate one of these
// per "content" section (code, data, rodata, zerofill) before calling
// Split (spec.md §4.3).
type SectionSource struct {
	Data          []byte // nil for Zerofill
	Zerofill      bool
	Subdividable  bool // input marks section as splittable via subsections-via-symbols
	AlignLog2     uint8
	Symbols       []SectionSymbol // sorted by Offset by the caller
	Relocs        []Relocation    // Offset relative to section start
	SectionSymRef symtab.SymbolRef
}

// Split decomposes one input section into atoms per spec.md §4.3: when
// Subdividable, every external symbol starts a new atom running to the
// next symbol's offset (or section end); otherwise the whole section
// becomes one atom, with every contained symbol recorded as an
// InnerSymbol. Returns the new atoms in section order.
func Split(pool *Pool, inputID uint32, sec SectionSource) []Index {
	if !sec.Subdividable {
		a := Atom{
			Kind:        KindRegular,
			OwningInput: inputID,
			Primary:     sec.SectionSymRef,
			Size:        uint64(sectionLen(sec)),
			AlignLog2:   sec.AlignLog2,
			Zerofill:    sec.Zerofill,
		}
		if !sec.Zerofill {
			a.Payload = sec.Data
		}
		for _, sym := range sec.Symbols {
			a.Inner = append(a.Inner, InnerSymbol{Ref: sym.Ref, Offset: sym.Offset})
		}
		a.Relocs = sec.Relocs
		return []Index{pool.New(a)}
	}

	var starts []SectionSymbol
	for _, s := range sec.Symbols {
		if s.External {
			starts = append(starts, s)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Offset < starts[j].Offset })

	total := uint32(sectionLen(sec))
	if len(starts) == 0 {
		// No external symbol in the section: keep it whole, with its
		// section symbol as primary and every contained symbol recorded
		// as an InnerSymbol: the same shape as the non-subdividable case.
		a := Atom{
			Kind:        KindRegular,
			OwningInput: inputID,
			Primary:     sec.SectionSymRef,
			Size:        uint64(total),
			AlignLog2:   sec.AlignLog2,
			Zerofill:    sec.Zerofill,
		}
		if !sec.Zerofill {
			a.Payload = sec.Data
		}
		for _, sym := range sec.Symbols {
			a.Inner = append(a.Inner, InnerSymbol{Ref: sym.Ref, Offset: sym.Offset})
		}
		a.Relocs = sec.Relocs
		return []Index{pool.New(a)}
	}

	// Non-external symbols (local statics) never start a new atom, but
	// their relocation targets still need to resolve; file them under
	// whichever slice their offset falls into, the same InnerSymbol
	// treatment the non-subdividable path gives every contained symbol.
	var inner []SectionSymbol
	for _, s := range sec.Symbols {
		if !s.External {
			inner = append(inner, s)
		}
	}

	var result []Index
	// Leading bytes before the first external symbol belong to an
	// anonymous atom addressed only by the section's own symbol.
	if starts[0].Offset > 0 {
		end := starts[0].Offset
		result = append(result, newSliceAtom(pool, inputID, sec, sec.SectionSymRef, 0, end, inner))
	}
	for i, s := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1].Offset
		}
		result = append(result, newSliceAtom(pool, inputID, sec, s.Ref, s.Offset, end, inner))
	}
	return result
}

func newSliceAtom(pool *Pool, inputID uint32, sec SectionSource, primary symtab.SymbolRef, start, end uint32, inner []SectionSymbol) Index {
	a := Atom{
		Kind:        KindRegular,
		OwningInput: inputID,
		Primary:     primary,
		Size:        uint64(end - start),
		AlignLog2:   sec.AlignLog2,
		Zerofill:    sec.Zerofill,
	}
	if !sec.Zerofill && sec.Data != nil {
		a.Payload = sec.Data[start:end]
	}
	for _, r := range sec.Relocs {
		if r.Offset >= start && r.Offset < end {
			r.Offset -= start
			a.Relocs = append(a.Relocs, r)
		}
	}
	for _, s := range inner {
		if s.Offset >= start && s.Offset < end && s.Ref != primary {
			a.Inner = append(a.Inner, InnerSymbol{Ref: s.Ref, Offset: s.Offset - start})
		}
	}
	return pool.New(a)
}

func sectionLen(sec SectionSource) int {
	if sec.Zerofill {
		total := 0
		for _, s := range sec.Symbols {
			if int(s.Offset)+int(s.Size) > total {
				total = int(s.Offset) + int(s.Size)
			}
		}
		return total
	}
	return len(sec.Data)
}
