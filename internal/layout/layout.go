package layout

import (
	"sort"

	"github.com/moosichu/zld/internal/atom"
)

// alignUp rounds v up to the next multiple of 2^log2.
func alignUp(v uint64, log2 uint8) uint64 {
	a := uint64(1) << log2
	return (v + a - 1) &^ (a - 1)
}

// Plan drives spec.md §4.5's section/segment assembly. internal/linker
// owns one Plan per link; the format-specific finalizer consults it for
// final section/segment headers and atom addresses.
type Plan struct {
	Pool     *atom.Pool
	Sections []Section
	Segments []Segment

	byName map[string]int
}

func NewPlan(pool *atom.Pool) *Plan {
	return &Plan{Pool: pool, byName: make(map[string]int)}
}

// Section returns the index of the named output section, creating it
// (with the given precedence) if this is the first atom routed there.
// This is the "mapping function keyed on (input_segment, input_section,
// type, flags)" of spec.md §4.3, collapsed to a single name key by the
// format-specific caller.
func (p *Plan) Section(name, segment string, precedence int) int {
	if i, ok := p.byName[name]; ok {
		return i
	}
	p.Sections = append(p.Sections, Section{Name: name, Segment: segment, precedence: precedence})
	i := len(p.Sections) - 1
	p.byName[name] = i
	return i
}

// AddAtom appends idx to the chain of Sections[sectionIdx] and records
// the atom's destination, completing spec.md §4.3's atom->section
// assignment.
func (p *Plan) AddAtom(sectionIdx int, idx atom.Index) {
	p.Pool.Get(idx).OutputSection = sectionIdx
	p.Sections[sectionIdx].Chain.Append(p.Pool, idx)
}

// PruneEmpty drops every section with no atoms (spec.md §4.5 step 1),
// preserving relative order of what remains.
func (p *Plan) PruneEmpty() {
	var kept []Section
	remap := make(map[int]int)
	for oldIdx, s := range p.Sections {
		if s.IsEmpty(p.Pool) {
			continue
		}
		remap[oldIdx] = len(kept)
		kept = append(kept, s)
	}
	p.Sections = kept
	p.byName = make(map[string]int, len(kept))
	for i, s := range kept {
		p.byName[s.Name] = i
	}
	for i := 1; i < p.Pool.Len(); i++ {
		a := p.Pool.Get(atom.Index(i))
		if newIdx, ok := remap[a.OutputSection]; ok {
			a.OutputSection = newIdx
		}
	}
}

// SortSections orders sections by the fixed total order spec.md §4.5
// step 2 describes: (segment_precedence, section_precedence_within_segment).
// segPrecedence maps a segment name to its rank.
func (p *Plan) SortSections(segPrecedence func(segment string) int) {
	sort.SliceStable(p.Sections, func(i, j int) bool {
		a, b := p.Sections[i], p.Sections[j]
		pa, pb := segPrecedence(a.Segment), segPrecedence(b.Segment)
		if pa != pb {
			return pa < pb
		}
		return a.precedence < b.precedence
	})
	p.byName = make(map[string]int, len(p.Sections))
	for i, s := range p.Sections {
		p.byName[s.Name] = i
	}
}

// SizePass walks every section's atom chain, assigning each atom an
// address (relative to its section's start, i.e. offset 0) equal to
// align_up(running_size, 2^atom_alignment); the section's final size is
// the resulting running size, and its alignment the max over its atoms
// (spec.md §4.5 step 4).
func (p *Plan) SizePass() {
	for i := range p.Sections {
		sec := &p.Sections[i]
		var running uint64
		var maxAlign uint8
		sec.Chain.Walk(p.Pool, func(_ atom.Index, a *atom.Atom) bool {
			running = alignUp(running, a.AlignLog2)
			a.Address = running // offset within section, finalized in AllocateAddresses
			running += a.Size
			if a.AlignLog2 > maxAlign {
				maxAlign = a.AlignLog2
			}
			return true
		})
		sec.Size = running
		if maxAlign > sec.AlignLog2 {
			sec.AlignLog2 = maxAlign
		}
	}
}

// GroupIntoSegments assigns each section to a segment by name
// (spec.md §4.5 step 3), creating segments in first-seen order and
// deriving their protection from the segment name.
func (p *Plan) GroupIntoSegments(segmentOf func(sectionSegment string) string) {
	p.Segments = nil
	idxOf := make(map[string]int)
	for i, s := range p.Sections {
		name := segmentOf(s.Segment)
		segIdx, ok := idxOf[name]
		if !ok {
			p.Segments = append(p.Segments, Segment{Name: name, Prot: ProtectionFromName(name), ZeroPage: name == "__PAGEZERO"})
			segIdx = len(p.Segments) - 1
			idxOf[name] = segIdx
		}
		p.Segments[segIdx].SectionIndexes = append(p.Segments[segIdx].SectionIndexes, i)
		p.Sections[i].SegmentIndex = segIdx
	}
}

// AllocateAddresses assigns virtual addresses and file offsets to every
// segment, section, and atom (spec.md §4.5 steps 6-7). base is the
// platform's zero-page size for an executable, 0 for a shared
// library/object. pageSize is the target's page granularity (0x1000 for
// x86-64/aarch64 Linux and Darwin alike at the linker's level of
// abstraction; aarch64 Darwin's 16K runtime page size is a loader
// concern, not a layout-time one here).
func (p *Plan) AllocateAddresses(base uint64, pageSize uint64) {
	vmAddr := base
	fileOff := uint64(0)
	for si := range p.Segments {
		seg := &p.Segments[si]
		if seg.ZeroPage {
			seg.VMAddr = 0
			seg.VMSize = base
			vmAddr = base
			continue
		}
		seg.VMAddr = alignUp(vmAddr, log2OfPageSize(pageSize))
		seg.FileOffset = alignUp(fileOff, log2OfPageSize(pageSize))

		segFileStart := seg.FileOffset
		segVMStart := seg.VMAddr
		var segSize uint64
		for _, si2 := range seg.SectionIndexes {
			sec := &p.Sections[si2]
			pad := alignUp(segSize, sec.AlignLog2) - segSize
			segSize += pad
			sec.FileOffset = segFileStart + segSize
			sec.VMAddr = segVMStart + segSize
			segSize += sec.Size

			sec.Chain.Walk(p.Pool, func(_ atom.Index, a *atom.Atom) bool {
				a.Address = sec.VMAddr + a.Address // was section-relative, now absolute VA
				a.FileOffset = sec.FileOffset + (a.Address - sec.VMAddr)
				return true
			})
		}
		seg.VMSize = segSize
		seg.FileSize = segSize

		vmAddr = seg.VMAddr + seg.VMSize
		fileOff = seg.FileOffset + seg.FileSize
	}
}

func log2OfPageSize(pageSize uint64) uint8 {
	var l uint8
	for v := pageSize; v > 1; v >>= 1 {
		l++
	}
	return l
}
