// Package layout implements spec.md §4.5 "Section/Segment Layout":
// pruning empty sections, sorting by precedence, grouping into segments,
// and the size/address/file-offset allocation passes.
package layout

import "github.com/moosichu/zld/internal/atom"

// Section is spec.md §3's Section entity, kept format-agnostic: Mach-O,
// ELF, and Wasm finalizers each translate their own header shape to and
// from this common record.
type Section struct {
	Name       string // e.g. "__text" / ".text"; "code" / "data" for Wasm
	Segment    string // Mach-O segment name; "" for ELF/Wasm
	Kind       uint16 // format-specific section type enum
	Flags      uint32 // format-specific section flags
	AlignLog2  uint8
	Size       uint64
	FileOffset uint64
	VMAddr     uint64

	SegmentIndex int
	Chain        atom.Chain

	// precedence is the section's position within its segment in the
	// fixed total order spec.md §4.5 step 2 describes; set by the
	// format-specific precedence table when the section is created.
	precedence int
}

func (s *Section) Precedence() int      { return s.precedence }
func (s *Section) SetPrecedence(p int)  { s.precedence = p }

// IsEmpty reports whether the section currently has no atoms, so S5
// step 1 ("prune empty sections") can drop it.
func (s *Section) IsEmpty(pool *atom.Pool) bool {
	return s.Chain.First == atom.Null
}
