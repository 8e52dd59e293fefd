package layout

import "github.com/moosichu/zld/internal/atom"

// BranchRange is the aarch64 B/BL displacement range spec.md §4.4/§4.5
// describe: ±128 MiB.
const BranchRange = 128 * 1024 * 1024

// IsBranchReloc reports whether r is a PC-relative call/branch
// relocation that the thunk pass must range-check; arch-specific
// relocation type values are supplied by internal/reloc so this package
// stays architecture-agnostic.
type IsBranchReloc func(r atom.Relocation) bool

// ThunkInserter is called once per out-of-range branch site found;
// it returns the thunk atom's index (already deduplicated per target
// within the code section by the caller, via atom.Synth.Thunk) so the
// branch relocation's target symbol can be redirected to point at the
// thunk instead.
type ThunkInserter func(site atom.Index, target atom.Relocation) atom.Index

// InsertThunks runs spec.md §4.5 step 5: after the first size/address
// pass, scan every atom in every section for branch relocations whose
// source-target distance exceeds BranchRange, insert a thunk atom
// immediately after the offending atom's containing section position,
// and rewrite the relocation to target the thunk. Returns true if any
// section's atom chain was modified, so the caller knows to re-run
// SizePass/AllocateAddresses.
func (p *Plan) InsertThunks(isBranch IsBranchReloc, insert ThunkInserter, resolveTargetAddr func(atom.Relocation) (uint64, bool)) bool {
	changed := false
	for si := range p.Sections {
		sec := &p.Sections[si]
		var toInsert []struct {
			after atom.Index
			idx   atom.Index
		}
		sec.Chain.Walk(p.Pool, func(idx atom.Index, a *atom.Atom) bool {
			for ri := range a.Relocs {
				r := a.Relocs[ri]
				if !isBranch(r) {
					continue
				}
				targetAddr, ok := resolveTargetAddr(r)
				if !ok {
					continue
				}
				srcAddr := a.Address + uint64(r.Offset)
				dist := int64(targetAddr) - int64(srcAddr)
				if dist > BranchRange || dist < -BranchRange {
					thunkIdx := insert(idx, r)
					a.Relocs[ri].Type = ThunkRelocMarker
					a.Relocs[ri].Addend = int64(thunkIdx)
					toInsert = append(toInsert, struct {
						after atom.Index
						idx   atom.Index
					}{after: idx, idx: thunkIdx})
				}
			}
			return true
		})
		for _, ins := range toInsert {
			sec.Chain.InsertAfter(p.Pool, ins.after, ins.idx)
			p.Pool.Get(ins.idx).OutputSection = si
			changed = true
		}
	}
	return changed
}

// ThunkRelocMarker is an out-of-band relocation Type value InsertThunks
// uses to flag "this relocation has been redirected through a thunk; the
// thunk's atom index is in Addend." internal/linker's relocation writer
// checks for it before consulting the normal type table and patches the
// branch as a 26-bit branch to the thunk's address.
const ThunkRelocMarker uint16 = 0xffff
