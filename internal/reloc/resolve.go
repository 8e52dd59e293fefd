package reloc

import (
	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/symtab"
)

// Resolver answers "what address does this relocation's target actually
// sit at" (spec.md §4.6: "resolve_target(reloc)... dereferencing GOT /
// stub / thunk indirection as the relocation type requires").
type Resolver struct {
	Locs  *atom.LocationIndex
	Pool  *atom.Pool
	Synth *atom.Synth
}

// Direct resolves a symbol to its own final address, with no
// indirection. This is the case for a locally-defined target under an
// absolute or PC-relative-to-the-symbol-itself relocation.
func (r *Resolver) Direct(ref symtab.SymbolRef) (uint64, bool) {
	return r.Locs.Address(r.Pool, ref)
}

// IsLocal reports whether ref resolves to an atom this link placed
// (vs. being satisfied externally by a dylib).
func (r *Resolver) IsLocal(ref symtab.SymbolRef) bool {
	_, ok := r.Locs.Resolve(ref)
	return ok
}

// GOT resolves through the GOT entry synthesized for ref, if any.
func (r *Resolver) GOT(ref symtab.SymbolRef) (uint64, bool) {
	idx, ok := r.Synth.Targets.Lookup(atom.KindGOTEntry, ref)
	if !ok {
		return 0, false
	}
	return r.Pool.Get(idx).Address, true
}

// Stub resolves through the stub synthesized for ref, if any.
func (r *Resolver) Stub(ref symtab.SymbolRef) (uint64, bool) {
	idx, ok := r.Synth.Targets.Lookup(atom.KindStub, ref)
	if !ok {
		return 0, false
	}
	return r.Pool.Get(idx).Address, true
}

// TLV resolves through the thread-local-variable pointer slot
// synthesized for ref, if any.
func (r *Resolver) TLV(ref symtab.SymbolRef) (uint64, bool) {
	idx, ok := r.Synth.Targets.Lookup(atom.KindTLVPointer, ref)
	if !ok {
		return 0, false
	}
	return r.Pool.Get(idx).Address, true
}

// Thunk resolves a relocation that InsertThunks redirected (see
// layout.ThunkRelocMarker): the thunk's own atom index was stashed in
// the relocation's Addend field.
func (r *Resolver) Thunk(thunkAtomAddend int64) uint64 {
	return r.Pool.Get(atom.Index(thunkAtomAddend)).Address
}
