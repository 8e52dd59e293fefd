package atom

import "github.com/moosichu/zld/internal/symtab"

// Arch distinguishes the two architectures spec.md §4.4/§4.6 give
// different synthetic-atom encodings for.
type Arch uint8

const (
	ArchX86_64 Arch = iota
	ArchAArch64
)

// StubSize returns the stub code size from spec.md §4.4: 6 bytes on
// x86-64 (a single indirect JMP through the lazy pointer), 12 bytes (3 x
// 4) on aarch64 (ADRP+LDR+BR).
func StubSize(a Arch) uint64 {
	if a == ArchAArch64 {
		return 12
	}
	return 6
}

// ThunkSize is the aarch64 jump-thunk size from spec.md §4.4: 3 x 4
// bytes (ADRP, ADD, BR).
const ThunkSize = 12

// Synth creates the synthetic atom kinds from spec.md §4.4, deduplicating
// by (kind, target symbol) via Targets so that "a GOT entry, stub, or
// thunk for a given target symbol is unique" holds.
type Synth struct {
	Pool     *Pool
	Targets  *Targets
	Arch     Arch
	preamble Index
}

// SetPreamble records the shared stub-helper preamble atom so every
// stub helper created afterwards links to it.
func (s *Synth) SetPreamble(idx Index) { s.preamble = idx }

func NewSynth(pool *Pool, arch Arch) *Synth {
	return &Synth{Pool: pool, Targets: NewTargets(), Arch: arch}
}

// LocalAllocator allocates fresh anonymous local symbol refs for
// synthetic atoms' primary symbols (spec.md §3 invariant: "a synthetic
// atom's primary symbol is always local"). It is a monotonically
// increasing counter; the caller (internal/linker) owns one instance and
// passes it to every Synth method, so synthetic-local indices stay
// unique across every kind.
type LocalAllocator struct{ next uint32 }

func (l *LocalAllocator) Alloc() symtab.SymbolRef {
	l.next++
	return symtab.SymbolRef{InputID: 0, SymIndex: l.next}
}

// GOTEntry returns (creating if needed) the 8-byte GOT pointer slot atom
// for target.
func (s *Synth) GOTEntry(target symtab.SymbolRef, locals *LocalAllocator) Index {
	return s.Targets.GetOrCreate(KindGOTEntry, target, func() Index {
		return s.Pool.New(Atom{
			Kind:      KindGOTEntry,
			Primary:   locals.Alloc(),
			Size:      8,
			AlignLog2: 3,
			Payload:   make([]byte, 8),
			Relocs: []Relocation{{
				Offset: 0, Length: 8, Target: target, Type: 0, PCRel: false,
			}},
		})
	})
}

// TLVPointer returns the Mach-O thread-local-variable indirection slot
// for target.
func (s *Synth) TLVPointer(target symtab.SymbolRef, locals *LocalAllocator) Index {
	return s.Targets.GetOrCreate(KindTLVPointer, target, func() Index {
		return s.Pool.New(Atom{
			Kind: KindTLVPointer, Primary: locals.Alloc(),
			Size: 8, AlignLog2: 3, Payload: make([]byte, 8),
			Relocs: []Relocation{{Offset: 0, Length: 8, Target: target}},
		})
	})
}

// StubSet is the three atoms spec.md §4.4 ties together for one lazily
// bound symbol: stub, lazy pointer, and (Mach-O only) stub helper, all
// keyed to the same target so repeated relocations share them.
type StubSet struct {
	Stub        Index
	LazyPointer Index
	StubHelper  Index
}

// Stub creates (or returns the existing) stub/lazy-pointer/stub-helper
// triple for target. The new stub helper links to the shared preamble
// atom (spec.md §4.4: "Preamble is a single synthetic atom") that the
// caller created once and recorded with SetPreamble beforehand.
func (s *Synth) Stub(target symtab.SymbolRef, locals *LocalAllocator) StubSet {
	if idx, ok := s.Targets.Lookup(KindStub, target); ok {
		lp, _ := s.Targets.Lookup(KindLazyPointer, target)
		sh, _ := s.Targets.Lookup(KindStubHelper, target)
		return StubSet{Stub: idx, LazyPointer: lp, StubHelper: sh}
	}

	lazyIdx := s.Pool.New(Atom{
		Kind: KindLazyPointer, Primary: locals.Alloc(),
		Size: 8, AlignLog2: 3, Payload: make([]byte, 8),
	})
	s.Targets.byKindTarget[KindLazyPointer] = ensureMap(s.Targets, KindLazyPointer)
	s.Targets.byKindTarget[KindLazyPointer][target] = lazyIdx

	helperIdx := s.Pool.New(Atom{
		Kind: KindStubHelper, Primary: locals.Alloc(),
		Size: stubHelperSize(s.Arch), AlignLog2: 2,
		Payload: make([]byte, stubHelperSize(s.Arch)),
		Linked:  s.preamble,
	})
	s.Targets.byKindTarget[KindStubHelper] = ensureMap(s.Targets, KindStubHelper)
	s.Targets.byKindTarget[KindStubHelper][target] = helperIdx

	stubIdx := s.Pool.New(Atom{
		Kind: KindStub, Primary: locals.Alloc(),
		Size: StubSize(s.Arch), AlignLog2: 2,
		Payload: make([]byte, StubSize(s.Arch)),
		Linked:  lazyIdx,
	})
	s.Targets.byKindTarget[KindStub] = ensureMap(s.Targets, KindStub)
	s.Targets.byKindTarget[KindStub][target] = stubIdx
	s.Pool.Get(lazyIdx).Linked = helperIdx

	return StubSet{Stub: stubIdx, LazyPointer: lazyIdx, StubHelper: helperIdx}
}

func ensureMap(t *Targets, k Kind) map[symtab.SymbolRef]Index {
	if t.byKindTarget[k] == nil {
		return make(map[symtab.SymbolRef]Index)
	}
	return t.byKindTarget[k]
}

func stubHelperSize(a Arch) uint64 {
	if a == ArchAArch64 {
		return 12
	}
	return 10 // push imm32 (5) + jmp rel32 (5)
}

// StubHelperPreamble creates the single shared stub-helper preamble atom
// (spec.md §4.4).
func (s *Synth) StubHelperPreamble(locals *LocalAllocator) Index {
	return s.Pool.New(Atom{
		Kind: KindStubHelperPreamble, Primary: locals.Alloc(),
		Size: preambleSize(s.Arch), AlignLog2: 2,
		Payload: make([]byte, preambleSize(s.Arch)),
	})
}

func preambleSize(a Arch) uint64 {
	if a == ArchAArch64 {
		return 16
	}
	return 16
}

// Thunk creates an aarch64 jump thunk near an out-of-range branch site
// (spec.md §4.4/§4.5 step 5). Thunks are deduplicated in the Targets map
// by a caller-chosen key rather than by target the way GOT/stub entries
// are: each insertion site may need its own thunk since the permissible
// range is a window around the call site, not a single global slot.
// Callers that want sharing within one code section pass the same key.
func (s *Synth) Thunk(key symtab.SymbolRef, target symtab.SymbolRef, locals *LocalAllocator) Index {
	return s.Targets.GetOrCreate(KindThunk, key, func() Index {
		// ADRP X16, target@PAGE; ADD X16, X16, target@PAGEOFF; BR X16.
		// BR's register-indirect jump carries no immediate of its own, so
		// only the first two words take relocations (reloc/aarch64.go
		// patches the page/page-offset fields in place).
		payload := []byte{
			0x10, 0x00, 0x00, 0x90, // adrp x16, #0
			0x10, 0x02, 0x00, 0x91, // add x16, x16, #0
			0x00, 0x02, 0x1f, 0xd6, // br x16
		}
		return s.Pool.New(Atom{
			Kind: KindThunk, Primary: locals.Alloc(),
			Size: ThunkSize, AlignLog2: 2,
			Payload: payload,
			Relocs: []Relocation{
				{Offset: 0, Length: 4, Target: target, Type: thunkADRPType, PCRel: true},
				{Offset: 4, Length: 4, Target: target, Type: thunkAddType},
			},
		})
	})
}

// thunkADRPType/thunkAddType are the reloc.AArch64_ADR_PREL_PG_HI21 and
// reloc.AArch64_ADD_ABS_LO12_NC values, duplicated here as untyped
// constants since internal/atom sits below internal/reloc and can't
// import it back without a cycle; internal/linker's writeOneRelocation
// writes these through reloc.WriteAArch64 exactly as it would any other
// relocation of those types.
const (
	thunkADRPType uint16 = 275
	thunkAddType  uint16 = 277
)

// TentativeBSS creates the single zerofill atom for a surviving
// tentative (COMMON) Global, sized/aligned per the merge winner (spec.md
// §4.4 "one zerofill atom per surviving tentative Global").
func (s *Synth) TentativeBSS(owner symtab.SymbolRef, size uint64, alignLog2 uint8) Index {
	return s.Targets.GetOrCreate(KindTentativeBSS, owner, func() Index {
		return s.Pool.New(Atom{
			Kind: KindTentativeBSS, Primary: owner,
			Size: size, AlignLog2: alignLog2, Zerofill: true,
		})
	})
}

// HeaderPad creates the Mach-O header-pad atom that reserves room for
// load commands (spec.md §4.4).
func (s *Synth) HeaderPad(size uint64, locals *LocalAllocator) Index {
	return s.Pool.New(Atom{
		Kind: KindHeaderPad, Primary: locals.Alloc(),
		Size: size, AlignLog2: 3, Zerofill: false, Payload: make([]byte, size),
	})
}
