// Package reloc implements spec.md §4.6 "Relocation Writer": computing
// and writing the fixup for every atom relocation, with the
// architecture-specific encodings for x86-64 and aarch64, GOT/stub/thunk
// indirection resolution, and the ELF x86-64 peephole rewrites of §4.6.
package reloc

// Type is a target-CPU relocation type. The numeric values below match
// the wire encodings (ELF r_type / Mach-O r_type) for the subset this
// linker implements; each architecture file documents which of its
// input constants they mirror.
type Type uint16

// x86-64 (matches the subset of R_X86_64_* this linker acts on).
const (
	X86_64_NONE           Type = 0
	X86_64_64             Type = 1
	X86_64_PC32           Type = 2
	X86_64_GOT32          Type = 3
	X86_64_PLT32          Type = 4
	X86_64_32             Type = 10
	X86_64_32S            Type = 11
	X86_64_GOTPCREL       Type = 9
	X86_64_REX_GOTPCRELX  Type = 42
	X86_64_GOTPCRELX      Type = 41
	X86_64_GOTTPOFF       Type = 22
	X86_64_TPOFF32        Type = 23
	X86_64_DTPOFF64       Type = 17
	X86_64_DTPOFF32       Type = 21
)

// aarch64 (matches the subset of R_AARCH64_* this linker acts on).
const (
	AArch64_NONE            Type = 0
	AArch64_ABS64           Type = 257
	AArch64_CALL26          Type = 283
	AArch64_JUMP26          Type = 282
	AArch64_ADR_PREL_PG_HI21 Type = 275
	AArch64_ADD_ABS_LO12_NC  Type = 277
	AArch64_LDST_ABS_LO12_NC Type = 286
	AArch64_ADR_GOT_PAGE     Type = 311
	AArch64_LD64_GOT_LO12_NC Type = 312
	AArch64_TLSLE_ADD_TPREL_HI12 Type = 549
	AArch64_TLSLE_ADD_TPREL_LO12_NC Type = 550
)

// Arch selects the relocation encoder.
type Arch uint8

const (
	ArchX86_64 Arch = iota
	ArchAArch64
)
