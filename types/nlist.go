package types

// Nlist32 and Nlist64 mirror Mach-O's on-disk symbol table entry
// (<mach-o/nlist.h>), in the 32- and 64-bit layouts respectively. The
// reader in internal/format/macho.File.parseSymtab decodes one per
// symbol and widens Nlist32 into the common Nlist64 shape.
type Nlist64 struct {
	Name  uint32
	Type  NType
	Sect  uint8
	Desc  NDescType
	Value uint64
}

type Nlist32 struct {
	Name  uint32
	Type  NType
	Sect  uint8
	Desc  NDescType
	Value uint32
}

// NType is the n_type byte: a bitfield of N_STAB | N_PEXT | N_TYPE |
// N_EXT.
type NType uint8

const (
	N_STAB NType = 0xe0 // if any of these bits set, a symbolic debugging entry
	N_PEXT NType = 0x10 // private external symbol bit
	N_TYPE NType = 0x0e // mask for the type bits
	N_EXT  NType = 0x01 // external symbol bit, set for external symbols
)

// n_type N_TYPE field values.
const (
	N_UNDF NType = 0x0 // undefined, n_sect == NO_SECT
	N_ABS  NType = 0x2 // absolute, n_sect == NO_SECT
	N_SECT NType = 0xe // defined in section number n_sect
	N_PBUD NType = 0xc // prebound undefined (defined in a dylib)
	N_INDR NType = 0xa // indirect: the string table holds the name of another symbol to alias
)

func (t NType) IsStab() bool { return t&N_STAB != 0 }

func (t NType) IsUndefinedSym() bool {
	return !t.IsStab() && (t&N_TYPE) == N_UNDF
}

func (t NType) IsAbsoluteSym() bool {
	return !t.IsStab() && (t&N_TYPE) == N_ABS
}

func (t NType) IsIndirectSym() bool {
	return !t.IsStab() && (t&N_TYPE) == N_INDR
}

func (t NType) IsExternalSym() bool { return t&N_EXT != 0 }

func (t NType) IsPrivateExternSym() bool { return t&N_PEXT != 0 }

// NDescType is the n_desc field: reference type plus flag bits
// (REFERENCED_DYNAMICALLY, N_WEAK_REF, N_WEAK_DEF, N_NO_DEAD_STRIP, the
// library ordinal for two-level-namespace undefined symbols).
type NDescType uint16

const (
	N_WEAK_REF      NDescType = 0x0040
	N_WEAK_DEF      NDescType = 0x0080
	N_REF_TO_WEAK   NDescType = 0x0080
	N_ARM_THUMB_DEF NDescType = 0x0008
	N_NO_DEAD_STRIP NDescType = 0x0020
	N_SYMBOL_RESOLVER NDescType = 0x0100
	N_ALT_ENTRY     NDescType = 0x0200
)

func (d NDescType) IsWeakRef() bool      { return d&N_WEAK_REF != 0 }
func (d NDescType) IsWeakDef() bool      { return d&N_WEAK_DEF != 0 }
func (d NDescType) IsNoDeadStrip() bool  { return d&N_NO_DEAD_STRIP != 0 }
func (d NDescType) IsAltEntry() bool     { return d&N_ALT_ENTRY != 0 }

// LibraryOrdinal extracts the two-level-namespace dylib ordinal packed
// into the high byte of n_desc for an undefined symbol.
func (d NDescType) LibraryOrdinal() int {
	return int(d>>8) & 0xff
}
