// Package elf implements spec.md §4.7's ELF finalizer: turning a laid-out
// internal/layout.Plan into the three-part ELF file shape: section
// contents, program headers describing the loadable segments, and the
// section header table trailing the file for tooling (objdump, gdb).
//
// No third-party ELF *writer* exists among this linker's dependency
// pack (debug/elf is read-only by design), so the wire-format struct
// layouts below are hand-written against the System V ABI / ELF64
// spec, matching the same field shapes aclements/objbrowse's
// internal/obj package reads with debug/elf. Like the Wasm finalizer,
// it is built without a third-party encoding library; see DESIGN.md for
// why.
package elf

import "encoding/binary"

// Ident indices, e_ident[].
const (
	EI_MAG0       = 0
	EI_MAG1       = 1
	EI_MAG2       = 2
	EI_MAG3       = 3
	EI_CLASS      = 4
	EI_DATA       = 5
	EI_VERSION    = 6
	EI_OSABI      = 7
	EI_ABIVERSION = 8
	EI_PAD        = 9
	EI_NIDENT     = 16
)

const (
	ELFCLASS64     = 2
	ELFDATA2LSB    = 1
	EV_CURRENT     = 1
	ELFOSABI_NONE  = 0
	ELFOSABI_LINUX = 3
)

// e_type.
const (
	ET_NONE = 0
	ET_REL  = 1
	ET_EXEC = 2
	ET_DYN  = 3
)

// e_machine.
const (
	EM_X86_64  = 62
	EM_AARCH64 = 183
)

// Header64 is the ELF64 file header, laid out exactly as the on-disk
// format (spec.md §4.7's "ELF header shnum/shstrndx/entry updates").
type Header64 struct {
	Ident     [EI_NIDENT]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

const Header64Size = 64

// Put encodes h into b (which must be at least Header64Size bytes)
// little-endian, matching the Put/Write encoder idiom the Mach-O
// writer types use.
func (h *Header64) Put(b []byte) {
	copy(b[0:16], h.Ident[:])
	bo := binary.LittleEndian
	bo.PutUint16(b[16:], h.Type)
	bo.PutUint16(b[18:], h.Machine)
	bo.PutUint32(b[20:], h.Version)
	bo.PutUint64(b[24:], h.Entry)
	bo.PutUint64(b[32:], h.Phoff)
	bo.PutUint64(b[40:], h.Shoff)
	bo.PutUint32(b[48:], h.Flags)
	bo.PutUint16(b[52:], h.Ehsize)
	bo.PutUint16(b[54:], h.Phentsize)
	bo.PutUint16(b[56:], h.Phnum)
	bo.PutUint16(b[58:], h.Shentsize)
	bo.PutUint16(b[60:], h.Shnum)
	bo.PutUint16(b[62:], h.Shstrndx)
}

// ProgramHeader64 is one Elf64_Phdr program header table entry.
type ProgramHeader64 struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

const ProgramHeader64Size = 56

func (p *ProgramHeader64) Put(b []byte) {
	bo := binary.LittleEndian
	bo.PutUint32(b[0:], p.Type)
	bo.PutUint32(b[4:], p.Flags)
	bo.PutUint64(b[8:], p.Offset)
	bo.PutUint64(b[16:], p.VAddr)
	bo.PutUint64(b[24:], p.PAddr)
	bo.PutUint64(b[32:], p.Filesz)
	bo.PutUint64(b[40:], p.Memsz)
	bo.PutUint64(b[48:], p.Align)
}

// Segment types.
const (
	PT_NULL    = 0
	PT_LOAD    = 1
	PT_DYNAMIC = 2
	PT_INTERP  = 3
	PT_NOTE    = 4
	PT_PHDR    = 6
	PT_TLS     = 7
)

// Segment flags.
const (
	PF_X = 0x1
	PF_W = 0x2
	PF_R = 0x4
)

// SectionHeader64 is one Elf64_Shdr section header table entry.
type SectionHeader64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

const SectionHeader64Size = 64

func (s *SectionHeader64) Put(b []byte) {
	bo := binary.LittleEndian
	bo.PutUint32(b[0:], s.Name)
	bo.PutUint32(b[4:], s.Type)
	bo.PutUint64(b[8:], s.Flags)
	bo.PutUint64(b[16:], s.Addr)
	bo.PutUint64(b[24:], s.Offset)
	bo.PutUint64(b[32:], s.Size)
	bo.PutUint32(b[40:], s.Link)
	bo.PutUint32(b[44:], s.Info)
	bo.PutUint64(b[48:], s.Addralign)
	bo.PutUint64(b[56:], s.Entsize)
}

// Section types.
const (
	SHT_NULL     = 0
	SHT_PROGBITS = 1
	SHT_SYMTAB   = 2
	SHT_STRTAB   = 3
	SHT_RELA     = 4
	SHT_NOBITS   = 8
	SHT_REL      = 9
)

// Section flags.
const (
	SHF_WRITE     = 0x1
	SHF_ALLOC     = 0x2
	SHF_EXECINSTR = 0x4
)

// Sym64 is one Elf64_Sym symbol table entry.
type Sym64 struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

const Sym64Size = 24

func (s *Sym64) Put(b []byte) {
	bo := binary.LittleEndian
	bo.PutUint32(b[0:], s.Name)
	b[4] = s.Info
	b[5] = s.Other
	bo.PutUint16(b[6:], s.Shndx)
	bo.PutUint64(b[8:], s.Value)
	bo.PutUint64(b[16:], s.Size)
}

func StInfo(bind, typ uint8) uint8 { return bind<<4 | (typ & 0xf) }

const (
	STB_LOCAL  = 0
	STB_GLOBAL = 1
	STB_WEAK   = 2
)

const (
	STT_NOTYPE = 0
	STT_OBJECT = 1
	STT_FUNC   = 2
	STT_SECTION = 3
)
