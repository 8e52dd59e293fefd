// Package input implements spec.md §4.1 "Input Ingestion": turning a
// command-line list of paths into the tagged-union Input set the rest
// of the linker consumes (object files in ELF, Mach-O, or Wasm form,
// static archives, and Mach-O dylib stubs), including fat/universal
// slicing and the recoverable NotObject/NotArchive/NotDylib probing
// spec.md §7 calls for.
package input

import (
	"debug/elf"
	"fmt"

	"github.com/moosichu/zld/internal/format/macho"
	"github.com/moosichu/zld/internal/symtab"
)

// Format is which object format an Input's contents are encoded in.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
	FormatWasm
)

// Kind is the tagged union discriminant from spec.md §3 "Input".
type Kind uint8

const (
	KindObject Kind = iota
	KindArchive
	KindDylibStub
)

// Section is one input-local section: its raw bytes (nil for a
// zerofill/BSS-like section) and the flags the symbol splitter and
// layout stage need.
type Section struct {
	Name         string
	Data         []byte
	Zerofill     bool
	Subdividable bool // Mach-O header flag MH_SUBSECTIONS_VIA_SYMBOLS; always false for ELF and Wasm
	AlignLog2    uint8
	Relocs       []Relocation
}

// Relocation is one input-local relocation, identical in shape to
// atom.Relocation but expressed before symbols have been merged into
// the global table (Target's SymIndex is still this input's own).
type Relocation struct {
	Offset uint32
	Length uint8
	Target symtab.SymbolRef
	Type   uint16
	Addend int64
	PCRel  bool
}

// Object is a parsed relocatable object file: its section list and
// per-input symbol table, ready for S2 symbol resolution and S3 atom
// splitting.
type Object struct {
	Format  Format
	Path    string
	Sections []Section
	Symbols []symtab.Symbol
}

// Archive is a parsed `!<arch>\n` static archive: every member decoded
// eagerly as spec.md §4.1 requires ("archives are parsed eagerly, not
// lazily, because pull-in decisions require the member's own symbol
// table") up front, deferring only the decision of which members to
// pull in to S2.
type Archive struct {
	Path    string
	Members []ArchiveMember
}

// ArchiveMember is one `ar` member: its own parsed Object plus the
// member name archives carry for diagnostics.
type ArchiveMember struct {
	Name   string
	Object Object
}

// DylibStub is a Mach-O dylib or .tbd-equivalent stub: the symbols it
// exports, available for binding but contributing no atoms.
type DylibStub struct {
	Path         string
	InstallName  string
	Ordinal      int
	Symbols      []string
	WeakSymbols  []string
	ReexportedBy []string
}

// Input is the tagged union spec.md §3 describes: exactly one of
// Object, Archive, or DylibStub is populated, selected by Kind.
type Input struct {
	ID      uint32 // 1-based; SymbolRef.InputID == ID
	Kind    Kind
	Object  *Object
	Archive *Archive
	Dylib   *DylibStub
}

// NotObjectError is returned by object probing functions when the
// input's magic doesn't match the format being attempted. It's
// recoverable per spec.md §7, so callers can try the next format in
// sequence.
type NotObjectError struct{ Path string }

func (e *NotObjectError) Error() string { return fmt.Sprintf("%s: not an object file", e.Path) }

// NotArchiveError signals the input lacks the `!<arch>\n` magic.
type NotArchiveError struct{ Path string }

func (e *NotArchiveError) Error() string { return fmt.Sprintf("%s: not an archive", e.Path) }

// NotDylibError signals a Mach-O file lacks MH_DYLIB/MH_DYLIB_STUB
// filetype.
type NotDylibError struct{ Path string }

func (e *NotDylibError) Error() string { return fmt.Sprintf("%s: not a dylib", e.Path) }

// sniff identifies an input's format from its leading bytes without
// fully parsing it, so Load can dispatch to the right parser.
func sniff(data []byte) Format {
	if len(data) >= 4 {
		if data[0] == '\x7f' && data[1] == 'E' && data[2] == 'L' && data[3] == 'F' {
			return FormatELF
		}
		magic := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		switch magic {
		case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe, // MH_MAGIC/_64 + swapped
			0xcafebabe, 0xbebafeca: // FAT_MAGIC + swapped (universal binary)
			return FormatMachO
		}
		if data[0] == 0x00 && data[1] == 0x61 && data[2] == 0x73 && data[3] == 0x6d {
			return FormatWasm
		}
	}
	return FormatUnknown
}

// Load parses one file's contents into an Input. It does not resolve
// archive-member pull-in (that is S2's job); an archive's every member
// is parsed eagerly here.
func Load(path string, data []byte) (*Input, error) {
	if len(data) >= 8 && string(data[:8]) == "!<arch>\n" {
		ar, err := parseArchive(path, data)
		if err != nil {
			return nil, err
		}
		return &Input{Kind: KindArchive, Archive: ar}, nil
	}

	switch sniff(data) {
	case FormatELF:
		obj, err := parseELFObject(path, data)
		if err != nil {
			return nil, err
		}
		return &Input{Kind: KindObject, Object: obj}, nil

	case FormatMachO:
		if dylib, isDylib, err := tryParseDylib(path, data); err != nil {
			return nil, err
		} else if isDylib {
			return &Input{Kind: KindDylibStub, Dylib: dylib}, nil
		}
		obj, err := parseMachOObject(path, data)
		if err != nil {
			return nil, err
		}
		return &Input{Kind: KindObject, Object: obj}, nil

	case FormatWasm:
		obj, err := parseWasmObject(path, data)
		if err != nil {
			return nil, err
		}
		return &Input{Kind: KindObject, Object: obj}, nil
	}

	return nil, &NotObjectError{Path: path}
}

// elfMachineSupported reports whether e_machine is one of the two ISAs
// spec.md §1 scopes this linker to.
func elfMachineSupported(m elf.Machine) bool {
	return m == elf.EM_X86_64 || m == elf.EM_AARCH64
}
