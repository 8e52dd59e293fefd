package input

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/moosichu/zld/internal/symtab"
)

// parseELFObject reads a relocatable ELF object using the standard
// library's reader (the same approach aclements/objbrowse's internal/obj
// package takes for read-only ELF introspection) and lowers it into our
// input-local Section/Symbol model.
func parseELFObject(path string, data []byte) (*Object, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if ef.Type != elf.ET_REL {
		return nil, fmt.Errorf("%s: not a relocatable ELF object (type %s)", path, ef.Type)
	}
	if !elfMachineSupported(ef.Machine) {
		return nil, fmt.Errorf("%s: unsupported ELF machine %s", path, ef.Machine)
	}

	obj := &Object{Format: FormatELF, Path: path}

	secIndex := make(map[*elf.Section]int)
	for i, s := range ef.Sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_SYMTAB || s.Type == elf.SHT_STRTAB ||
			s.Type == elf.SHT_REL || s.Type == elf.SHT_RELA {
			continue
		}
		sec := Section{
			Name:      s.Name,
			Zerofill:  s.Type == elf.SHT_NOBITS,
			AlignLog2: log2(s.Addralign),
			// ELF has no subsections-via-symbols flag: every section's
			// contents are already split at symbol granularity only by
			// convention, so Subdividable is false. atom.Split falls
			// back to treating the whole section as one atom unless a
			// language runtime marks it otherwise. (spec.md §4.3 scopes
			// subsections-via-symbols splitting to Mach-O.)
			Subdividable: false,
		}
		if !sec.Zerofill {
			d, derr := s.Data()
			if derr != nil {
				return nil, fmt.Errorf("%s: section %s: %w", path, s.Name, derr)
			}
			sec.Data = d
		}
		secIndex[s] = len(obj.Sections)
		obj.Sections = append(obj.Sections, sec)
	}

	syms, serr := ef.Symbols()
	if serr != nil && serr != elf.ErrNoSymbols {
		return nil, fmt.Errorf("%s: %w", path, serr)
	}
	obj.Symbols = make([]symtab.Symbol, len(syms))
	for i, s := range syms {
		obj.Symbols[i] = lowerELFSymbol(ef, s, secIndex)
	}

	for _, s := range ef.Sections {
		si, ok := secIndex[s]
		if !ok {
			continue
		}
		relSec := findELFRelocSection(ef, s)
		if relSec == nil {
			continue
		}
		relocs, rerr := decodeELFRelocs(ef, relSec)
		if rerr != nil {
			return nil, fmt.Errorf("%s: %w", path, rerr)
		}
		obj.Sections[si].Relocs = relocs
	}

	return obj, nil
}

func log2(n uint64) uint8 {
	var l uint8
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

func lowerELFSymbol(ef *elf.File, s elf.Symbol, secIndex map[*elf.Section]int) symtab.Symbol {
	out := symtab.Symbol{
		Name:  s.Name,
		Value: s.Value,
		Size:  s.Size,
		Type:  uint8(s.Info),
	}
	switch elf.ST_BIND(s.Info) {
	case elf.STB_LOCAL:
		out.Binding = symtab.BindLocal
	case elf.STB_WEAK:
		out.Binding = symtab.BindWeak
	default:
		out.Binding = symtab.BindGlobal
	}
	switch {
	case s.Section == elf.SHN_UNDEF:
		out.Kind = symtab.KindUndefined
		out.SectionIndex = -1
	case s.Section == elf.SHN_COMMON:
		out.Kind = symtab.KindTentative
		out.SectionIndex = -1
		out.Align = log2(s.Value) // COMMON stores alignment in Value
	case s.Section == elf.SHN_ABS:
		out.Kind = symtab.KindAbsolute
		out.SectionIndex = -1
	default:
		out.Kind = symtab.KindDefined
		out.SectionIndex = -1
		if int(s.Section) < len(ef.Sections) {
			if si, ok := secIndex[ef.Sections[s.Section]]; ok {
				out.SectionIndex = si
			}
		}
	}
	if elf.ST_VISIBILITY(s.Other) == elf.STV_HIDDEN {
		out.Visibility = symtab.VisHidden
	}
	return out
}

func findELFRelocSection(ef *elf.File, target *elf.Section) *elf.Section {
	for _, s := range ef.Sections {
		if (s.Type == elf.SHT_REL || s.Type == elf.SHT_RELA) && int(s.Info) < len(ef.Sections) && ef.Sections[s.Info] == target {
			return s
		}
	}
	return nil
}

// decodeELFRelocs decodes a relocation section's entries into our
// input-local Relocation model. Only SHT_RELA (explicit addend) entries
// are decoded; a SHT_REL section yields no relocations. x86-64 and
// aarch64 ELF objects use RELA.
func decodeELFRelocs(ef *elf.File, relSec *elf.Section) ([]Relocation, error) {
	data, err := relSec.Data()
	if err != nil {
		return nil, err
	}
	var out []Relocation
	const relaEntSize = 24
	if relSec.Type == elf.SHT_RELA {
		for off := 0; off+relaEntSize <= len(data); off += relaEntSize {
			fieldOffset := ef.ByteOrder.Uint64(data[off:])
			info := ef.ByteOrder.Uint64(data[off+8:])
			addend := int64(ef.ByteOrder.Uint64(data[off+16:]))
			symIdx := uint32(info >> 32)
			typ := uint32(info)
			out = append(out, Relocation{
				Offset: uint32(fieldOffset),
				Length: elfRelocLength(typ),
				Target: symtab.SymbolRef{SymIndex: symIdx},
				Type:   uint16(typ),
				Addend: addend,
				PCRel:  elfRelocPCRel(typ),
			})
		}
	}
	return out, nil
}

func elfRelocLength(typ uint32) uint8 {
	switch typ {
	case 1, 257: // R_X86_64_64, R_AARCH64_ABS64
		return 8
	default:
		return 4
	}
}

func elfRelocPCRel(typ uint32) bool {
	switch typ {
	case 2, 4, 9, 41, 42, 283, 282: // PC32/PLT32/GOTPCREL(X)/CALL26/JUMP26
		return true
	}
	return false
}
