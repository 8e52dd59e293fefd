package input

import (
	"bytes"
	"fmt"

	macho "github.com/moosichu/zld/internal/format/macho"
	"github.com/moosichu/zld/internal/symtab"
	"github.com/moosichu/zld/types"
)

// parseMachOObject reads a relocatable Mach-O object (MH_OBJECT) using
// the teacher's NewFile reader and lowers it into our input-local
// model. Universal (fat) objects pick the first matching-arch slice.
func parseMachOObject(path string, data []byte) (*Object, error) {
	mf, err := openMachOSlice(path, data)
	if err != nil {
		return nil, err
	}
	if mf.FileHeader.Type != types.MH_OBJECT {
		return nil, fmt.Errorf("%s: not an MH_OBJECT", path)
	}

	obj := &Object{Format: FormatMachO, Path: path}
	secForIndex := make(map[int]int)
	for i, s := range mf.Sections {
		sec := Section{
			Name:         s.Name,
			AlignLog2:    uint8(s.Align),
			Zerofill:     s.Flags.IsZeroFill(),
			Subdividable: subsectionsFlag(mf),
		}
		if !sec.Zerofill {
			d, derr := s.Data()
			if derr != nil {
				return nil, fmt.Errorf("%s: section %s: %w", path, s.Name, derr)
			}
			sec.Data = d
		}
		secForIndex[i] = len(obj.Sections)
		obj.Sections = append(obj.Sections, sec)
	}

	obj.Symbols = make([]symtab.Symbol, len(mf.Symtab.Syms))
	for i, s := range mf.Symtab.Syms {
		obj.Symbols[i] = lowerMachOSymbol(s, secForIndex)
	}

	for i, s := range mf.Sections {
		si := secForIndex[i]
		for _, r := range s.Relocs {
			obj.Sections[si].Relocs = append(obj.Sections[si].Relocs, lowerMachOReloc(r))
		}
	}

	return obj, nil
}

// subsectionsFlag reports whether the Mach-O file's header carries
// MH_SUBSECTIONS_VIA_SYMBOLS, which spec.md §4.3 requires before a
// section may be split at symbol granularity.
func subsectionsFlag(mf *macho.File) bool {
	return mf.Flags.SubsectionsViaSymbols()
}

func lowerMachOSymbol(s macho.Symbol, secForIndex map[int]int) symtab.Symbol {
	out := symtab.Symbol{Name: s.Name, Value: s.Value, Type: uint8(s.Type)}
	switch {
	case s.Type.IsUndefinedSym():
		out.Kind = symtab.KindUndefined
		out.SectionIndex = -1
	case s.Type.IsAbsoluteSym():
		out.Kind = symtab.KindAbsolute
		out.SectionIndex = -1
	default:
		out.Kind = symtab.KindDefined
		out.SectionIndex = -1
		if int(s.Sect) >= 1 {
			if si, ok := secForIndex[int(s.Sect)-1]; ok {
				out.SectionIndex = si
			}
		}
	}
	if s.Type.IsExternalSym() {
		out.Binding = symtab.BindGlobal
	} else {
		out.Binding = symtab.BindLocal
	}
	if s.Desc.IsWeakDef() || s.Desc.IsWeakRef() {
		out.Binding = symtab.BindWeak
	}
	if s.Type.IsPrivateExternSym() {
		out.Visibility = symtab.VisPrivateExtern
	}
	return out
}

func lowerMachOReloc(r macho.Reloc) Relocation {
	return Relocation{
		Offset: r.Addr,
		Length: uint8(1) << r.Len,
		Target: symtab.SymbolRef{SymIndex: r.Value},
		Type:   uint16(r.Type),
		PCRel:  r.Pcrel,
	}
}

// openMachOSlice opens data as a Mach-O file, slicing a fat/universal
// container down to the first slice whose CPU type this linker
// supports (spec.md §4.1's fat-binary handling).
func openMachOSlice(path string, data []byte) (*macho.File, error) {
	if len(data) >= 4 {
		magic := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		if magic == types.MagicFat || magic == 0xbebafeca {
			return openFatSlice(path, data)
		}
	}
	mf, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mf, nil
}

// openFatSlice picks the x86_64 or arm64 slice out of a universal
// binary's fat_header/fat_arch table.
func openFatSlice(path string, data []byte) (*macho.File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%s: truncated fat header", path)
	}
	nfatArch := beUint32(data[4:8])
	const fatArchSize = 20
	off := 8
	for i := uint32(0); i < nfatArch; i++ {
		if off+fatArchSize > len(data) {
			break
		}
		cputype := beUint32(data[off:])
		sliceOff := beUint32(data[off+8:])
		sliceSize := beUint32(data[off+12:])
		if cputype == uint32(types.CPUAmd64) || cputype == uint32(types.CPUArm64) {
			if int(sliceOff+sliceSize) > len(data) {
				return nil, fmt.Errorf("%s: fat slice out of range", path)
			}
			mf, err := macho.NewFile(bytes.NewReader(data[sliceOff : sliceOff+sliceSize]))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return mf, nil
		}
		off += fatArchSize
	}
	return nil, fmt.Errorf("%s: no supported architecture in fat binary", path)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// tryParseDylib opens data as Mach-O and, if its filetype is
// MH_DYLIB or MH_DYLIB_STUB, lowers it to a DylibStub instead of an
// Object. A Mach-O file of any other filetype is reported by a false
// second result with a nil error, so the caller can go on to parse it
// as an object.
func tryParseDylib(path string, data []byte) (*DylibStub, bool, error) {
	mf, err := openMachOSlice(path, data)
	if err != nil {
		return nil, false, err
	}
	if mf.FileHeader.Type != types.MH_DYLIB && mf.FileHeader.Type != types.MH_DYLIB_STUB {
		return nil, false, nil
	}
	stub := &DylibStub{Path: path}
	if id := mf.DylibID(); id != nil {
		stub.InstallName = id.Name
	}
	for i := range mf.Symtab.Syms {
		s := mf.Symtab.Syms[i]
		if s.Type.IsUndefinedSym() {
			continue
		}
		if s.Desc.IsWeakDef() {
			stub.WeakSymbols = append(stub.WeakSymbols, s.Name)
		} else {
			stub.Symbols = append(stub.Symbols, s.Name)
		}
	}
	return stub, true, nil
}
