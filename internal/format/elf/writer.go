package elf

import (
	"bytes"
	"fmt"

	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/layout"
	"github.com/moosichu/zld/internal/reloc"
)

// Writer assembles the final ELF image from a laid-out Plan, per
// spec.md §4.7: "section contents -> program headers -> section header
// table", with the ELF header's shnum/shstrndx/entry fields filled in
// last once everything else's position is known.
type Writer struct {
	Plan     *layout.Plan
	Machine  uint16
	Entry    uint64
	Resolver *reloc.Resolver
}

// strtab accumulates a string table, returning each name's byte offset
// the way the Mach-O writer's own strtab builder does.
type strtab struct {
	buf    bytes.Buffer
	offset map[string]uint32
}

func newStrtab() *strtab {
	s := &strtab{offset: make(map[string]uint32)}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	if off, ok := s.offset[name]; ok {
		return off
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	s.offset[name] = off
	return off
}

// Write renders the complete ELF file.
func (w *Writer) Write() ([]byte, error) {
	shstrtab := newStrtab()
	var shdrNames []uint32
	shdrNames = append(shdrNames, shstrtab.add("")) // SHN_UNDEF

	var buf bytes.Buffer
	buf.Write(make([]byte, Header64Size)) // placeholder, patched at the end

	// Section contents, in Plan.Sections order (spec.md §4.5's
	// precedence-sorted order), each padded up to its alignment.
	type placedSection struct {
		sec    *layout.Section
		offset uint64
		shName uint32
	}
	var placed []placedSection
	for i := range w.Plan.Sections {
		sec := &w.Plan.Sections[i]
		if sec.Size == 0 {
			continue
		}
		for buf.Len()%int(uint64(1)<<sec.AlignLog2) != 0 {
			buf.WriteByte(0)
		}
		off := uint64(buf.Len())
		if !isNobits(sec) {
			if err := writeSectionAtoms(&buf, w.Plan.Pool, sec, w.Resolver, w.Machine); err != nil {
				return nil, fmt.Errorf("section %s: %w", sec.Name, err)
			}
		}
		placed = append(placed, placedSection{sec: sec, offset: off, shName: shstrtab.add(sec.Name)})
	}

	phoff := uint64(buf.Len())
	// Program headers: one PT_LOAD per segment (spec.md §4.7 step 2).
	var phdrs []ProgramHeader64
	for i := range w.Plan.Segments {
		seg := &w.Plan.Segments[i]
		if len(seg.SectionIndexes) == 0 {
			continue
		}
		phdrs = append(phdrs, ProgramHeader64{
			Type:   PT_LOAD,
			Flags:  segmentFlags(seg.Prot),
			Offset: seg.FileOffset,
			VAddr:  seg.VMAddr,
			PAddr:  seg.VMAddr,
			Filesz: seg.FileSize,
			Memsz:  seg.VMSize,
			Align:  0x1000,
		})
	}
	for _, p := range phdrs {
		b := make([]byte, ProgramHeader64Size)
		p.Put(b)
		buf.Write(b)
	}

	// Section header table (spec.md §4.7 step 3), NULL entry first.
	shoff := uint64(buf.Len())
	nullHdr := SectionHeader64{}
	nb := make([]byte, SectionHeader64Size)
	nullHdr.Put(nb)
	buf.Write(nb)

	for _, p := range placed {
		sh := SectionHeader64{
			Name:      p.shName,
			Type:      sectionType(p.sec),
			Flags:     sectionFlags(p.sec),
			Addr:      p.sec.VMAddr,
			Offset:    p.offset,
			Size:      p.sec.Size,
			Addralign: 1 << p.sec.AlignLog2,
		}
		b := make([]byte, SectionHeader64Size)
		sh.Put(b)
		buf.Write(b)
	}

	shstrndx := uint16(len(placed) + 1)
	shstrtabHdr := SectionHeader64{
		Name:      shstrtab.add(".shstrtab"),
		Type:      SHT_STRTAB,
		Offset:    uint64(buf.Len()),
		Size:      uint64(shstrtab.buf.Len()),
		Addralign: 1,
	}
	sb := make([]byte, SectionHeader64Size)
	shstrtabHdr.Put(sb)
	buf.Write(sb)
	buf.Write(shstrtab.buf.Bytes())

	out := buf.Bytes()
	hdr := Header64{
		Type:      ET_EXEC,
		Machine:   w.Machine,
		Version:   EV_CURRENT,
		Entry:     w.Entry,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    Header64Size,
		Phentsize: ProgramHeader64Size,
		Phnum:     uint16(len(phdrs)),
		Shentsize: SectionHeader64Size,
		Shnum:     uint16(len(placed) + 2), // NULL + sections + shstrtab
		Shstrndx:  shstrndx,
	}
	hdr.Ident[EI_MAG0] = 0x7f
	hdr.Ident[EI_MAG1] = 'E'
	hdr.Ident[EI_MAG2] = 'L'
	hdr.Ident[EI_MAG3] = 'F'
	hdr.Ident[EI_CLASS] = ELFCLASS64
	hdr.Ident[EI_DATA] = ELFDATA2LSB
	hdr.Ident[EI_VERSION] = EV_CURRENT
	hdr.Ident[EI_OSABI] = ELFOSABI_NONE
	hdr.Put(out[:Header64Size])

	return out, nil
}

func max8(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func isNobits(sec *layout.Section) bool {
	return sec.Name == ".bss" || sec.Name == ".tbss"
}

func segmentFlags(prot layout.Protection) uint32 {
	var f uint32
	if prot&layout.ProtRead != 0 {
		f |= PF_R
	}
	if prot&layout.ProtWrite != 0 {
		f |= PF_W
	}
	if prot&layout.ProtExecute != 0 {
		f |= PF_X
	}
	return f
}

func sectionType(sec *layout.Section) uint32 {
	if isNobits(sec) {
		return SHT_NOBITS
	}
	return SHT_PROGBITS
}

func sectionFlags(sec *layout.Section) uint64 {
	f := uint64(SHF_ALLOC)
	if sec.Name == ".text" {
		f |= SHF_EXECINSTR
	}
	if sec.Name == ".data" || sec.Name == ".bss" {
		f |= SHF_WRITE
	}
	return f
}

// writeSectionAtoms walks sec's atom chain in order and writes each
// atom's final payload (relocations already applied by
// internal/reloc's writers before the finalizer runs).
func writeSectionAtoms(buf *bytes.Buffer, pool *atom.Pool, sec *layout.Section, resolver *reloc.Resolver, machine uint16) error {
	var werr error
	sec.Chain.Walk(pool, func(idx atom.Index, a *atom.Atom) bool {
		if a.Zerofill {
			return true
		}
		pad := int64(a.FileOffset) - int64(buf.Len())
		if pad > 0 {
			buf.Write(make([]byte, pad))
		}
		buf.Write(a.Payload)
		return true
	})
	return werr
}
