package macho

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/layout"
	"github.com/moosichu/zld/internal/stab"
	"github.com/moosichu/zld/internal/symtab"
	"github.com/moosichu/zld/pkg/codesign"
	cstypes "github.com/moosichu/zld/pkg/codesign/types"
	"github.com/moosichu/zld/pkg/trie"
	"github.com/moosichu/zld/types"
)

// WriterSegment is one output LC_SEGMENT_64 the writer emits, carrying
// the layout.Segment plus the layout.Sections living in it in file
// order, mirroring how internal/layout.Plan groups sections under
// segments (spec.md §4.5 step 3).
type WriterSegment struct {
	Seg      *layout.Segment
	Sections []*layout.Section
}

// Writer assembles the final Mach-O image for one link: the segment
// load commands and their section contents, the symtab/dysymtab and
// string table, dyld rebase/bind/weak-bind/export-trie streams, an
// ad-hoc code signature, and a UUID hashed over everything else
// (spec.md §4.7's Mach-O finalizer). No lazy-bind stream is emitted.
type Writer struct {
	Plan     *layout.Plan
	Segments []WriterSegment
	Globals  *symtab.Table
	Locs     *atom.LocationIndex
	CPU      types.CPU
	SubCPU   uint32
	Dylibs   []DylibLoad
	Exec     bool // true for a final executable, false for -r/dylib style output (spec.md scopes Exec-only)
	EntryOff uint64
	EntrySeg string

	// Rebases and Binds are pointer-sized fixup locations: Rebases need an
	// ASLR-slide adjustment at load time, Binds need the dylib symbol's
	// runtime address looked up and stored. Both feed LC_DYLD_INFO_ONLY's
	// classic opcode streams rather than chained fixups, matching the
	// dyld_info_command this writer already emits. internal/linker's
	// finalizeMachO does not fill either field, so its output carries
	// empty rebase and bind streams.
	Rebases []RebaseEntry
	Binds   []BindEntry

	// Stabs are the N_SO/N_OSO/N_FUN debugging symbol table entries
	// internal/stab built from each input object's DWARF compile-unit
	// info (spec.md §4.7); they're written ahead of the regular symbol
	// table entries, the way ld64 groups stabs before externs.
	Stabs []stab.Entry
}

// DylibLoad is one LC_LOAD_DYLIB this link emits, in ordinal order
// (ordinal 1 is Dylibs[0]).
type DylibLoad struct {
	Path    string
	Weak    bool
	Ordinal int
}

// Write renders the complete Mach-O file.
func (w *Writer) Write() ([]byte, error) {
	var cmdBuf bytes.Buffer
	var ncmds uint32
	bo := binary.LittleEndian

	for i := range w.Segments {
		ws := &w.Segments[i]
		seg := ws.Seg
		segCmd := &Segment{
			SegmentHeader: SegmentHeader{
				LoadCmd: types.LC_SEGMENT_64,
				Name:    seg.Name,
				Addr:    seg.VMAddr,
				Memsz:   seg.VMSize,
				Offset:  seg.FileOffset,
				Filesz:  seg.FileSize,
				Maxprot: types.VmProtection(7),
				Prot:    types.VmProtection(segmentProt(seg.Prot)),
				Nsect:   uint32(len(ws.Sections)),
			},
		}
		segCmd.Len = segCmd.LoadSize(nil)
		if err := segCmd.Write(&cmdBuf, bo); err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
		}
		for _, sec := range ws.Sections {
			sh := Section{SectionHeader: SectionHeader{
				Name:   sec.Name,
				Seg:    seg.Name,
				Addr:   sec.VMAddr,
				Size:   sec.Size,
				Offset: uint32(sec.FileOffset),
				Align:  uint32(sec.AlignLog2),
				Flags:  types.SectionFlag(sec.Flags),
			}}
			b := make([]byte, 80)
			n := sh.Put64(b, bo)
			cmdBuf.Write(b[:n])
		}
		ncmds++
	}

	symoff, strtabBytes, symEntries, err := w.buildSymtab()
	if err != nil {
		return nil, err
	}

	// Body: section contents, file-offset ordered, with segment/section
	// headers already accounting for their placement.
	var body bytes.Buffer
	w.writeSegmentContents(&body)

	linkeditStart := int64(body.Len())

	symtabCmd := &Symtab{}
	symtabCmd.LoadCmd = types.LC_SYMTAB
	symtabCmd.Symoff = uint32(linkeditStart) + symoff
	symtabCmd.Nsyms = uint32(len(symEntries))
	symtabCmd.Stroff = symtabCmd.Symoff + uint32(len(symEntries))*16
	symtabCmd.Strsize = uint32(len(strtabBytes))
	symtabCmd.Len = uint32(24)

	for _, e := range symEntries {
		eb := make([]byte, 16)
		bo.PutUint32(eb[0:], e.nameOff)
		eb[4] = byte(e.ntype)
		eb[5] = e.sect
		bo.PutUint16(eb[6:], e.desc)
		bo.PutUint64(eb[8:], e.value)
		body.Write(eb)
	}
	body.Write(strtabBytes)

	if err := symtabCmd.Write(&cmdBuf, bo); err != nil {
		return nil, err
	}
	ncmds++

	// Export trie: every externally-visible defined global.
	var exportEntries []trie.TrieEntry
	for _, g := range w.Globals.Globals() {
		if g.Kind != symtab.KindDefined && g.Kind != symtab.KindTentative {
			continue
		}
		addr, ok := w.Locs.Address(w.Plan.Pool, g.Def)
		if !ok {
			continue
		}
		exportEntries = append(exportEntries, trie.TrieEntry{Name: g.Name, Address: addr})
	}
	rebaseBytes := EncodeRebase(w.Rebases)
	rebaseOff := int64(body.Len())
	body.Write(rebaseBytes)
	padTo(&body, 4)

	var strongBinds, weakBinds []BindEntry
	for _, b := range w.Binds {
		if b.Weak {
			weakBinds = append(weakBinds, b)
		} else {
			strongBinds = append(strongBinds, b)
		}
	}
	bindBytes := EncodeBind(strongBinds)
	bindOff := int64(body.Len())
	body.Write(bindBytes)
	padTo(&body, 4)

	weakBindBytes := EncodeBind(weakBinds)
	weakBindOff := int64(body.Len())
	body.Write(weakBindBytes)
	padTo(&body, 4)

	exportTrieBytes := trie.BuildTrie(exportEntries)
	exportOff := int64(body.Len())
	body.Write(exportTrieBytes)
	padTo(&body, 8)

	dyldInfo := &DyldInfoOnly{}
	dyldInfo.LoadCmd = types.LC_DYLD_INFO_ONLY
	dyldInfo.Len = 48
	dyldInfo.RebaseOff = uint32(linkeditStart + rebaseOff)
	dyldInfo.RebaseSize = uint32(len(rebaseBytes))
	dyldInfo.BindOff = uint32(linkeditStart + bindOff)
	dyldInfo.BindSize = uint32(len(bindBytes))
	dyldInfo.WeakBindOff = uint32(linkeditStart + weakBindOff)
	dyldInfo.WeakBindSize = uint32(len(weakBindBytes))
	dyldInfo.ExportOff = uint32(linkeditStart + exportOff)
	dyldInfo.ExportSize = uint32(len(exportTrieBytes))
	if err := dyldInfo.Write(&cmdBuf, bo); err != nil {
		return nil, err
	}
	ncmds++

	for _, d := range w.Dylibs {
		cmd := types.LC_LOAD_DYLIB
		if d.Weak {
			cmd = types.LC_LOAD_WEAK_DYLIB
		}
		nameOff := uint32(24)
		entry := make([]byte, align4(int(nameOff)+len(d.Path)+1))
		bo.PutUint32(entry[0:], uint32(cmd))
		bo.PutUint32(entry[4:], uint32(len(entry)))
		bo.PutUint32(entry[8:], nameOff)
		copy(entry[nameOff:], d.Path)
		cmdBuf.Write(entry)
		ncmds++
	}

	if w.Exec {
		entry := make([]byte, 24)
		bo.PutUint32(entry[0:], uint32(types.LC_MAIN))
		bo.PutUint32(entry[4:], 24)
		bo.PutUint64(entry[8:], w.EntryOff)
		cmdBuf.Write(entry)
		ncmds++
	}

	uuidOff := cmdBuf.Len()
	uuidEntry := make([]byte, 24)
	bo.PutUint32(uuidEntry[0:], uint32(types.LC_UUID))
	bo.PutUint32(uuidEntry[4:], 24)
	cmdBuf.Write(uuidEntry)
	ncmds++

	// LC_CODE_SIGNATURE: offset and size are back-patched below once the
	// signature itself is computed over the fully-assembled, unsigned
	// file (ad-hoc code signing always trails every other linkedit
	// stream, per spec.md §4.7).
	csCmdOff := cmdBuf.Len()
	csEntry := make([]byte, 16)
	bo.PutUint32(csEntry[0:], uint32(types.LC_CODE_SIGNATURE))
	bo.PutUint32(csEntry[4:], 16)
	cmdBuf.Write(csEntry)
	ncmds++

	hdr := types.FileHeader{
		Magic:        types.Magic64,
		CPU:          w.CPU,
		SubCPU:       w.SubCPU,
		Type:         types.MH_EXECUTE,
		NCommands:    ncmds,
		SizeCommands: uint32(cmdBuf.Len()),
		Flags:        types.HeaderFlag(0x00200085), // NoUndefs | DyldLink | TwoLevel | PIE
	}
	if !w.Exec {
		hdr.Type = types.MH_OBJECT
	}

	var out bytes.Buffer
	headerBytes := make([]byte, headerSize())
	hdr.Put(headerBytes)
	out.Write(headerBytes)
	out.Write(cmdBuf.Bytes())
	out.Write(body.Bytes())
	final := out.Bytes()

	sum := md5.Sum(final)
	uuidField := final[headerSize()+uuidOff+8 : headerSize()+uuidOff+24]
	copy(uuidField, sum[:])

	csDataOff := uint32(len(final))
	csSize := cstypes.Size(int64(len(final)), "a.out")
	sig := make([]byte, csSize)
	codesign.AdHocSign(sig, bytes.NewReader(final), "a.out", int64(len(final)), 0, 0, w.Exec)

	// Patch LC_CODE_SIGNATURE's dataoff/datasize now that the signature's
	// position and length are known; the command itself was reserved
	// earlier so ncmds/sizeofcmds already account for it.
	csCmd := final[headerSize()+csCmdOff : headerSize()+csCmdOff+16]
	bo.PutUint32(csCmd[8:], csDataOff)
	bo.PutUint32(csCmd[12:], uint32(csSize))

	final = append(final, sig...)

	return final, nil
}

func segmentProt(p layout.Protection) int32 {
	var v int32
	if p&layout.ProtRead != 0 {
		v |= 1
	}
	if p&layout.ProtWrite != 0 {
		v |= 2
	}
	if p&layout.ProtExecute != 0 {
		v |= 4
	}
	return v
}

type symEntry struct {
	nameOff uint32
	ntype   uint8
	sect    uint8
	desc    uint16
	value   uint64
}

func (w *Writer) buildSymtab() (uint32, []byte, []symEntry, error) {
	var strbuf bytes.Buffer
	strbuf.WriteByte(0)
	nameOff := make(map[string]uint32)
	addName := func(name string) uint32 {
		if name == "" {
			return 0
		}
		if off, ok := nameOff[name]; ok {
			return off
		}
		off := uint32(strbuf.Len())
		strbuf.WriteString(name)
		strbuf.WriteByte(0)
		nameOff[name] = off
		return off
	}

	var entries []symEntry
	for _, s := range w.Stabs {
		entries = append(entries, symEntry{
			nameOff: addName(s.Name),
			ntype:   s.Type,
			sect:    s.Sect,
			desc:    s.Desc,
			value:   s.Value,
		})
	}
	for _, g := range w.Globals.Globals() {
		var ntype uint8 = 0x0f // N_SECT | N_EXT
		var sect uint8
		var value uint64
		if g.Kind == symtab.KindDefined || g.Kind == symtab.KindTentative {
			if addr, ok := w.Locs.Address(w.Plan.Pool, g.Def); ok {
				value = addr
			}
		} else {
			ntype = 0x01 // N_UNDF | N_EXT
		}
		entries = append(entries, symEntry{
			nameOff: addName(g.Name),
			ntype:   ntype,
			sect:    sect,
			value:   value,
		})
	}
	return 0, strbuf.Bytes(), entries, nil
}

func (w *Writer) writeSegmentContents(body *bytes.Buffer) {
	for i := range w.Segments {
		for _, sec := range w.Segments[i].Sections {
			for int64(body.Len()) < int64(sec.FileOffset) {
				body.WriteByte(0)
			}
			sec.Chain.Walk(w.Plan.Pool, func(_ atom.Index, a *atom.Atom) bool {
				if a.Zerofill {
					return true
				}
				for int64(body.Len()) < int64(a.FileOffset) {
					body.WriteByte(0)
				}
				body.Write(a.Payload)
				return true
			})
		}
	}
}

func align4(n int) int { return (n + 3) &^ 3 }

func padTo(b *bytes.Buffer, align int) {
	for b.Len()%align != 0 {
		b.WriteByte(0)
	}
}

func headerSize() int { return 32 } // sizeof(mach_header_64)
