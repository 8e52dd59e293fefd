package macho

import (
	"bytes"

	"github.com/moosichu/zld/types"
)

// RebaseEntry is one pointer location this link must rebase at load
// time: a pointer-sized slot, identified by (segment index, offset
// within the segment), whose value dyld adjusts by the ASLR slide.
type RebaseEntry struct {
	SegIndex int
	SegOff   uint64
}

// BindEntry is one pointer location this link must bind to an
// imported symbol from a specific dylib ordinal at load time, with an
// addend applied after the symbol's runtime address is resolved.
type BindEntry struct {
	SegIndex int
	SegOff   uint64
	Ordinal  int
	Name     string
	Weak     bool
	Addend   int64
}

// EncodeRebase serializes entries as the classic (non-chained) rebase
// opcode stream LC_DYLD_INFO_ONLY's RebaseOff/RebaseSize describe.
// Entries are grouped by segment and emitted in ascending offset order
// so consecutive pointers collapse into a single
// DO_REBASE_ULEB_TIMES run, mirroring ld64's own rebase-info writer.
func EncodeRebase(entries []RebaseEntry) []byte {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]RebaseEntry(nil), entries...)
	sortRebase(sorted)

	var buf bytes.Buffer
	buf.WriteByte(byte(types.REBASE_OPCODE_SET_TYPE_IMM | types.REBASE_TYPE_POINTER))

	curSeg := -1
	curOff := uint64(0)
	run := 0
	flushRun := func() {
		if run == 0 {
			return
		}
		buf.WriteByte(byte(types.REBASE_OPCODE_DO_REBASE_ULEB_TIMES))
		writeULEB(&buf, uint64(run))
		run = 0
	}
	for _, e := range sorted {
		if e.SegIndex != curSeg {
			flushRun()
			buf.WriteByte(byte(types.REBASE_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB | (e.SegIndex & 0x0f)))
			writeULEB(&buf, e.SegOff)
			curSeg = e.SegIndex
			curOff = e.SegOff
			run = 1
			continue
		}
		if e.SegOff == curOff+8 {
			curOff = e.SegOff
			run++
			continue
		}
		flushRun()
		buf.WriteByte(byte(types.REBASE_OPCODE_ADD_ADDR_ULEB))
		// The flushed run already advanced the address one pointer past curOff.
		writeULEB(&buf, e.SegOff-(curOff+8))
		curOff = e.SegOff
		run = 1
	}
	flushRun()
	buf.WriteByte(byte(types.REBASE_OPCODE_DONE))
	return buf.Bytes()
}

// EncodeBind serializes entries as the classic bind opcode stream
// LC_DYLD_INFO_ONLY's BindOff/BindSize (or WeakBindOff/WeakBindSize
// for entries marked Weak) describe.
func EncodeBind(entries []BindEntry) []byte {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]BindEntry(nil), entries...)
	sortBind(sorted)

	var buf bytes.Buffer
	curSeg := -1
	curOrdinal := -2
	curName := ""
	curAddend := int64(0)
	for _, e := range sorted {
		if e.Ordinal != curOrdinal {
			if e.Ordinal <= 0 {
				buf.WriteByte(byte(types.BIND_OPCODE_SET_DYLIB_SPECIAL_IMM | (e.Ordinal & 0x0f)))
			} else if e.Ordinal <= 0x0f {
				buf.WriteByte(byte(types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM | e.Ordinal))
			} else {
				buf.WriteByte(byte(types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB))
				writeULEB(&buf, uint64(e.Ordinal))
			}
			curOrdinal = e.Ordinal
		}
		if e.Name != curName {
			flags := byte(0)
			if e.Weak {
				flags |= 0x1
			}
			buf.WriteByte(byte(types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM) | flags)
			buf.WriteString(e.Name)
			buf.WriteByte(0)
			curName = e.Name
		}
		if e.Addend != curAddend {
			buf.WriteByte(byte(types.BIND_OPCODE_SET_ADDEND_SLEB))
			writeSLEB(&buf, e.Addend)
			curAddend = e.Addend
		}
		buf.WriteByte(byte(types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB | (e.SegIndex & 0x0f)))
		writeULEB(&buf, e.SegOff)
		curSeg = e.SegIndex
		buf.WriteByte(byte(types.BIND_OPCODE_DO_BIND))
	}
	buf.WriteByte(byte(types.BIND_OPCODE_DONE))
	return buf.Bytes()
}

func sortRebase(e []RebaseEntry) {
	for i := 1; i < len(e); i++ {
		for j := i; j > 0 && less2(e[j].SegIndex, e[j].SegOff, e[j-1].SegIndex, e[j-1].SegOff); j-- {
			e[j], e[j-1] = e[j-1], e[j]
		}
	}
}

func sortBind(e []BindEntry) {
	for i := 1; i < len(e); i++ {
		for j := i; j > 0 && less2(e[j].SegIndex, e[j].SegOff, e[j-1].SegIndex, e[j-1].SegOff); j-- {
			e[j], e[j-1] = e[j-1], e[j]
		}
	}
}

func less2(segA int, offA uint64, segB int, offB uint64) bool {
	if segA != segB {
		return segA < segB
	}
	return offA < offB
}

func writeULEB(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

func writeSLEB(buf *bytes.Buffer, v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		buf.WriteByte(b)
	}
}
