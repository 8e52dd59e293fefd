package reloc

import (
	"encoding/binary"

	"github.com/moosichu/zld/internal/atom"
)

// calcPCRelDisplacementX86 computes the 32-bit signed displacement for a
// PC-relative x86-64 fixup: value = S + A - P, where P is the address of
// the 4-byte field itself (spec.md §4.6 "calc_pc_rel_displacement_x86").
func calcPCRelDisplacementX86(fieldAddr, targetAddr uint64, addend int64) int32 {
	return int32(int64(targetAddr) + addend - int64(fieldAddr))
}

// WriteX86_64 patches one relocation's fixup into a's payload, given the
// already-resolved target address (after any GOT/stub/thunk
// indirection the caller applied) and whether the fixup field is
// PC-relative.
func WriteX86_64(a *atom.Atom, r atom.Relocation, targetAddr uint64) {
	fieldAddr := a.Address + uint64(r.Offset)
	buf := a.Payload[r.Offset:]

	if r.PCRel {
		disp := calcPCRelDisplacementX86(fieldAddr+uint64(r.Length), targetAddr, r.Addend)
		binary.LittleEndian.PutUint32(buf, uint32(disp))
		return
	}

	value := uint64(int64(targetAddr) + r.Addend)
	switch r.Length {
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(buf, value)
	}
}

// PeepholeKind is which of spec.md §4.6's four ELF x86-64 peephole
// rewrites applies to one GOTPCRELX-class relocation.
type PeepholeKind uint8

const (
	PeepholeNone PeepholeKind = iota
	PeepholeMovToLea          // REX_GOTPCRELX mov -> lea, GOTPCRELX -> PC32
	PeepholeCmpToImm          // REX_GOTPCRELX cmp -> cmp r/m64,imm32, -> R_X86_64_32
	PeepholeGotTpoffToImm     // GOTTPOFF mov -> immediate, -> TPOFF32
	PeepholeDtpoffToTpoff     // DTPOFF64, local target -> TPOFF32
)

// ClassifyPeephole decides which rewrite (if any) spec.md §4.6 allows
// for relocation type t given whether the target is locally defined.
// The actual instruction-shape recognition (mov vs cmp, REX prefix)
// happens in peephole.go via x86asm; this only encodes the
// type-to-rewrite table.
func ClassifyPeephole(t Type, localTarget bool) PeepholeKind {
	if !localTarget {
		return PeepholeNone
	}
	switch t {
	case X86_64_REX_GOTPCRELX, X86_64_GOTPCRELX:
		return PeepholeMovToLea // narrowed to Cmp by peephole.go's instruction decode
	case X86_64_GOTTPOFF:
		return PeepholeGotTpoffToImm
	case X86_64_DTPOFF64:
		return PeepholeDtpoffToTpoff
	}
	return PeepholeNone
}

// RewrittenType returns the relocation type a peephole rewrite changes
// the original relocation to, per spec.md §4.6's table. After the
// rewrite the addend is zeroed and the GOT entry may be omitted. The
// caller (internal/linker) is responsible for dropping the GOT slot if
// nothing else references it.
func RewrittenType(k PeepholeKind) Type {
	switch k {
	case PeepholeMovToLea:
		return X86_64_PC32
	case PeepholeCmpToImm:
		return X86_64_32
	case PeepholeGotTpoffToImm:
		return X86_64_TPOFF32
	case PeepholeDtpoffToTpoff:
		return X86_64_TPOFF32
	default:
		return 0
	}
}
