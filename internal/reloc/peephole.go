package reloc

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/moosichu/zld/internal/atom"
)

// instructionStart walks backward from the fixup's field offset to find
// where the enclosing instruction begins, by re-decoding from a handful
// of plausible start points and keeping the one whose decoded length
// lands exactly on the field offset. x86 has no fixed instruction
// length, so this is the standard trick peephole rewriters use rather
// than tracking instruction boundaries through the whole payload.
func instructionStart(payload []byte, fieldOff uint32) (int, bool) {
	const maxInstrLen = 15
	lo := int(fieldOff) - maxInstrLen
	if lo < 0 {
		lo = 0
	}
	for start := lo; start < int(fieldOff); start++ {
		inst, err := x86asm.Decode(payload[start:], 64)
		if err != nil {
			continue
		}
		if start+inst.Len == int(fieldOff)+4 {
			return start, true
		}
	}
	return 0, false
}

// RewriteX86_64GOTLoad inspects the instruction containing relocation r
// (a REX_GOTPCRELX or GOTPCRELX fixup whose target turned out to be
// locally defined) and, if it recognizes a rip-relative mov or cmp
// shape, rewrites the opcode byte in place per spec.md §4.6:
//
//	mov reg, [rip+disp]  -> lea reg, [rip+disp]      (opcode 0x8b -> 0x8d; lea shares mov's ModRM form, and the relocation type changes to PC32)
//	cmp reg, [rip+disp]  -> cmp reg, imm32            (opcode 0x3b -> 0x81 /7, operand becomes an immediate)
//
// Returns the PeepholeKind actually applied (PeepholeNone if the
// instruction shape wasn't one of the two recognized forms, in which
// case the GOT indirection must be kept).
func RewriteX86_64GOTLoad(a *atom.Atom, r atom.Relocation) PeepholeKind {
	start, ok := instructionStart(a.Payload, r.Offset)
	if !ok {
		return PeepholeNone
	}
	inst, err := x86asm.Decode(a.Payload[start:], 64)
	if err != nil {
		return PeepholeNone
	}

	switch inst.Op {
	case x86asm.MOV:
		// mov reg, [rip+disp32] -> lea reg, [rip+disp32]: opcode 0x8B -> 0x8D.
		if start < len(a.Payload) {
			opcodeOff := opcodeByteOffset(a.Payload[start:], inst)
			if opcodeOff < 0 {
				return PeepholeNone
			}
			a.Payload[start+opcodeOff] = 0x8d
		}
		return PeepholeMovToLea

	case x86asm.CMP:
		// cmp reg, [rip+disp32] -> cmp r/m64, imm32: rewritten to opcode
		// 0x81 /7 with the GOT pointer's former disp32 field reused to
		// carry the immediate (the caller overwrites it with the resolved
		// value via RewrittenType's R_X86_64_32 handling).
		if start < len(a.Payload) {
			opcodeOff := opcodeByteOffset(a.Payload[start:], inst)
			if opcodeOff < 0 || opcodeOff+1 >= len(a.Payload[start:]) {
				return PeepholeNone
			}
			a.Payload[start+opcodeOff] = 0x81
			// The register operand moves from ModRM.reg to ModRM.rm with
			// mod=11, and REX.R moves to REX.B along with it.
			modrm := a.Payload[start+opcodeOff+1]
			modrm = 0xc0 | (7 << 3) | ((modrm >> 3) & 7)
			a.Payload[start+opcodeOff+1] = modrm
			if opcodeOff > 0 && a.Payload[start+opcodeOff-1]&0xf4 == 0x44 {
				a.Payload[start+opcodeOff-1] = a.Payload[start+opcodeOff-1]&^0x04 | 0x01
			}
		}
		return PeepholeCmpToImm
	}
	return PeepholeNone
}

// opcodeByteOffset locates the primary opcode byte within a decoded
// instruction's encoding, accounting for a possible REX prefix. Only
// single-byte-opcode forms (the ones GOTPCRELX ever produces) are
// handled; anything else is reported as not found so the caller leaves
// the GOT indirection in place rather than corrupt an unexpected
// encoding.
func opcodeByteOffset(enc []byte, inst x86asm.Inst) int {
	i := 0
	for i < len(enc) && enc[i] >= 0x40 && enc[i] <= 0x4f {
		i++
	}
	if i >= len(enc) {
		return -1
	}
	return i
}
