package reloc

import (
	"encoding/binary"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/moosichu/zld/internal/atom"
)

// pageOf truncates an address to its 4 KiB page, per aarch64 ADRP/PAGE21
// semantics (spec.md §4.6).
func pageOf(addr uint64) uint64 { return addr &^ 0xfff }

// pageOffset21 computes the ADRP immediate: the signed number of 4 KiB
// pages between the instruction's own page and the target's page.
func pageOffset21(instrAddr, targetAddr uint64) int32 {
	return int32((int64(pageOf(targetAddr)) - int64(pageOf(instrAddr))) >> 12)
}

// encodeADRPImm packs a 21-bit signed page delta into an ADRP
// instruction's immlo/immhi fields (bits [30:29] and [23:5]).
func encodeADRPImm(instr uint32, imm21 int32) uint32 {
	u := uint32(imm21) & 0x1fffff
	immlo := u & 0x3
	immhi := (u >> 2) & 0x7ffff
	instr &^= (0x3 << 29) | (0x7ffff << 5)
	instr |= immlo << 29
	instr |= immhi << 5
	return instr
}

// encodePageOff12 packs a 12-bit page offset into the imm12 field shared
// by ADD (immediate) and LDR/STR (unsigned immediate) encodings. scale
// is log2 of the LDR/STR access size (0 for ADD or byte loads, 3 for a
// 64-bit load). spec.md §4.6's PAGEOFF12/LDST_ABS_LO12_NC variants
// right-shift the byte offset by the access size before packing it.
func encodePageOff12(instr uint32, byteOffset uint32, scale uint) uint32 {
	imm12 := (byteOffset >> scale) & 0xfff
	instr &^= 0xfff << 10
	instr |= imm12 << 10
	return instr
}

// encodeBranch26 packs a ±128 MiB word-aligned displacement into a B/BL
// instruction's imm26 field.
func encodeBranch26(instr uint32, disp int64) uint32 {
	imm26 := uint32(disp>>2) & 0x3ffffff
	instr &^= 0x3ffffff
	instr |= imm26
	return instr
}

// WriteAArch64 patches one relocation's fixup for the already-resolved
// target address. ldrScale is the access-size shift for
// LDST_ABS_LO12_NC-class fixups (ignored for every other type).
func WriteAArch64(a *atom.Atom, r atom.Relocation, targetAddr uint64, ldrScale uint) {
	fieldAddr := a.Address + uint64(r.Offset)
	buf := a.Payload[r.Offset : r.Offset+4]
	instr := binary.LittleEndian.Uint32(buf)
	target := uint64(int64(targetAddr) + r.Addend)

	switch Type(r.Type) {
	case AArch64_ABS64:
		binary.LittleEndian.PutUint64(a.Payload[r.Offset:r.Offset+8], target)
		return

	case AArch64_ADR_PREL_PG_HI21, AArch64_ADR_GOT_PAGE:
		imm := pageOffset21(fieldAddr, target)
		instr = encodeADRPImm(instr, imm)

	case AArch64_ADD_ABS_LO12_NC:
		instr = encodePageOff12(instr, uint32(target&0xfff), 0)

	case AArch64_LDST_ABS_LO12_NC, AArch64_LD64_GOT_LO12_NC:
		instr = encodePageOff12(instr, uint32(target&0xfff), ldrScale)

	case AArch64_TLSLE_ADD_TPREL_HI12:
		instr = encodePageOff12(instr, uint32((target>>12)&0xfff), 0)

	case AArch64_TLSLE_ADD_TPREL_LO12_NC:
		instr = encodePageOff12(instr, uint32(target&0xfff), 0)

	case AArch64_CALL26, AArch64_JUMP26:
		// A thunk-redirected relocation always lands on the BL/B this
		// linker's own compiler input emitted, but guard the immediate
		// field patch the same way peephole.go guards its x86 rewrite:
		// don't touch bits that don't decode as the branch we expect.
		if !isBranchInstruction(instr) {
			return
		}
		disp := int64(target) - int64(fieldAddr)
		instr = encodeBranch26(instr, disp)

	default:
		return
	}
	binary.LittleEndian.PutUint32(buf, instr)
}

// isBranchInstruction decodes word and reports whether it's a B or BL,
// the only two aarch64 opcodes a CALL26/JUMP26 fixup's 26-bit immediate
// field belongs to.
func isBranchInstruction(word uint32) bool {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	inst, err := arm64asm.Decode(buf[:])
	if err != nil {
		return false
	}
	return inst.Op == arm64asm.B || inst.Op == arm64asm.BL
}
