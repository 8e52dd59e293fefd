package reloc

import (
	"encoding/binary"
	"testing"

	"github.com/moosichu/zld/internal/atom"
)

func TestIsBranchInstruction(t *testing.T) {
	cases := []struct {
		name string
		word uint32
		want bool
	}{
		{"b #0", 0x14000000, true},
		{"bl #0", 0x94000000, true},
		{"nop", 0xd503201f, false},
		{"adrp x16,#0", 0x90000010, false},
	}
	for _, c := range cases {
		if got := isBranchInstruction(c.word); got != c.want {
			t.Errorf("isBranchInstruction(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestWriteAArch64BranchEncodesDisplacement(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 0x14000000) // b #0
	a := &atom.Atom{Address: 0x1000, Payload: payload}
	r := atom.Relocation{Offset: 0, Length: 4, Type: uint16(AArch64_JUMP26)}

	WriteAArch64(a, r, 0x1000+16, 0)

	instr := binary.LittleEndian.Uint32(a.Payload)
	imm26 := instr & 0x3ffffff
	if want := uint32(16 >> 2); imm26 != want {
		t.Errorf("imm26 = %#x, want %#x", imm26, want)
	}
}

func TestWriteAArch64SkipsNonBranch(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 0xd503201f) // nop, not a branch
	orig := append([]byte(nil), payload...)
	a := &atom.Atom{Address: 0x1000, Payload: payload}
	r := atom.Relocation{Offset: 0, Length: 4, Type: uint16(AArch64_CALL26)}

	WriteAArch64(a, r, 0x2000, 0)

	for i := range orig {
		if a.Payload[i] != orig[i] {
			t.Fatalf("WriteAArch64 patched a non-branch instruction: got %x, want unchanged %x", a.Payload, orig)
		}
	}
}
