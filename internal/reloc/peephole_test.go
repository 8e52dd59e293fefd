package reloc

import (
	"testing"

	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/symtab"
)

func TestClassifyPeephole(t *testing.T) {
	cases := []struct {
		t     Type
		local bool
		want  PeepholeKind
	}{
		{X86_64_REX_GOTPCRELX, true, PeepholeMovToLea},
		{X86_64_GOTPCRELX, true, PeepholeMovToLea},
		{X86_64_REX_GOTPCRELX, false, PeepholeNone},
		{X86_64_GOTPCREL, true, PeepholeNone},
	}
	for _, c := range cases {
		if got := ClassifyPeephole(c.t, c.local); got != c.want {
			t.Errorf("ClassifyPeephole(%v, %v) = %v, want %v", c.t, c.local, got, c.want)
		}
	}
}

func TestRewriteX86_64GOTLoadMovToLea(t *testing.T) {
	// 48 8b 05 00 00 00 00 -> mov rax, [rip+0]; the disp32 field (offset 3)
	// is where the GOTPCRELX relocation's fixup lands.
	payload := []byte{0x48, 0x8b, 0x05, 0x00, 0x00, 0x00, 0x00}
	a := &atom.Atom{Payload: payload}
	r := atom.Relocation{Offset: 3, Length: 4, Target: symtab.SymbolRef{}, Type: uint16(X86_64_REX_GOTPCRELX)}

	kind := RewriteX86_64GOTLoad(a, r)
	if kind != PeepholeMovToLea {
		t.Fatalf("RewriteX86_64GOTLoad = %v, want PeepholeMovToLea", kind)
	}
	if a.Payload[1] != 0x8d {
		t.Errorf("opcode byte = %#x, want 0x8d (lea)", a.Payload[1])
	}
}

func TestRewriteX86_64GOTLoadUnrecognizedShape(t *testing.T) {
	// A NOP sled decodes fine but isn't a mov/cmp GOT-load shape.
	payload := []byte{0x90, 0x90, 0x90, 0x00, 0x00, 0x00, 0x00}
	a := &atom.Atom{Payload: payload}
	r := atom.Relocation{Offset: 3, Length: 4, Type: uint16(X86_64_REX_GOTPCRELX)}

	if kind := RewriteX86_64GOTLoad(a, r); kind != PeepholeNone {
		t.Errorf("RewriteX86_64GOTLoad on unrecognized shape = %v, want PeepholeNone", kind)
	}
}

func TestRewrittenType(t *testing.T) {
	if got := RewrittenType(PeepholeMovToLea); got != X86_64_PC32 {
		t.Errorf("RewrittenType(PeepholeMovToLea) = %v, want X86_64_PC32", got)
	}
}
