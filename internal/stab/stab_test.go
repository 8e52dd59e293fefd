package stab

import "testing"

func TestDwarfSuffix(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"__debug_info", "info"},
		{"__debug_str", "str"},
		{"__zdebug_line", "line"},
		{"__apple_names", "names"},
		{"__text", ""},
		{"__cstring", ""},
	}
	for _, c := range cases {
		if got := dwarfSuffix(c.name); got != c.want {
			t.Errorf("dwarfSuffix(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMaybeInflateUncompressed(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5}
	out, err := maybeInflate(in)
	if err != nil {
		t.Fatalf("maybeInflate: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("maybeInflate changed length of non-ZLIB input: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("maybeInflate mutated non-ZLIB input at %d", i)
		}
	}
}

func TestBuildNoDebugInfoIsNotAnError(t *testing.T) {
	secs := []Section{{Name: "__text", Data: []byte{0x90}}}
	entries, err := Build("/tmp/in.o", secs, nil, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if entries != nil {
		t.Fatalf("Build with no __debug_info section should return no entries, got %d", len(entries))
	}
}

func TestBeUint64(t *testing.T) {
	b := []byte{0, 0, 0, 0, 0, 0, 0x01, 0x00}
	if got, want := beUint64(b), uint64(256); got != want {
		t.Errorf("beUint64 = %d, want %d", got, want)
	}
}
