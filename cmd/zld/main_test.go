package main

import (
	"testing"

	"github.com/moosichu/zld/internal/linker"
)

func TestBackendFor(t *testing.T) {
	cases := []struct {
		argv0 string
		want  backend
	}{
		{"/usr/bin/ld.zld", backendELF},
		{"ld", backendELF},
		{"/usr/bin/ld64.zld", backendMachO},
		{"ld64", backendMachO},
		{"link-zld", backendCOFF},
		{"wasm-zld", backendWasm},
		{"something-else", backendUnknown},
	}
	for _, c := range cases {
		if got := backendFor(c.argv0); got != c.want {
			t.Errorf("backendFor(%q) = %v, want %v", c.argv0, got, c.want)
		}
	}
}

func TestResolveEntry(t *testing.T) {
	if got := resolveEntry("_custom", backendELF); got != "_custom" {
		t.Errorf("resolveEntry with explicit name = %q, want _custom", got)
	}
	if got := resolveEntry("", backendMachO); got != "_main" {
		t.Errorf("resolveEntry default for Mach-O = %q, want _main", got)
	}
	if got := resolveEntry("", backendELF); got != "_start" {
		t.Errorf("resolveEntry default for ELF = %q, want _start", got)
	}
	if got := resolveEntry("", backendWasm); got != "" {
		t.Errorf("resolveEntry default for Wasm = %q, want empty", got)
	}
}

func TestTargetFor(t *testing.T) {
	tg := targetFor(backendMachO, "")
	if tg.OSTag != "darwin" || tg.CPUArch != linker.ArchAArch64 {
		t.Errorf("targetFor(MachO, \"\") = %+v, want darwin/arm64", tg)
	}
	tg = targetFor(backendELF, "amd64")
	if tg.OSTag != "linux" {
		t.Errorf("targetFor(ELF, amd64).OSTag = %q, want linux", tg.OSTag)
	}
}
