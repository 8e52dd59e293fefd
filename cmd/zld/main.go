// Command zld is the driver multiplexer spec.md §6 describes: it picks a
// backend from argv[0], fills in environment-derived defaults the way
// ld64 does, and hands a populated internal/linker.Options to the core.
// Flag parsing itself is explicitly out of scope for the linker core
// (spec.md §1), so everything below is deliberately thin.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/moosichu/zld/internal/linkctx"
	"github.com/moosichu/zld/internal/linker"
)

// backend is which of spec.md §6's four invocation names this process
// was started as.
type backend uint8

const (
	backendUnknown backend = iota
	backendELF
	backendMachO
	backendCOFF
	backendWasm
)

func backendFor(argv0 string) backend {
	switch filepath.Base(argv0) {
	case "ld.zld", "ld":
		return backendELF
	case "ld64.zld", "ld64":
		return backendMachO
	case "link-zld":
		return backendCOFF
	case "wasm-zld":
		return backendWasm
	default:
		return backendUnknown
	}
}

// multiFlag accumulates repeated -l/-L/-framework occurrences, the
// standard flag.Value idiom for a flag that may appear more than once.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	be := backendFor(os.Args[0])
	if be == backendUnknown {
		printUsage()
		return 0
	}
	if be == backendCOFF {
		fmt.Fprintln(os.Stderr, "zld: link-zld (COFF) is not implemented in this build")
		return 1
	}

	var (
		output    = flag.String("o", "a.out", "output path")
		entry     = flag.String("e", "", "entry symbol")
		archFlag  = flag.String("arch", "", "target cpu architecture (amd64, arm64)")
		shared    = flag.Bool("shared", false, "emit a library instead of an executable")
		strip     = flag.Bool("s", false, "strip output")
		deadStrip = flag.Bool("dead_strip", false, "remove unreachable atoms")
		undef     = flag.Bool("undefined", false, "allow undefined symbols to resolve at runtime")
		verbose   = flag.Bool("v", env.Bool("ZLD_VERBOSE"), "verbose diagnostics")
		pagezero  = flag.Uint64("pagezero_size", uint64(env.Int64("ZLD_PAGEZERO_SIZE", 0)), "darwin __PAGEZERO size override")
		syslibroot = flag.String("syslibroot", env.Str("ZLD_SYSLIBROOT", ""), "darwin SDK root for -l/-framework search")
	)
	var libDirs, libs, frameworks multiFlag
	flag.Var(&libDirs, "L", "add a library search directory")
	flag.Var(&libs, "l", "link against libname")
	flag.Var(&frameworks, "framework", "link against a darwin framework")
	flag.Parse()

	log := linkctx.New(*verbose)

	opts := &linker.Options{
		LibDirs:      []string(libDirs),
		Libs:         map[string]linker.Lib{},
		Frameworks:   map[string]linker.Lib{},
		Emit:         linker.Emit{SubPath: *output},
		Entry:        resolveEntry(*entry, be),
		StackSize:    0,
		PagezeroSize: *pagezero,
		SysLibRoot:   *syslibroot,
		DeadStrip:    *deadStrip,
		Strip:        *strip,
		AllowUndef:   *undef,
		Verbose:      *verbose,
		Target:       targetFor(be, *archFlag),
	}
	if *shared {
		opts.OutputMode = linker.OutputLib
	}
	for _, name := range libs {
		opts.Libs[name] = linker.Lib{Name: name, Needed: true}
	}
	for _, name := range frameworks {
		opts.Frameworks[name] = linker.Lib{Name: name, Needed: true}
	}
	for _, path := range flag.Args() {
		opts.Positionals = append(opts.Positionals, linker.Positional{Path: path})
	}
	if len(opts.Positionals) == 0 {
		fmt.Fprintln(os.Stderr, "zld: no input files")
		return 1
	}

	l := linker.New(opts, log)
	image, err := l.Link()
	if err != nil {
		fmt.Fprintf(os.Stderr, "zld: %v\n", err)
		return 1
	}
	if err := os.WriteFile(opts.OutputPath(), image, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "zld: %v\n", err)
		return 1
	}
	return 0
}

// resolveEntry applies each backend's conventional default entry symbol
// name when the caller didn't ask for one explicitly; Wasm has no single
// named entry point at this layer (its _start convention lives in the
// module's export section, not Options.Entry).
func resolveEntry(explicit string, be backend) string {
	if explicit != "" {
		return explicit
	}
	switch be {
	case backendMachO:
		return "_main"
	case backendELF:
		return "_start"
	default:
		return ""
	}
}

// targetFor fills in Options.Target per backend, defaulting the cpu_arch
// to the architecture each backend's native toolchain most commonly
// targets (arm64 for darwin, amd64 for linux) when -arch wasn't given.
func targetFor(be backend, archFlag string) linker.Target {
	t := linker.Target{CPUArch: linker.ArchX86_64}
	switch archFlag {
	case "arm64", "aarch64":
		t.CPUArch = linker.ArchAArch64
	case "amd64", "x86_64", "":
		// leave default, overridden per-backend below when unset
	}
	switch be {
	case backendMachO:
		t.OSTag = "darwin"
		if archFlag == "" {
			t.CPUArch = linker.ArchAArch64
		}
	case backendELF:
		t.OSTag = "linux"
	case backendWasm:
		t.ABI = "wasm"
	}
	return t
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: ld.zld|ld64.zld|wasm-zld [options] file...")
	fmt.Fprintln(os.Stderr, "invoke as ld/ld.zld (ELF), ld64/ld64.zld (Mach-O), or wasm-zld (Wasm)")
}
