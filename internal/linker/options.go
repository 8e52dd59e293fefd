// Package linker implements spec.md §5 "Lifecycles": the Linker record
// that owns every stage's shared mutable state, and the S1→S7 pipeline
// that drives internal/input, internal/symtab, internal/atom,
// internal/layout, internal/reloc, and the three internal/format/*
// finalizers to a single linked output.
package linker

// Positional is one input file argument (spec.md §6 Options.positionals).
type Positional struct {
	Path     string
	MustLink bool // archive members are normally pulled lazily; MustLink forces inclusion
}

// Lib is one -lname entry with its needed/weak flags (spec.md §6).
type Lib struct {
	Name   string
	Needed bool
	Weak   bool
}

// SearchStrategy selects whether -lfoo prefers a matching file in LibDirs
// or an exported symbol from a dylib first (spec.md §6 search_strategy).
type SearchStrategy uint8

const (
	PathsFirst SearchStrategy = iota
	DylibsFirst
)

// OutputMode is spec.md §6's output_mode.
type OutputMode uint8

const (
	OutputExe OutputMode = iota
	OutputLib
)

// TargetFormat is the backend this Options set targets, chosen by the
// cmd/zld driver from argv[0] (spec.md §6 CLI).
type TargetFormat uint8

const (
	TargetELF TargetFormat = iota
	TargetMachO
	TargetWasm
)

// CPUArch is spec.md §6 target.cpu_arch, restricted to the two ISAs this
// linker core supports (spec.md §1).
type CPUArch uint8

const (
	ArchX86_64 CPUArch = iota
	ArchAArch64
)

// Target is spec.md §6's target record.
type Target struct {
	CPUArch CPUArch
	OSTag   string
	ABI     string
}

// Emit is spec.md §6's emit record: where the output file goes.
type Emit struct {
	Directory string
	SubPath   string
}

// Options is spec.md §6's fully-populated configuration record; cmd/zld
// builds one from CLI args and environment defaults and hands it to
// internal/linker unchanged. Command-line parsing itself is out of
// scope for this package (spec.md §1 Out of scope).
type Options struct {
	Positionals []Positional
	LibDirs     []string
	FrameworkDirs []string
	Libs        map[string]Lib
	Frameworks  map[string]Lib

	SearchStrategy SearchStrategy
	OutputMode     OutputMode
	Emit           Emit
	Target         Target

	SysLibRoot   string
	Entry        string
	StackSize    uint64
	PagezeroSize uint64
	Entitlements string

	DeadStrip       bool
	DeadStripDylibs bool
	Strip           bool
	ImportMemory    bool // Wasm
	SharedMemory    bool // Wasm
	AllowUndef      bool

	Verbose bool
}

// OutputPath joins Emit's directory and sub-path the way every backend
// resolves its final write target.
func (o *Options) OutputPath() string {
	if o.Emit.Directory == "" {
		return o.Emit.SubPath
	}
	return o.Emit.Directory + "/" + o.Emit.SubPath
}
