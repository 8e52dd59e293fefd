package linker

import "fmt"

// MismatchedCPUArchitectureError is spec.md §7's MismatchedCpuArchitecture:
// an input's recorded machine type does not match Options.Target.
type MismatchedCPUArchitectureError struct {
	Path string
	Want string
	Got  string
}

func (e *MismatchedCPUArchitectureError) Error() string {
	return fmt.Sprintf("%s: mismatched cpu architecture: wanted %s, got %s", e.Path, e.Want, e.Got)
}

// MissingMainEntrypointError is spec.md §7's MissingMainEntrypoint: an
// executable output's Options.Entry name never resolved to a Global.
type MissingMainEntrypointError struct{ Name string }

func (e *MissingMainEntrypointError) Error() string {
	return fmt.Sprintf("missing main entrypoint: %q", e.Name)
}

// LibraryNotFoundError is spec.md §7's LibraryNotFound, reported after
// resolution so every missing -lname can surface together.
type LibraryNotFoundError struct{ Name string }

func (e *LibraryNotFoundError) Error() string { return fmt.Sprintf("library not found for -l%s", e.Name) }

// FrameworkNotFoundError is spec.md §7's FrameworkNotFound.
type FrameworkNotFoundError struct{ Name string }

func (e *FrameworkNotFoundError) Error() string {
	return fmt.Sprintf("framework not found for -framework %s", e.Name)
}

// UnsupportedCPUArchitectureError is spec.md §7's UnsupportedCpuArchitecture.
type UnsupportedCPUArchitectureError struct{ Arch string }

func (e *UnsupportedCPUArchitectureError) Error() string {
	return fmt.Sprintf("unsupported cpu architecture: %s", e.Arch)
}

// RelocationOverflowError is spec.md §7's relocation-encoding overflow:
// a branch still out of range after thunk insertion, or an addend that
// does not fit the relocation's field width.
type RelocationOverflowError struct {
	Kind string // "branch-range" or "addend-overflow"
	At   string
}

func (e *RelocationOverflowError) Error() string {
	return fmt.Sprintf("relocation overflow (%s) at %s", e.Kind, e.At)
}
