package layout

// Protection mirrors the VM protection bits a segment is mapped with;
// ELF's PT_LOAD flags and Mach-O's vm_prot_t share the same R/W/X shape
// so one enum serves both (spec.md §3 "Segment").
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExecute
)

// Segment is spec.md §3's Segment entity. Wasm has no segments; the
// Wasm finalizer never constructs one (spec.md §3: "this entity is
// omitted for that format").
type Segment struct {
	Name       string
	VMAddr     uint64
	VMSize     uint64
	FileOffset uint64
	FileSize   uint64
	Prot       Protection

	SectionIndexes []int

	// ZeroPage marks the Mach-O __PAGEZERO / zero-page segment, which
	// has no file range (spec.md §3 invariant).
	ZeroPage bool

	precedence int
}

func (s *Segment) Precedence() int     { return s.precedence }
func (s *Segment) SetPrecedence(p int) { s.precedence = p }

// ProtectionFromName derives R/W/X bits from a segment name the way
// spec.md §4.5 step 3 describes ("derive segment protection from
// segment name"), covering the Mach-O segment names this linker emits.
func ProtectionFromName(name string) Protection {
	switch name {
	case "__PAGEZERO":
		return 0
	case "__TEXT":
		return ProtRead | ProtExecute
	case "__DATA_CONST":
		return ProtRead | ProtWrite
	case "__DATA":
		return ProtRead | ProtWrite
	case "__LINKEDIT":
		return ProtRead
	default:
		return ProtRead | ProtWrite
	}
}
