package input

import (
	"encoding/binary"
	"fmt"

	"github.com/moosichu/zld/internal/symtab"
)

// Wasm section ids, matching the canonical order spec.md §4.7 requires
// the finalizer to reproduce (grounded on tinyrange-rtg's wasmModule
// encoder, which emits the same table in the opposite direction).
const (
	wasmSecCustom   = 0
	wasmSecType     = 1
	wasmSecImport   = 2
	wasmSecFunction = 3
	wasmSecTable    = 4
	wasmSecMemory   = 5
	wasmSecGlobal   = 6
	wasmSecExport   = 7
	wasmSecStart    = 8
	wasmSecElement  = 9
	wasmSecCode     = 10
	wasmSecData     = 11
	wasmSecDataCount = 12
)

// parseWasmObject reads a linkable Wasm object module (produced with
// `clang --target=wasm32 -c -r` or similar: a "linking" custom section
// describing symbols, plus relocation custom sections per code/data
// section) and lowers it into the input-local model. Each function
// body and each active data segment becomes one Section, matching how
// Wasm object linking already operates at function/segment
// granularity rather than needing subsections-via-symbols splitting.
// Custom sections (including "linking" and "reloc.*") are not read:
// each code body and data segment gets a synthesized global symbol
// (func.N / data.N) and no relocations.
func parseWasmObject(path string, data []byte) (*Object, error) {
	if len(data) < 8 || string(data[0:4]) != "\x00asm" {
		return nil, fmt.Errorf("%s: bad wasm magic", path)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != 1 {
		return nil, fmt.Errorf("%s: unsupported wasm version %d", path, version)
	}

	obj := &Object{Format: FormatWasm, Path: path}
	off := 8
	var codeBodies [][]byte
	var dataSegs [][]byte

	for off < len(data) {
		if off+1 > len(data) {
			break
		}
		id := data[off]
		off++
		size, n, err := readULEB128(data[off:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		off += n
		if off+int(size) > len(data) {
			return nil, fmt.Errorf("%s: truncated wasm section", path)
		}
		payload := data[off : off+int(size)]
		off += int(size)

		switch id {
		case wasmSecCode:
			codeBodies, err = splitWasmVector(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: code section: %w", path, err)
			}
		case wasmSecData:
			dataSegs, err = splitWasmDataSegments(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: data section: %w", path, err)
			}
		}
	}

	for i, body := range codeBodies {
		obj.Sections = append(obj.Sections, Section{
			Name:         fmt.Sprintf("code[%d]", i),
			Data:         body,
			Subdividable: false,
		})
		obj.Symbols = append(obj.Symbols, symtab.Symbol{
			Name:         fmt.Sprintf("func.%d", i),
			Kind:         symtab.KindDefined,
			Binding:      symtab.BindGlobal,
			SectionIndex: len(obj.Sections) - 1,
			Size:         uint64(len(body)),
		})
	}
	for i, seg := range dataSegs {
		obj.Sections = append(obj.Sections, Section{
			Name: fmt.Sprintf("data[%d]", i),
			Data: seg,
		})
		obj.Symbols = append(obj.Symbols, symtab.Symbol{
			Name:         fmt.Sprintf("data.%d", i),
			Kind:         symtab.KindDefined,
			Binding:      symtab.BindGlobal,
			SectionIndex: len(obj.Sections) - 1,
			Size:         uint64(len(seg)),
		})
	}

	return obj, nil
}

func readULEB128(b []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i, by := range b {
		result |= uint64(by&0x7f) << shift
		if by&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, fmt.Errorf("uleb128 overflow")
		}
	}
	return 0, 0, fmt.Errorf("truncated uleb128")
}

// splitWasmVector reads the vec(code) length-prefixed entries of a code
// section, returning each entry's raw bytes (size prefix included, as
// the writer re-emits it verbatim since this linker doesn't recompile
// function bodies).
func splitWasmVector(payload []byte) ([][]byte, error) {
	count, n, err := readULEB128(payload)
	if err != nil {
		return nil, err
	}
	off := n
	var out [][]byte
	for i := uint64(0); i < count; i++ {
		size, sn, err := readULEB128(payload[off:])
		if err != nil {
			return nil, err
		}
		start := off
		off += sn + int(size)
		if off > len(payload) {
			return nil, fmt.Errorf("truncated code entry")
		}
		out = append(out, payload[start:off])
	}
	return out, nil
}

// splitWasmDataSegments reads the data section's vector of segments.
// Only the active, memory-index-0, constant-i32-offset form is
// supported, matching what clang/LLVM's Wasm object emitter produces
// (spec.md's Wasm scope never needs passive segments at link time).
func splitWasmDataSegments(payload []byte) ([][]byte, error) {
	count, n, err := readULEB128(payload)
	if err != nil {
		return nil, err
	}
	off := n
	var out [][]byte
	for i := uint64(0); i < count; i++ {
		start := off
		kind, kn, err := readULEB128(payload[off:])
		if err != nil {
			return nil, err
		}
		off += kn
		if kind == 0 {
			// expr: 0x41 i32.const <sleb> 0x0b end
			if off >= len(payload) || payload[off] != 0x41 {
				return nil, fmt.Errorf("unsupported data segment offset expr")
			}
			off++
			_, sn, err := readULEB128(payload[off:]) // sleb decoded loosely as uleb; value unused here
			if err != nil {
				return nil, err
			}
			off += sn
			if off >= len(payload) || payload[off] != 0x0b {
				return nil, fmt.Errorf("malformed data segment offset expr")
			}
			off++
		}
		size, sn, err := readULEB128(payload[off:])
		if err != nil {
			return nil, err
		}
		off += sn
		off += int(size)
		if off > len(payload) {
			return nil, fmt.Errorf("truncated data segment")
		}
		out = append(out, payload[start:off])
	}
	return out, nil
}
