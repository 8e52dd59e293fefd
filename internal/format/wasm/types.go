// Package wasm implements spec.md §4.7's Wasm finalizer: assembling the
// linked module's sections in the canonical order the Wasm spec
// requires (type, import, function, table, memory, global, export,
// start, element, data_count, code, data), followed by the custom name
// section (when set) and producers section. No target_features section
// is emitted.
//
// Grounded on tinyrange-rtg's wasmModule encoder (encode/encodeSection
// and its ULEB128 helpers) for the wire-level shape, generalized from a
// single translation unit's from-scratch module builder into a linker
// stage that concatenates and relocates multiple inputs' already-
// compiled sections.
package wasm

const (
	SecCustom    = 0
	SecType      = 1
	SecImport    = 2
	SecFunction  = 3
	SecTable     = 4
	SecMemory    = 5
	SecGlobal    = 6
	SecExport    = 7
	SecStart     = 8
	SecElement   = 9
	SecCode      = 10
	SecData      = 11
	SecDataCount = 12
)

// canonicalOrder lists every section id in the order the Wasm binary
// format requires they appear (data_count between element and code).
var canonicalOrder = []int{
	SecType, SecImport, SecFunction, SecTable, SecMemory, SecGlobal,
	SecExport, SecStart, SecElement, SecDataCount, SecCode, SecData,
}

const (
	ExtFunc   = 0x00
	ExtTable  = 0x01
	ExtMemory = 0x02
	ExtGlobal = 0x03
)

func AppendULEB128(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func AppendSLEB128(out []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func AppendName(out []byte, name string) []byte {
	out = AppendULEB128(out, uint32(len(name)))
	return append(out, name...)
}
