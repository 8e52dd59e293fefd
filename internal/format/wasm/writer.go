package wasm

import (
	"github.com/moosichu/zld/internal/atom"
	"github.com/moosichu/zld/internal/layout"
)

// Module is the linked Wasm module's content, gathered by
// internal/linker from every input object's function/data atoms plus
// whatever imports remain unresolved against an embedder-supplied
// environment (Wasm has no dylib-equivalent at this linker's scope;
// undefined imports simply pass through to the output import section).
type Module struct {
	Types    [][2][]byte // param/result value-type vectors, deduplicated
	Imports  []Import
	FuncTypeIdx []uint32
	Memory   [2]uint32 // min, max pages; Max==0 means no max
	Exports  []Export
	DataCount uint32
	Code     [][]byte // one encoded function body per defined function, in order
	Data     []DataSegment
	Name     string // module name, emitted in a "name" custom section if set
}

type Import struct {
	Module  string
	Field   string
	Kind    byte
	TypeIdx uint32
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

type DataSegment struct {
	MemIndex uint32
	Offset   int32
	Data     []byte
}

// Writer assembles a Module plus its atom-carried code/data payloads
// (already laid out and relocated by internal/layout and
// internal/reloc) into the final .wasm binary.
type Writer struct {
	Module *Module
	Plan   *layout.Plan
}

func (w *Writer) Write() []byte {
	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d)
	out = append(out, 0x01, 0x00, 0x00, 0x00)

	for _, id := range canonicalOrder {
		payload := w.encodeSection(id)
		if payload == nil {
			continue
		}
		out = append(out, byte(id))
		out = AppendULEB128(out, uint32(len(payload)))
		out = append(out, payload...)
	}

	if w.Module.Name != "" {
		out = append(out, byte(SecCustom))
		name := AppendName(nil, "name")
		name = AppendName(name, w.Module.Name)
		out = AppendULEB128(out, uint32(len(name)))
		out = append(out, name...)
	}

	producers := w.encodeProducersSection()
	out = append(out, byte(SecCustom))
	out = AppendULEB128(out, uint32(len(producers)))
	out = append(out, producers...)

	return out
}

func (w *Writer) encodeSection(id int) []byte {
	m := w.Module
	switch id {
	case SecType:
		if len(m.Types) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.Types)))
		for _, t := range m.Types {
			p = append(p, 0x60)
			p = AppendULEB128(p, uint32(len(t[0])))
			p = append(p, t[0]...)
			p = AppendULEB128(p, uint32(len(t[1])))
			p = append(p, t[1]...)
		}
		return p

	case SecImport:
		if len(m.Imports) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			p = AppendName(p, imp.Module)
			p = AppendName(p, imp.Field)
			p = append(p, imp.Kind)
			if imp.Kind == ExtFunc {
				p = AppendULEB128(p, imp.TypeIdx)
			}
		}
		return p

	case SecFunction:
		if len(m.FuncTypeIdx) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.FuncTypeIdx)))
		for _, t := range m.FuncTypeIdx {
			p = AppendULEB128(p, t)
		}
		return p

	case SecMemory:
		var p []byte
		p = AppendULEB128(p, 1)
		if m.Memory[1] != 0 {
			p = append(p, 0x01)
			p = AppendULEB128(p, m.Memory[0])
			p = AppendULEB128(p, m.Memory[1])
		} else {
			p = append(p, 0x00)
			p = AppendULEB128(p, m.Memory[0])
		}
		return p

	case SecExport:
		if len(m.Exports) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.Exports)))
		for _, e := range m.Exports {
			p = AppendName(p, e.Name)
			p = append(p, e.Kind)
			p = AppendULEB128(p, e.Idx)
		}
		return p

	case SecDataCount:
		if len(m.Data) == 0 {
			return nil
		}
		return AppendULEB128(nil, uint32(len(m.Data)))

	case SecCode:
		if len(m.Code) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.Code)))
		for _, body := range w.codeBodiesFromAtoms() {
			p = append(p, body...)
		}
		return p

	case SecData:
		if len(m.Data) == 0 {
			return nil
		}
		var p []byte
		p = AppendULEB128(p, uint32(len(m.Data)))
		for _, d := range m.Data {
			p = AppendULEB128(p, d.MemIndex)
			p = append(p, 0x41)
			p = AppendSLEB128(p, int64(d.Offset))
			p = append(p, 0x0b)
			p = AppendULEB128(p, uint32(len(d.Data)))
			p = append(p, d.Data...)
		}
		return p
	}
	return nil
}

// codeBodiesFromAtoms returns each function's final bytes, preferring
// the post-relocation atom payload (laid out by internal/layout) over
// Module.Code's pre-link copy when the two diverge. Function bodies
// carrying relocated call-immediate indices live in the atom pool.
func (w *Writer) codeBodiesFromAtoms() [][]byte {
	if w.Plan == nil {
		return w.Module.Code
	}
	var bodies [][]byte
	for i := range w.Plan.Sections {
		sec := &w.Plan.Sections[i]
		if sec.Name != "code" {
			continue
		}
		sec.Chain.Walk(w.Plan.Pool, func(_ atom.Index, a *atom.Atom) bool {
			bodies = append(bodies, a.Payload)
			return true
		})
	}
	if len(bodies) == 0 {
		return w.Module.Code
	}
	return bodies
}

func (w *Writer) encodeProducersSection() []byte {
	var p []byte
	p = AppendName(p, "producers")
	p = AppendULEB128(p, 1) // one field: "processed-by"
	p = AppendName(p, "processed-by")
	p = AppendULEB128(p, 1)
	p = AppendName(p, "zld")
	p = AppendName(p, "")
	return p
}
