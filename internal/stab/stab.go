// Package stab builds Mach-O STABs (N_SO/N_OSO/N_FUN debugging symbol
// table entries) from an input object's DWARF compile-unit info, the one
// DWARF-touching task spec.md §4.7 keeps in scope: these entries are what
// lets dsymutil find the original .o (and its full DWARF) for a linked
// binary, without the linker itself merging any debug info.
package stab

import (
	"bytes"
	"compress/zlib"
	"io"
	"path/filepath"
	"strings"

	dwarf "github.com/blacktop/go-dwarf"
)

// STAB n_type values this package emits (spec.md §4.7). Darwin assigns
// these the same way across ld64 and dsymutil; they're not in the
// generic N_* range debug/macho's own types package covers.
const (
	NSO  uint8 = 0x64 // source file name
	NOSO uint8 = 0x66 // object file name
	NFUN uint8 = 0x24 // function name
)

// Section is the minimal shape Build needs from a parsed input section:
// its name, to recognize a __debug_*/__zdebug_*/__apple_* DWARF section,
// and its raw (possibly ZLIB-compressed) bytes.
type Section struct {
	Name string
	Data []byte
}

// FuncSym is one defined, externally-visible function symbol Build
// should emit an N_FUN entry for, already resolved to its final layout
// address by the caller (internal/linker, after S5).
type FuncSym struct {
	Name  string
	Value uint64
}

// Entry is one STAB nlist record. Sect and Desc are left for the caller
// to fill in if it ever needs to track a real section index; this
// linker's symtab writer doesn't number sections into n_sect for any
// entry today (spec.md §4.7's accepted simplification), so Build leaves
// Sect 0 throughout, matching every other symtab entry it writes.
type Entry struct {
	Name  string
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

// Build reads path's compile-unit name and comp_dir out of its
// __DWARF,__debug_info section (falling back to no stabs, not an error,
// when the object carries none) and returns the N_SO/N_OSO/N_FUN entries
// for it, grounded on the teacher's (*macho.File).DWARF() section
// suffix/zlib-inflate idiom in file.go.
func Build(path string, sections []Section, funcs []FuncSym, mtime uint32) ([]Entry, error) {
	dat := map[string][]byte{"abbrev": nil, "info": nil, "str": nil, "line": nil, "ranges": nil}
	for _, s := range sections {
		suffix := dwarfSuffix(s.Name)
		if suffix == "" {
			continue
		}
		if _, ok := dat[suffix]; !ok {
			continue
		}
		b, err := maybeInflate(s.Data)
		if err != nil {
			return nil, err
		}
		dat[suffix] = b
	}
	if len(dat["info"]) == 0 {
		return nil, nil
	}

	d, err := dwarf.New(dat["abbrev"], nil, nil, dat["info"], dat["line"], nil, dat["ranges"], dat["str"])
	if err != nil {
		return nil, err
	}
	r := d.Reader()
	cu, err := r.Next()
	if err != nil || cu == nil || cu.Tag != dwarf.TagCompileUnit {
		return nil, nil
	}
	name, _ := cu.Val(dwarf.AttrName).(string)
	compDir, _ := cu.Val(dwarf.AttrCompDir).(string)
	if name == "" {
		return nil, nil
	}

	var entries []Entry
	if compDir != "" {
		entries = append(entries, Entry{Name: strings.TrimSuffix(compDir, "/") + "/", Type: NSO})
	}
	entries = append(entries, Entry{Name: filepath.Base(name), Type: NSO})
	entries = append(entries, Entry{Name: path, Type: NOSO, Desc: uint16(mtime), Value: uint64(mtime)})

	for _, f := range funcs {
		entries = append(entries, Entry{Name: f.Name, Type: NFUN, Value: f.Value})
	}
	return entries, nil
}

// dwarfSuffix mirrors the teacher's dwarfSuffix closure in file.go's
// DWARF() method: strip a __debug_/__zdebug_/__apple_ prefix down to the
// bare key dwarf.New expects, or "" for a non-DWARF section.
func dwarfSuffix(name string) string {
	switch {
	case strings.HasPrefix(name, "__debug_"):
		return name[len("__debug_"):]
	case strings.HasPrefix(name, "__zdebug_"):
		return name[len("__zdebug_"):]
	case strings.HasPrefix(name, "__apple_"):
		return name[len("__apple_"):]
	default:
		return ""
	}
}

// maybeInflate undoes the ZLIB section compression dsymutil/ld can
// leave on __debug_* sections, the same magic-prefix check the
// teacher's sectionData closure makes before handing bytes to dwarf.New.
func maybeInflate(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[:4]) != "ZLIB" {
		return b, nil
	}
	dlen := beUint64(b[4:12])
	dbuf := make([]byte, dlen)
	r, err := zlib.NewReader(bytes.NewReader(b[12:]))
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dbuf); err != nil {
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return dbuf, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
