package trie

import (
	"bytes"
	"sort"
)

// buildNode is one node of the in-memory radix trie BuildTrie
// constructs before serializing it, mirroring ld64's export-trie
// builder: each node owns a sorted set of (edge-string, child) pairs,
// plus terminal export info if a symbol name ends exactly here.
type buildNode struct {
	children []buildEdge
	terminal *TrieEntry
	offset   uint64 // filled in by computeOffsets
}

type buildEdge struct {
	label string
	to    *buildNode
}

// BuildTrie serializes entries into a Mach-O export trie: the format
// ParseTrie/WalkTrie in trie.go decode. Entries need not be
// pre-sorted; BuildTrie sorts by name itself since the trie's byte
// layout is order-sensitive (children stored sorted by edge string).
func BuildTrie(entries []TrieEntry) []byte {
	sorted := append([]TrieEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	root := &buildNode{}
	for i := range sorted {
		insert(root, sorted[i].Name, &sorted[i])
	}

	// ld64's trie encoding is a fixed point: each node's own byte size
	// depends on the ULEB128-encoded offsets of its children, which in
	// turn depend on preceding nodes' sizes. Iterate until offsets
	// stabilize, exactly as dyld's own trie builder does.
	var nodesInOrder []*buildNode
	collectPreorder(root, &nodesInOrder)

	for {
		changed := false
		offset := uint64(0)
		for _, n := range nodesInOrder {
			size := uint64(nodeSize(n))
			if n.offset != offset {
				n.offset = offset
				changed = true
			}
			offset += size
		}
		if !changed {
			break
		}
	}

	var buf bytes.Buffer
	for _, n := range nodesInOrder {
		writeNode(&buf, n)
	}
	return buf.Bytes()
}

func insert(n *buildNode, name string, entry *TrieEntry) {
	for i := range n.children {
		e := &n.children[i]
		common := commonPrefixLen(e.label, name)
		switch {
		case common == 0:
			continue
		case common == len(e.label) && common == len(name):
			e.to.terminal = entry
			return
		case common == len(e.label):
			insert(e.to, name[common:], entry)
			return
		default:
			// Split the existing edge at the common prefix.
			mid := &buildNode{children: []buildEdge{{label: e.label[common:], to: e.to}}}
			e.label = e.label[:common]
			e.to = mid
			if common == len(name) {
				mid.terminal = entry
			} else {
				insert(mid, name[common:], entry)
			}
			return
		}
	}
	n.children = append(n.children, buildEdge{label: name, to: &buildNode{terminal: entry}})
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func collectPreorder(n *buildNode, out *[]*buildNode) {
	*out = append(*out, n)
	sort.Slice(n.children, func(i, j int) bool { return n.children[i].label < n.children[j].label })
	for _, e := range n.children {
		collectPreorder(e.to, out)
	}
}

func nodeSize(n *buildNode) int {
	size := terminalSize(n.terminal)
	size += 1 // child count byte
	for _, e := range n.children {
		size += len(e.label) + 1 + ulebSize(e.to.offset)
	}
	return size
}

func terminalSize(t *TrieEntry) int {
	if t == nil {
		return 1 // just the zero "terminal size" byte
	}
	body := ulebSize(uint64(t.Flags))
	if t.Flags.ReExport() {
		body += ulebSize(t.Other) + len(t.ReExport) + 1
	} else {
		body += ulebSize(t.Address)
		if t.Flags.StubAndResolver() {
			body += ulebSize(t.Other)
		}
	}
	return ulebSize(uint64(body)) + body
}

func writeNode(buf *bytes.Buffer, n *buildNode) {
	if n.terminal == nil {
		buf.WriteByte(0)
	} else {
		t := n.terminal
		var body bytes.Buffer
		writeULEB128(&body, uint64(t.Flags))
		if t.Flags.ReExport() {
			writeULEB128(&body, t.Other) // dylib ordinal, read back into Other
			body.WriteString(t.ReExport)
			body.WriteByte(0)
		} else {
			writeULEB128(&body, t.Address)
			if t.Flags.StubAndResolver() {
				writeULEB128(&body, t.Other)
			}
		}
		writeULEB128(buf, uint64(body.Len()))
		buf.Write(body.Bytes())
	}
	buf.WriteByte(byte(len(n.children)))
	for _, e := range n.children {
		buf.WriteString(e.label)
		buf.WriteByte(0)
		writeULEB128(buf, e.to.offset)
	}
}

func writeULEB128(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

func ulebSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
