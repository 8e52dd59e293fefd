package input

import (
	"fmt"
	"strconv"
	"strings"
)

const arMagic = "!<arch>\n"

// parseArchive decodes a Unix `ar` static archive (spec.md §4.1): every
// member is parsed eagerly as its own Object, since S2's pull-in
// decision needs each member's symbol table up front.
func parseArchive(path string, data []byte) (*Archive, error) {
	if !strings.HasPrefix(string(data), arMagic) {
		return nil, &NotArchiveError{Path: path}
	}
	ar := &Archive{Path: path}

	var longNames string
	off := len(arMagic)
	for off+60 <= len(data) {
		hdr := data[off : off+60]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed archive member header: %w", path, err)
		}
		body := data[off+60:]
		if int64(len(body)) < size {
			return nil, fmt.Errorf("%s: truncated archive member %q", path, name)
		}
		memberData := body[:size]

		switch {
		case name == "/":
			// Symbol-index member (the archive TOC). Pull-in scans each
			// member's own symbol table directly rather than this index,
			// so it's skipped here; spec.md §4.1 calls the TOC an
			// optimization this linker doesn't need to consume.
		case name == "//":
			longNames = string(memberData)
		default:
			memberName := name
			if strings.HasPrefix(name, "/") {
				if idx, err := strconv.Atoi(name[1:]); err == nil && idx < len(longNames) {
					if end := strings.Index(longNames[idx:], "/\n"); end >= 0 {
						memberName = longNames[idx : idx+end]
					}
				}
			}
			memberName = strings.TrimSuffix(memberName, "/")

			loaded, err := Load(fmt.Sprintf("%s(%s)", path, memberName), memberData)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", path, memberName, err)
			}
			if loaded.Kind != KindObject {
				return nil, fmt.Errorf("%s(%s): archive member is not an object", path, memberName)
			}
			ar.Members = append(ar.Members, ArchiveMember{Name: memberName, Object: *loaded.Object})
		}

		memberLen := size
		if memberLen%2 != 0 {
			memberLen++ // members are 2-byte aligned, with a padding '\n'
		}
		off += 60 + int(memberLen)
	}
	return ar, nil
}
