package probe

import "strings"

// HostsEntry is one parsed /etc/hosts line.
type HostsEntry struct {
	Address string
	Names   []string
}

// ParseHostsLine parses an /etc/hosts line. Comments and blank lines yield
// ok=false.
func ParseHostsLine(line string) (HostsEntry, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return HostsEntry{}, false
	}
	return HostsEntry{Address: fields[0], Names: fields[1:]}, true
}

// HasName reports whether name is one of the entry's names, compared as a
// whole field and case-insensitively.
func (e HostsEntry) HasName(name string) bool {
	for _, n := range e.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// IsSwapFstabLine reports whether an fstab line mounts swap and is not
// commented out.
func IsSwapFstabLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	fields := strings.Fields(trimmed)
	return len(fields) >= 3 && fields[2] == "swap"
}
