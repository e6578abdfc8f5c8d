// Package pathfilter holds the prefix predicates shared by extraction and bulk removal.
package pathfilter

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StartsWith reports whether name begins with any of the given prefixes.
// An empty prefix list never matches. An empty prefix matches everything.
func StartsWith(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Normalize converts a caller-supplied folder path to the archive form:
// forward slashes, no leading "./" or "/", NFC-composed.
func Normalize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return norm.NFC.String(name)
		}
	}
}

// Folder normalizes a folder pointer: the same as Normalize with any
// trailing slashes removed.
func Folder(path string) string {
	return strings.TrimRight(Normalize(path), "/")
}

// Join prefixes name with the folder, using "/" as the separator.
func Join(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
