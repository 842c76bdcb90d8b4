package indexer

import (
	"path/filepath"
	"slices"
	"strings"
)

// NormalizeExtensions lowercases extensions, adds the leading dot and drops blanks
// and duplicates.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = normalizeExtension(e)
		if e == "" || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func normalizeExtension(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e == "" || e == "." {
		return ""
	}
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

// MatchExtension reports whether path's extension is one of exts, ignoring case and
// the leading dot. An empty list matches every path.
func MatchExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := normalizeExtension(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if normalizeExtension(e) == ext {
			return true
		}
	}
	return false
}
