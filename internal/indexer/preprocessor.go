package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalises item text before embedding: control characters other than
// whitespace are removed and every whitespace run becomes a single space.
func Preprocess(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
