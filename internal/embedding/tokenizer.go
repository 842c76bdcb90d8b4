package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Special token ids of BERT-style vocabularies.
const (
	tokenCLS = 101
	tokenSEP = 102
	// Word ids are hashed into [wordIDBase, wordIDBase+wordIDRange).
	wordIDBase  = 1000
	wordIDRange = 29000
)

// Tokenizer produces the input_ids, attention_mask and token_type_ids a BERT-style
// model expects.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps each word to a hashed token id. It has no vocabulary, so it
// only suits models fine-tuned on the same hashing.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] word... [SEP] padded to maxTokens (256 when <= 0).
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	t.TokenizeInto(text, inputIDs, attentionMask)
	return inputIDs, attentionMask, tokenTypeIDs
}

// TokenizeInto writes the encoding of text into ids and mask, which must have the same
// length, and returns the number of real tokens. Unused positions are zeroed.
func (t *SimpleTokenizer) TokenizeInto(text string, ids, mask []int64) int {
	clear(ids)
	clear(mask)
	if len(ids) == 0 {
		return 0
	}
	ids[0], mask[0] = tokenCLS, 1
	n := 1
	for _, word := range SplitWords(text) {
		if n >= len(ids)-1 {
			break
		}
		ids[n], mask[n] = int64(wordIDBase+HashString(word)%wordIDRange), 1
		n++
	}
	if n < len(ids) {
		ids[n], mask[n] = tokenSEP, 1
		n++
	}
	return n
}

// SplitWords lower-cases text and splits it on anything that is not a letter or digit.
func SplitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashString returns the 64-bit FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
