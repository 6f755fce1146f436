package tokenizer

import (
	"iter"
	"strings"
	"unicode"
)

// isWordRune reports whether r belongs to a term: any Unicode letter or digit, or an underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Terms returns the lowercase terms of text, split on runs of non-word characters.
// The sequence can be ranged over any number of times and always yields the same terms
// in their original order. Empty terms are never produced.
func Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		lower := strings.ToLower(text)
		start := -1
		for i, r := range lower {
			if isWordRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(lower[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(lower[start:])
		}
	}
}

// Tokenize converts a string into a slice of lowercase terms.
// No stemming or stop-word removal is applied.
func Tokenize(text string) []string {
	tokens := make([]string, 0) // Initialize as empty slice, not nil
	for term := range Terms(text) {
		tokens = append(tokens, term)
	}
	return tokens
}

// Count returns the number of terms in text without allocating them.
func Count(text string) int {
	n := 0
	for range Terms(text) {
		n++
	}
	return n
}
