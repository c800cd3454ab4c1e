// Package normalize reduces free-text item descriptions to canonical
// lookup keys. The same key function runs at snapshot capture time and at
// quote resolution time; any divergence between the two breaks matching.
package normalize

import (
	"regexp"
	"strings"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpace = regexp.MustCompile(`\s+`)
	weightUnit = regexp.MustCompile(`(?i)(\(kgs\)|kilogram|kgs|kg)`)
)

// Name lowercases the input, replaces punctuation with spaces, collapses
// whitespace, and trims. Empty input yields the empty string.
func Name(name string) string {
	n := strings.ToLower(name)
	n = nonAlnum.ReplaceAllString(n, " ")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// InferUnit returns "kg" when the name carries a weight marker anywhere,
// otherwise the generic "unit". Total function, no error condition.
func InferUnit(name string) string {
	if weightUnit.MatchString(name) {
		return "kg"
	}
	return "unit"
}
