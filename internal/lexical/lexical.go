// Package lexical provides the keyword tokenisation shared by hybrid ranking
// and the built-in hashing embedder.
package lexical

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "i": true, "we": true, "you": true,
	"it": true, "our": true, "my": true, "me": true, "us": true,
	"this": true, "that": true, "from": true, "there": true, "can": true,
}

// IsStopWord reports whether a lowercased word carries no ranking signal.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// Tokens splits text into lowercased words of letters and digits.
// Stop words are kept.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the distinct non-stop-word tokens of text in first-seen order.
func Terms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range Tokens(text) {
		if stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// Overlap returns the fraction of queryTerms that occur as tokens in text.
// It is zero when queryTerms is empty.
func Overlap(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, tok := range Tokens(text) {
		present[tok] = true
	}
	matched := 0
	for _, term := range queryTerms {
		if present[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
