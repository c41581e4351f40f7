// Package moderation screens chat text before it is delivered. A Filter
// blocks configured keywords and phrases and a small set of spam patterns.
package moderation

import (
	"strings"
	"unicode"
)

// Reasons reported in FilterResult.
const (
	ReasonKeyword = "blocked_keyword"
	ReasonSpam    = "spam_pattern"
)

// DefaultTerms is the built-in blocklist. Multi-word entries match as
// phrases on word boundaries.
var DefaultTerms = []string{
	"idiot",
	"loser",
	"scammer",
	"kill yourself",
	"go die",
	"send nudes",
	"wire me money",
}

// FilterResult describes why a text was blocked. The zero value means the
// text is clean.
type FilterResult struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
	Term    string `json:"term,omitempty"`
}

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string
}

// NewFilter returns a filter over DefaultTerms.
func NewFilter() *Filter {
	return NewFilterWithTerms(DefaultTerms)
}

// NewFilterWithTerms returns a filter over terms. Terms are matched
// case-insensitively; blank terms are ignored.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		tokens := tokenize(term)
		switch len(tokens) {
		case 0:
		case 1:
			f.words[tokens[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, tokens)
		}
	}
	return f
}

// Check screens text. Keywords are checked before spam patterns.
func (f *Filter) Check(text string) FilterResult {
	tokens := tokenize(text)
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: tok}
		}
	}
	for _, phrase := range f.phrases {
		if containsRun(tokens, phrase) {
			return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: strings.Join(phrase, " ")}
		}
	}
	return checkSpam(text)
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, so "hello, BadWord!" yields [hello badword].
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(tokens, run []string) bool {
	for i := 0; i+len(run) <= len(tokens); i++ {
		match := true
		for j, w := range run {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
