// Package trigger matches trigger phrases in continuous speech recognition
// output.
//
// Recognizers routinely mangle short trigger words ("koe" comes back as
// "koi" or "coe"), so a trigger matches when the normalized text contains
// the trigger itself or any of its configured phonetic variants on word
// boundaries. Variant tables are plain data: the built-in table covers the
// stock triggers and deployments extend or override it from configuration.
package trigger

import (
	"strings"
	"unicode"
)

// Matcher checks recognized text for trigger phrases.
//
// A Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	variants map[string][]string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithVariants overrides or extends the built-in variant table. Keys are
// canonical trigger words; values are the phrases recognizers commonly
// produce for them. Entries replace the built-in list for the same word.
func WithVariants(table map[string][]string) Option {
	return func(m *Matcher) {
		for word, list := range table {
			normalized := make([]string, 0, len(list))
			for _, v := range list {
				if n := Normalize(v); n != "" {
					normalized = append(normalized, n)
				}
			}
			m.variants[Normalize(word)] = normalized
		}
	}
}

// NewMatcher creates a Matcher with the built-in variant table, applying
// any options on top.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{variants: DefaultVariants()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match reports whether text contains the trigger word or one of its
// variants on word boundaries. Both sides are normalized first.
func (m *Matcher) Match(text, trigger string) bool {
	normText := Normalize(text)
	normTrigger := Normalize(trigger)
	if normText == "" || normTrigger == "" {
		return false
	}
	if containsPhrase(normText, normTrigger) {
		return true
	}
	for _, variant := range m.variants[normTrigger] {
		if containsPhrase(normText, variant) {
			return true
		}
	}
	return false
}

// MatchPhrase reports whether text contains the exact phrase on word
// boundaries, without variant expansion. The pipeline uses it for the
// extended trigger phrase.
func (m *Matcher) MatchPhrase(text, phrase string) bool {
	normText := Normalize(text)
	normPhrase := Normalize(phrase)
	if normText == "" || normPhrase == "" {
		return false
	}
	return containsPhrase(normText, normPhrase)
}

// Normalize lowercases s, replaces punctuation with spaces, and collapses
// whitespace runs to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// WordCount returns the number of words in the normalized text. The
// pipeline compares word counts to tell continued speech from a repeated
// trigger.
func WordCount(s string) int {
	return len(strings.Fields(Normalize(s)))
}

// containsPhrase reports whether the normalized text contains the
// normalized phrase as a whole-word sequence.
func containsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}
