// Package moderation implements the banned-word filter applied to every
// room message before command or chat handling.
package moderation

import "strings"

// Filter matches messages against a case-insensitive word list. A word
// matches anywhere in the message, including inside longer words. The zero
// value matches nothing.
type Filter struct {
	words []string
}

// NewFilter returns a Filter for words. Blank entries are ignored.
func NewFilter(words []string) *Filter {
	f := &Filter{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			f.words = append(f.words, w)
		}
	}
	return f
}

// Match reports the first listed word found in text.
func (f *Filter) Match(text string) (string, bool) {
	if f == nil || len(f.words) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}

// Enabled reports whether the filter has any words.
func (f *Filter) Enabled() bool { return f != nil && len(f.words) > 0 }
