package handler

import (
	"strings"
	"unicode/utf8"
)

// FilterOptions tunes the forward gate. Zero values disable every
// check, in which case all teacher text messages are forwarded.
type FilterOptions struct {
	MinLength   int
	Blacklist   []string
	Important   []string
	Unimportant []string
}

// ForwardFilter gates which teacher messages fan out to students.
// Keyword matching is case-insensitive substring containment.
type ForwardFilter struct {
	minLength   int
	blacklist   []string
	important   []string
	unimportant []string
}

func NewForwardFilter(opts FilterOptions) *ForwardFilter {
	return &ForwardFilter{
		minLength:   opts.MinLength,
		blacklist:   lowerAll(opts.Blacklist),
		important:   lowerAll(opts.Important),
		unimportant: lowerAll(opts.Unimportant),
	}
}

// Allow applies the hard gates: blacklisted keywords and minimum
// length. Messages failing either are acknowledged but never forwarded.
// Length is counted in characters, not bytes, so the gate works the
// same for CJK and ASCII text.
func (f *ForwardFilter) Allow(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range f.blacklist {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return utf8.RuneCountInString(strings.TrimSpace(content)) >= f.minLength
}

// KeywordVerdict classifies a message that already passed the gates.
// Important keywords win over unimportant ones; with no hit the message
// is treated as worth forwarding.
func (f *ForwardFilter) KeywordVerdict(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range f.important {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range f.unimportant {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
