package device

import (
	"strings"
	"unicode"
)

// DefaultTokens is the stock allow-list of tape formats and camcorder vendors.
// Vendors missing from the list are silently filtered out.
var DefaultTokens = []string{
	"DV", "DVCAM", "MINIDV", "HDV", "DIGITAL8",
	"Sony", "Canon", "Panasonic", "JVC", "Sharp", "Samsung",
}

// Filter classifies raw devices into tape camcorder candidates.
// A device is kept when it advertises the required capability and its
// name, model or manufacturer contains one of the tokens as whole words.
type Filter struct {
	capability MediaKind
	tokens     [][]string
}

// NewFilter creates a filter requiring capability and matching tokens case-insensitively
func NewFilter(capability MediaKind, tokens []string) *Filter {
	f := &Filter{capability: capability}
	for _, token := range tokens {
		if words := splitWords(token); len(words) > 0 {
			f.tokens = append(f.tokens, words)
		}
	}
	return f
}

// Apply returns the candidates in raw, preserving order
func (f *Filter) Apply(raw []Device) []Device {
	candidates := make([]Device, 0, len(raw))
	for _, d := range raw {
		if f.Matches(d) {
			candidates = append(candidates, d)
		}
	}
	return candidates
}

// Matches reports whether a single device passes the filter
func (f *Filter) Matches(d Device) bool {
	if f.capability != "" && !d.HasCapability(f.capability) {
		return false
	}

	for _, field := range []string{d.DisplayName, d.ModelID, d.Manufacturer} {
		words := splitWords(field)
		for _, token := range f.tokens {
			if containsRun(words, token) {
				return true
			}
		}
	}
	return false
}

// splitWords lowercases s and splits it on anything that is not a letter or digit
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsRun reports whether run appears as a contiguous sequence in words
func containsRun(words, run []string) bool {
	for i := 0; i+len(run) <= len(words); i++ {
		match := true
		for j := range run {
			if words[i+j] != run[j] {
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
