package provider

import (
	"strings"
	"unicode/utf8"
)

// DefaultKeywords are the royalty terms the filter looks for.
var DefaultKeywords = []string{
	"royalty", "royalties", "tier", "tier 1", "tier 2", "tier 3",
	"per unit", "per-unit", "minimum", "guarantee", "payment", "payments",
	"seasonal", "spring", "fall", "holiday", "premium", "organic",
	"container", "multiplier", "schedule", "exhibit", "calculation",
	"territory", "primary", "secondary", "volume", "threshold",
	"ornamental", "perennials", "shrubs", "roses", "hydrangea",
}

// Filter defaults.
const (
	DefaultContextLines   = 2
	DefaultMinLength      = 1000
	DefaultFallbackLength = 8000
)

// TextFilter reduces contract text to the lines around royalty terms.
type TextFilter struct {
	Keywords       []string
	ContextLines   int
	MinLength      int
	FallbackLength int
}

// NewTextFilter returns a filter with the default keyword set. A negative
// context or a non-positive length selects the default.
func NewTextFilter(contextLines, minLength, fallbackLength int) *TextFilter {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if fallbackLength <= 0 {
		fallbackLength = DefaultFallbackLength
	}
	kw := make([]string, len(DefaultKeywords))
	copy(kw, DefaultKeywords)
	return &TextFilter{
		Keywords:       kw,
		ContextLines:   contextLines,
		MinLength:      minLength,
		FallbackLength: fallbackLength,
	}
}

var defaultFilter = NewTextFilter(DefaultContextLines, DefaultMinLength, DefaultFallbackLength)

// FilterRelevantText applies the default filter.
func FilterRelevantText(text string) string {
	return defaultFilter.Apply(text)
}

// Apply keeps every line containing a keyword, case-insensitively, plus
// ContextLines lines either side. Lines appear once, in their original
// order. When the kept text is shorter than MinLength characters the first
// FallbackLength characters of text are returned instead.
func (f *TextFilter) Apply(text string) string {
	lines := strings.Split(text, "\n")
	keep := make([]bool, len(lines))
	for i, line := range lines {
		if !f.relevant(line) {
			continue
		}
		lo, hi := i-f.ContextLines, i+f.ContextLines
		if lo < 0 {
			lo = 0
		}
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if keep[i] {
			kept = append(kept, line)
		}
	}
	filtered := strings.Join(kept, "\n")
	if utf8.RuneCountInString(filtered) < f.MinLength {
		return truncateRunes(text, f.FallbackLength)
	}
	return filtered
}

func (f *TextFilter) relevant(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range f.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
