package provider

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func padLine(prefix string, n int) string {
	return prefix + strings.Repeat("x", n)
}

func buildContract() string {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, padLine("boilerplate clause ", 60))
	}
	lines[10] = "Section 4. Royalty Payments " + strings.Repeat("a", 400)
	lines[25] = "Tier 1 applies to volumes under 5000 units " + strings.Repeat("b", 400)
	lines[26] = "Tier 2 applies above that threshold " + strings.Repeat("c", 400)
	return strings.Join(lines, "\n")
}

func TestTextFilter_KeepsKeywordLinesWithContext(t *testing.T) {
	text := buildContract()
	out := FilterRelevantText(text)
	lines := strings.Split(text, "\n")

	kept := strings.Split(out, "\n")
	// 8..12 around line 10, 23..28 around lines 25 and 26
	assert.Len(t, kept, 11)
	assert.Equal(t, lines[8], kept[0])
	assert.Equal(t, lines[10], kept[2])
	assert.Equal(t, lines[12], kept[4])
	assert.Equal(t, lines[23], kept[5])
	assert.Equal(t, lines[28], kept[10])
}

func TestTextFilter_CaseInsensitive(t *testing.T) {
	f := NewTextFilter(0, 1, 100)
	out := f.Apply("intro\nROYALTY due quarterly\noutro")
	assert.Equal(t, "ROYALTY due quarterly", out)
}

func TestTextFilter_RepeatedLinesKeptByPosition(t *testing.T) {
	f := NewTextFilter(0, 1, 100)
	out := f.Apply("royalty\nother\nroyalty")
	assert.Equal(t, "royalty\nroyalty", out)
}

func TestTextFilter_FallbackWhenTooShort(t *testing.T) {
	text := strings.Repeat("z", 9000) + "\n\n\n\nroyalty of 5%"
	out := FilterRelevantText(text)
	assert.Equal(t, DefaultFallbackLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasPrefix(text, out))
}

func TestTextFilter_FallbackReturnsShortTextWhole(t *testing.T) {
	assert.Equal(t, "no keywords here", FilterRelevantText("no keywords here"))
	assert.Equal(t, "", FilterRelevantText(""))
}

func TestTextFilter_FallbackCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 9000)
	out := FilterRelevantText(text)
	assert.Equal(t, DefaultFallbackLength, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestTextFilter_Idempotent(t *testing.T) {
	inputs := []string{
		buildContract(),
		"royalty\nother\nroyalty",
		strings.Repeat("royalty payment line with some padding\n", 60),
		strings.Repeat("é", 9000),
	}
	for _, in := range inputs {
		once := FilterRelevantText(in)
		assert.Equal(t, once, FilterRelevantText(once))
	}
}

func TestNewTextFilter_Defaults(t *testing.T) {
	f := NewTextFilter(-1, 0, 0)
	assert.Equal(t, DefaultContextLines, f.ContextLines)
	assert.Equal(t, DefaultMinLength, f.MinLength)
	assert.Equal(t, DefaultFallbackLength, f.FallbackLength)
	assert.Equal(t, DefaultKeywords, f.Keywords)

	f.Keywords[0] = "changed"
	assert.Equal(t, "royalty", DefaultKeywords[0])
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "éé", truncateRunes("ééé", 2))
}
