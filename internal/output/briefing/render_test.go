package briefing

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, time.February, 10, 7, 0, 0, 0, time.UTC)
}

func TestRenderFallbackLayout(t *testing.T) {
	comp := renderFallback(ComposeRequest{
		Candidates: []Candidate{
			{ID: "item-1", Title: "Go 1.24 released", URL: "https://example.com/go", Source: "Hacker News", SignalScore: 0.9, Content: "New toolchain features landed"},
			{ID: "item-2", Title: "Postgres tuning guide", URL: "https://example.com/pg", Source: "Lobsters", SignalScore: 0.74},
		},
		NumItems:    10,
		TargetWords: 600,
		Now:         fixedNow(),
	})

	require.Equal(t, ModeFallback, comp.Mode)
	assert.Equal(t, []string{"item-1", "item-2"}, comp.ItemsUsed)

	md := comp.SummaryMD
	assert.True(t, strings.HasPrefix(md, "# Daily Intelligence Briefing\n"))
	assert.Contains(t, md, "*Generated February 10, 2026*")
	assert.Contains(t, md, "## Top Signals")
	assert.Contains(t, md, "### 1. Go 1.24 released")
	assert.Contains(t, md, "*Source: Hacker News | Score: 0.90*")
	assert.Contains(t, md, "New toolchain features landed...")
	assert.Contains(t, md, "[Read more](https://example.com/go)")
	assert.Contains(t, md, "### 2. Postgres tuning guide")
	assert.Contains(t, md, "*Source: Lobsters | Score: 0.74*")
}

func TestRenderFallbackCapsItems(t *testing.T) {
	comp := renderFallback(ComposeRequest{
		Candidates: []Candidate{
			{ID: "item-1", Title: "First"},
			{ID: "item-2", Title: "Second"},
			{ID: "item-3", Title: "Third"},
		},
		NumItems: 2,
		Now:      fixedNow(),
	})

	assert.Equal(t, []string{"item-1", "item-2"}, comp.ItemsUsed)
	assert.NotContains(t, comp.SummaryMD, "### 3.")
}

func TestRenderFallbackFocusLine(t *testing.T) {
	comp := renderFallback(ComposeRequest{
		Candidates:  []Candidate{{ID: "item-1", Title: "First"}},
		FocusTopics: []string{"machine learning", "security"},
		NumItems:    10,
		Now:         fixedNow(),
	})

	assert.Contains(t, comp.SummaryMD, "*Focus: Machine Learning, Security*")
}

func TestRenderFallbackSkipsEmptySnippet(t *testing.T) {
	comp := renderFallback(ComposeRequest{
		Candidates: []Candidate{{ID: "item-1", Title: "No body", URL: "https://example.com/1"}},
		NumItems:   10,
		Now:        fixedNow(),
	})

	assert.NotContains(t, comp.SummaryMD, "...")
	assert.Contains(t, comp.SummaryMD, "[Read more](https://example.com/1)")
}

func TestRenderFallbackTruncatesSnippet(t *testing.T) {
	comp := renderFallback(ComposeRequest{
		Candidates: []Candidate{{ID: "item-1", Title: "Long", Content: strings.Repeat("a", 300)}},
		NumItems:   10,
		Now:        fixedNow(),
	})

	assert.Contains(t, comp.SummaryMD, strings.Repeat("a", snippetChars)+"...")
	assert.NotContains(t, comp.SummaryMD, strings.Repeat("a", snippetChars+1))
}

func TestFocusLine(t *testing.T) {
	assert.Empty(t, focusLine(nil))
	assert.Equal(t, "*Focus: Security*", focusLine([]string{"security"}))
	assert.Equal(t, "*Focus: Machine Learning, Security*", focusLine([]string{"machine learning", "security"}))
}

func TestClipKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 100)

	clipped := clip(s, 101)

	assert.True(t, utf8.ValidString(clipped))
	assert.LessOrEqual(t, len(clipped), 101)
}
