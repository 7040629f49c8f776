package briefing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fallback template layout.
const (
	fallbackTitle      = "# Daily Intelligence Briefing"
	fallbackDateFormat = "January 2, 2006"
	fallbackSection    = "## Top Signals"

	snippetChars = 200
)

// renderFallback builds the deterministic markdown briefing used when no
// model path is available: date header, optional focus line, then a ranked
// list with title, source, score, snippet, and link.
func renderFallback(req ComposeRequest) Composition {
	candidates := req.Candidates
	if req.NumItems >= 0 && len(candidates) > req.NumItems {
		candidates = candidates[:req.NumItems]
	}

	lines := []string{
		fallbackTitle,
		fmt.Sprintf("*Generated %s*", req.Now.UTC().Format(fallbackDateFormat)),
	}

	if focus := focusLine(req.FocusTopics); focus != "" {
		lines = append(lines, focus)
	}

	lines = append(lines, "", fallbackSection, "")

	itemsUsed := make([]string, 0, len(candidates))

	for i, c := range candidates {
		lines = append(lines,
			fmt.Sprintf("### %d. %s", i+1, c.Title),
			fmt.Sprintf("*Source: %s | Score: %.2f*", c.Source, c.SignalScore),
			"",
		)

		if c.Content != "" {
			lines = append(lines, clip(c.Content, snippetChars)+"...")
		}

		lines = append(lines, fmt.Sprintf("[Read more](%s)", c.URL), "")

		itemsUsed = append(itemsUsed, c.ID)
	}

	return Composition{
		SummaryMD: strings.Join(lines, "\n"),
		ItemsUsed: itemsUsed,
		Mode:      ModeFallback,
	}
}

// focusLine formats the briefing's topics as a title-cased display line.
// Empty when there are no topic preferences.
func focusLine(topics []string) string {
	if len(topics) == 0 {
		return ""
	}

	// Casers are stateful, so build one per call.
	caser := cases.Title(language.English)

	names := make([]string, len(topics))
	for i, topic := range topics {
		names[i] = caser.String(topic)
	}

	return fmt.Sprintf("*Focus: %s*", strings.Join(names, ", "))
}

// clip truncates s to at most limit bytes without splitting a rune.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
