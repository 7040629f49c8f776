package email

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"
)

const (
	subjectPrefix   = "Your Daily Briefing - "
	emailDateFormat = "January 2, 2006"
	textRuleWidth   = 50
)

// briefingPage is the HTML shell around the converted briefing markdown.
var briefingPage = template.Must(template.New("briefing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    line-height: 1.6;
    color: #333;
    max-width: 600px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { color: #1a1a1a; border-bottom: 2px solid #0066cc; padding-bottom: 10px; }
  h2 { color: #333; margin-top: 30px; }
  h3 { color: #666; }
  a { color: #0066cc; }
  .footer {
    margin-top: 40px;
    padding-top: 20px;
    border-top: 1px solid #eee;
    font-size: 12px;
    color: #666;
  }
</style>
</head>
<body>
<h1>Daily Intelligence Briefing</h1>
<p><em>{{.Date}}</em></p>
{{.Body}}
<div class="footer">
<p>Generated by News Intelligence Platform</p>
</div>
</body>
</html>
`))

// Inline markdown markup, applied to escaped text. Links go first so their
// targets survive the emphasis passes, bold before italic so double
// asterisks are not eaten pairwise.
var (
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
)

// Subject returns the briefing email subject line.
func Subject(generatedAt time.Time) string {
	return subjectPrefix + generatedAt.UTC().Format(emailDateFormat)
}

type pageData struct {
	Date string
	Body template.HTML
}

// RenderHTML converts briefing markdown into the HTML email body.
func RenderHTML(summaryMD string, generatedAt time.Time) (string, error) {
	var buf bytes.Buffer

	data := pageData{
		Date: generatedAt.UTC().Format(emailDateFormat),
		Body: markdownToHTML(summaryMD),
	}

	if err := briefingPage.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render briefing page: %w", err)
	}

	return buf.String(), nil
}

// RenderText formats the plain-text alternative.
func RenderText(summaryMD string, generatedAt time.Time) string {
	date := generatedAt.UTC().Format(emailDateFormat)

	return "DAILY INTELLIGENCE BRIEFING\n" + date + "\n" + strings.Repeat("=", textRuleWidth) +
		"\n\n" + summaryMD + "\n\n---\nGenerated by News Intelligence Platform"
}

// markdownToHTML converts the markdown subset briefings emit (headings,
// emphasis, links, bullet lists, paragraphs). Text is escaped before inline
// markup is applied, so model output cannot inject tags.
func markdownToHTML(md string) template.HTML {
	var (
		b      strings.Builder
		para   []string
		inList bool
	)

	flushPara := func() {
		if len(para) == 0 {
			return
		}

		b.WriteString("<p>" + strings.Join(para, "<br>") + "</p>\n")
		para = para[:0]
	}

	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")

			inList = false
		}
	}

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushPara()
			closeList()
		case strings.HasPrefix(trimmed, "### "):
			flushPara()
			closeList()
			b.WriteString("<h3>" + inlineHTML(strings.TrimPrefix(trimmed, "### ")) + "</h3>\n")
		case strings.HasPrefix(trimmed, "## "):
			flushPara()
			closeList()
			b.WriteString("<h2>" + inlineHTML(strings.TrimPrefix(trimmed, "## ")) + "</h2>\n")
		case strings.HasPrefix(trimmed, "# "):
			flushPara()
			closeList()
			b.WriteString("<h1>" + inlineHTML(strings.TrimPrefix(trimmed, "# ")) + "</h1>\n")
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushPara()

			if !inList {
				b.WriteString("<ul>\n")

				inList = true
			}

			b.WriteString("<li>" + inlineHTML(trimmed[2:]) + "</li>\n")
		default:
			closeList()

			para = append(para, inlineHTML(trimmed))
		}
	}

	flushPara()
	closeList()

	return template.HTML(b.String()) //nolint:gosec // input is escaped line by line above
}

// inlineHTML escapes one line of text and applies inline markdown markup.
func inlineHTML(s string) string {
	escaped := html.EscapeString(s)
	escaped = linkPattern.ReplaceAllString(escaped, `<a href="$2">$1</a>`)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = italicPattern.ReplaceAllString(escaped, "<em>$1</em>")

	return escaped
}
