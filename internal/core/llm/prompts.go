package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prompt parse errors.
var (
	ErrRelevanceOutOfRange = errors.New("relevance score out of range")
	ErrEmptyBriefing       = errors.New("briefing text missing from response")
)

// RelevanceSystemPrompt frames the cheap-tier scoring call.
const RelevanceSystemPrompt = `You are a news relevance analyst for technology professionals.
Your job is to quickly evaluate if a news item is worth reading.

Score on a 0-10 scale where:
- 10: Breaking news, major product launch, critical security issue
- 7-9: Important industry development, significant technical insight
- 4-6: Interesting but not urgent, niche topic, opinion piece
- 1-3: Low value, clickbait, rehashed content, self-promotion
- 0: Spam, completely irrelevant

Focus on:
- Actionability: Can the reader DO something with this info?
- Timeliness: Is this new information or old news?
- Credibility: Does the source and content seem reliable?
- Impact: How many people/systems does this affect?

Respond with ONLY a JSON object, no explanation.`

// BriefingSystemPrompt frames the strong-tier composition call.
const BriefingSystemPrompt = `You are a senior technology analyst writing a daily intelligence briefing.

Your briefing style:
- Lead with the most actionable insight
- Be concise but not terse
- Explain WHY something matters, not just WHAT happened
- Connect dots between related stories
- Call out what readers should DO or WATCH

Structure each item as:
1. Headline (compelling, informative)
2. Key insight (2-3 sentences)
3. Why it matters (1-2 sentences)
4. Action/watch item (optional, if applicable)

Write for busy technical leaders who need signal, not noise.`

// RelevanceInput carries the item fields the scoring prompt mentions.
type RelevanceInput struct {
	Title           string
	SourceName      string
	CredibilityTier int
	PublishedAt     string // ISO timestamp or "unknown"
	Category        string
	ContentPreview  string
}

// RelevanceResult is the parsed response of a relevance scoring call.
type RelevanceResult struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// BriefingResult is the parsed response of a briefing composition call.
type BriefingResult struct {
	Briefing  string   `json:"briefing"`
	ItemsUsed []string `json:"items_used"`
}

// BuildRelevancePrompt renders the user prompt for one scoring call.
func BuildRelevancePrompt(in RelevanceInput) string {
	if in.PublishedAt == "" {
		in.PublishedAt = "unknown"
	}

	if in.Category == "" {
		in.Category = "general"
	}

	if in.ContentPreview == "" {
		in.ContentPreview = "(no content)"
	}

	return fmt.Sprintf(`Evaluate this news item:

Title: %s
Source: %s (credibility: %d/5)
Published: %s
Category: %s

Content preview:
%s

Respond with JSON:
{"score": <0-10>, "reason": "<one sentence>"}`,
		in.Title, in.SourceName, in.CredibilityTier, in.PublishedAt, in.Category, in.ContentPreview)
}

// BuildBriefingPrompt renders the user prompt for one composition call.
// signalsJSON is the candidate list already marshaled for the model.
func BuildBriefingPrompt(signalsJSON string, numItems, targetWords int, focusAreas string) string {
	if focusAreas == "" {
		focusAreas = "general technology news"
	}

	return fmt.Sprintf(`Generate a briefing from these top signals:

%s

Requirements:
- Cover the top %d most important items
- Group related items into themes if applicable
- Total length: %d words
- Focus areas: %s

Output format:
{"briefing": "<markdown formatted briefing>", "items_used": [<list of item IDs used>]}`,
		signalsJSON, numItems, targetWords, focusAreas)
}

// ParseRelevanceResult extracts and validates a relevance response.
func ParseRelevanceResult(text string) (RelevanceResult, error) {
	var result RelevanceResult

	if err := json.Unmarshal([]byte(extractJSON(text)), &result); err != nil {
		return RelevanceResult{}, fmt.Errorf("parse relevance response: %w", err)
	}

	if result.Score < 0 || result.Score > 10 {
		return RelevanceResult{}, fmt.Errorf("%w: %d", ErrRelevanceOutOfRange, result.Score)
	}

	return result, nil
}

// ParseBriefingResult extracts and validates a briefing response.
func ParseBriefingResult(text string) (BriefingResult, error) {
	var result BriefingResult

	if err := json.Unmarshal([]byte(extractJSON(text)), &result); err != nil {
		return BriefingResult{}, fmt.Errorf("parse briefing response: %w", err)
	}

	if strings.TrimSpace(result.Briefing) == "" {
		return BriefingResult{}, ErrEmptyBriefing
	}

	return result, nil
}
