// Package briefing composes daily intelligence briefings from high-signal
// scored items. Composition prefers the strong model tier and degrades to a
// deterministic markdown template when the model is unavailable or returns
// an unusable response.
package briefing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/core/llm"
)

// Composition modes recorded in briefing meta and metric labels.
const (
	ModeModel    = "model"
	ModeFallback = "fallback"
)

const (
	briefingMaxTokens = 2000
	signalsJSONIndent = "  "
)

// Candidate is the projection of a scored signal handed to the composer.
// The JSON shape is what the composition prompt embeds verbatim.
type Candidate struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Source      string  `json:"source"`
	Category    string  `json:"category"`
	PublishedAt *string `json:"published_at"`
	SignalScore float64 `json:"signal_score"`
	Content     string  `json:"content"`
}

// ComposeRequest carries the inputs of one composition. Candidates arrive
// best first and already narrowed to the briefing size.
type ComposeRequest struct {
	Scope       string // usage attribution, "global" or "user:<uuid>"
	Candidates  []Candidate
	FocusTopics []string
	NumItems    int
	TargetWords int
	Now         time.Time
}

// Composition is the produced briefing body plus the items it covered.
type Composition struct {
	SummaryMD string
	ItemsUsed []string
	Mode      string
}

// Composer turns ranked candidates into briefing markdown. Implementations
// never fail: degraded paths fall back to the deterministic template.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) Composition
}

type templateComposer struct{}

// NewTemplate returns a composer that always renders the markdown template.
func NewTemplate() Composer {
	return templateComposer{}
}

func (templateComposer) Compose(_ context.Context, req ComposeRequest) Composition {
	return renderFallback(req)
}

// modelComposer asks the strong model tier for an analyst-voice briefing.
type modelComposer struct {
	client llm.Client
	logger *zerolog.Logger
}

// NewModel returns a composer backed by the chat model registry.
func NewModel(client llm.Client, logger *zerolog.Logger) Composer {
	return &modelComposer{client: client, logger: logger}
}

func (c *modelComposer) Compose(ctx context.Context, req ComposeRequest) Composition {
	signalsJSON, err := json.MarshalIndent(req.Candidates, "", signalsJSONIndent)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Candidate encoding failed, using fallback briefing")

		return renderFallback(req)
	}

	prompt := llm.BuildBriefingPrompt(string(signalsJSON),
		min(len(req.Candidates), req.NumItems), req.TargetWords, strings.Join(req.FocusTopics, ", "))

	response, err := c.client.Complete(ctx, llm.Request{
		Tier:      llm.TierStrong,
		System:    llm.BriefingSystemPrompt,
		Prompt:    prompt,
		MaxTokens: briefingMaxTokens,
		JSONOnly:  true,
		Scope:     req.Scope,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("scope", req.Scope).Msg("Model briefing failed, using fallback")

		return renderFallback(req)
	}

	result, err := llm.ParseBriefingResult(response)
	if err != nil {
		c.logger.Warn().Err(err).Str("scope", req.Scope).Msg("Unparseable briefing response, using fallback")

		return renderFallback(req)
	}

	itemsUsed := result.ItemsUsed
	if len(itemsUsed) == 0 {
		itemsUsed = candidateIDs(req.Candidates)
	}

	return Composition{SummaryMD: result.Briefing, ItemsUsed: itemsUsed, Mode: ModeModel}
}

func candidateIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	return ids
}
