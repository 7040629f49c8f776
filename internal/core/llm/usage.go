package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Usage recording constants.
const (
	usageKindLLM        = "llm"
	usageStorageTimeout = 5 * time.Second
	defaultUsageScope   = "global"
)

// UsageStore persists provider spend counters. The storage package
// implements it; caps read the same counters back.
type UsageStore interface {
	IncrementUsage(ctx context.Context, kind, scope string, calls, tokens int) error
}

// UsageRecorder records per-scope call counters for LLM requests.
// This interface allows for dependency injection and easier testing.
type UsageRecorder interface {
	RecordUsage(scope string, promptTokens, completionTokens int, success bool)
}

// usageRecorder implements UsageRecorder backed by a UsageStore.
type usageRecorder struct {
	store  UsageStore
	logger *zerolog.Logger
}

// NewUsageRecorder creates a UsageRecorder writing to the given store.
func NewUsageRecorder(store UsageStore, logger *zerolog.Logger) UsageRecorder {
	return &usageRecorder{
		store:  store,
		logger: logger,
	}
}

// RecordUsage persists one call's spend. Failed calls are not counted
// against caps; a refused request costs nothing.
func (r *usageRecorder) RecordUsage(scope string, promptTokens, completionTokens int, success bool) {
	if r.store == nil || !success {
		return
	}

	if scope == "" {
		scope = defaultUsageScope
	}

	tokens := promptTokens + completionTokens

	// Fire-and-forget: usage storage is best-effort and must not block or
	// fail the LLM request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageStorageTimeout)
		defer cancel()

		if err := r.store.IncrementUsage(ctx, usageKindLLM, scope, 1, tokens); err != nil && r.logger != nil {
			r.logger.Warn().Err(err).Str("scope", scope).Msg("failed to persist LLM usage")
		}
	}()
}

// noopUsageRecorder is a no-op implementation for testing or when usage
// tracking is disabled.
type noopUsageRecorder struct{}

// NoopUsageRecorder returns a no-op implementation of UsageRecorder.
func NoopUsageRecorder() UsageRecorder {
	return &noopUsageRecorder{}
}

// RecordUsage does nothing.
func (r *noopUsageRecorder) RecordUsage(_ string, _, _ int, _ bool) {}
