package llm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/core/embeddings"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
)

// Metric result constants.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// Log key constants.
const (
	logKeyProvider = "provider"
	logKeyTier     = "tier"
)

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*embeddings.CircuitBreaker
	recorder        UsageRecorder
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(recorder UsageRecorder, logger *zerolog.Logger) *Registry {
	if recorder == nil {
		recorder = NoopUsageRecorder()
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*embeddings.CircuitBreaker),
		recorder:        recorder,
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg embeddings.CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	r.order = append(r.order, name)
	r.circuitBreakers[name] = embeddings.NewCircuitBreaker(cfg, r.logger)

	// Sort by priority (descending)
	r.sortProvidersByPriority()

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// ProviderNames returns the names of all registered providers in priority order.
func (r *Registry) ProviderNames() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]ProviderName, len(r.order))
	copy(names, r.order)

	return names
}

// Complete implements Client with priority-ordered provider fallback.
func (r *Registry) Complete(ctx context.Context, req Request) (string, error) {
	r.mu.RLock()
	providers := r.getActiveProviders()
	r.mu.RUnlock()

	if len(providers) == 0 {
		return "", ErrNoProvidersAvailable
	}

	if req.Tier == "" {
		req.Tier = TierCheap
	}

	var lastErr error

	for _, p := range providers {
		cb := r.getCircuitBreaker(p.Name())
		providerName := string(p.Name())

		if !cb.CanAttempt() {
			r.logger.Debug().
				Str(logKeyProvider, providerName).
				Str(logKeyTier, string(req.Tier)).
				Msg("skipping provider, circuit breaker open")

			continue
		}

		start := time.Now()
		resp, err := p.Complete(ctx, req)
		duration := time.Since(start)

		observability.LLMRequestDuration.WithLabelValues(providerName, string(req.Tier)).Observe(duration.Seconds())

		if err != nil {
			cb.RecordFailure(embeddings.ProviderName(p.Name()))
			observability.LLMRequests.WithLabelValues(providerName, string(req.Tier), resultError).Inc()
			r.recorder.RecordUsage(req.Scope, 0, 0, false)

			lastErr = err

			r.logger.Warn().
				Err(err).
				Str(logKeyProvider, providerName).
				Str(logKeyTier, string(req.Tier)).
				Float64("duration_seconds", duration.Seconds()).
				Msg("LLM provider failed, trying fallback")

			continue
		}

		cb.RecordSuccess()
		observability.LLMRequests.WithLabelValues(providerName, string(req.Tier), resultSuccess).Inc()
		r.recorder.RecordUsage(req.Scope, resp.PromptTokens, resp.CompletionTokens, true)

		return resp.Text, nil
	}

	if lastErr != nil {
		return "", errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return "", ErrNoProvidersAvailable
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName
	Priority         int
	Available        bool
	CircuitBreakerOK bool
}

// GetProviderStatuses returns status information for all registered providers.
func (r *Registry) GetProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]
		cb := r.circuitBreakers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: cb.CanAttempt(),
		})
	}

	return statuses
}

// getActiveProviders returns providers that report themselves available.
// Caller must hold at least a read lock.
func (r *Registry) getActiveProviders() []Provider {
	active := make([]Provider, 0, len(r.providers))

	for _, name := range r.order {
		p := r.providers[name]
		if p.IsAvailable() {
			active = append(active, p)
		}
	}

	return active
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		pi := r.providers[r.order[i]].Priority()
		pj := r.providers[r.order[j]].Priority()

		return pi > pj
	})
}

// getCircuitBreaker returns the circuit breaker for a provider.
func (r *Registry) getCircuitBreaker(name ProviderName) *embeddings.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}
