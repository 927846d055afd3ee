package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/memory"
)

// Router manages multiple providers and falls through a configured chain
// when the default fails.
type Router struct {
	providers map[string]Provider
	fallbacks []string
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the
// default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// SetFallbacks configures the fallback chain tried after the default.
func (r *Router) SetFallbacks(providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = providerIDs
}

// Empty reports whether no providers are registered.
func (r *Router) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) == 0
}

// chain returns the default plus fallbacks, deduplicated, in try order.
func (r *Router) chain() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	seen := make(map[string]bool)
	for _, id := range append([]string{r.defaults}, r.fallbacks...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.providers[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ExtractSemantics tries the chain until one provider extracts an event.
func (r *Router) ExtractSemantics(ctx context.Context, text string) (*memory.SemanticEvent, error) {
	var lastErr error
	for _, p := range r.chain() {
		event, err := p.ExtractSemantics(ctx, text)
		if err == nil {
			return event, nil
		}
		lastErr = err
		r.logger.Warn("extraction failed, trying next provider",
			zap.String("provider", p.ID()), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("no providers registered")
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// FormatResponse tries the chain until one provider formats an answer.
func (r *Router) FormatResponse(ctx context.Context, query string, data *MemoryData) (string, error) {
	var lastErr error
	for _, p := range r.chain() {
		resp, err := p.FormatResponse(ctx, query, data)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.logger.Warn("formatting failed, trying next provider",
			zap.String("provider", p.ID()), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("no providers registered")
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}
