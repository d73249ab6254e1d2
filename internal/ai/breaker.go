package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-provider circuit breaker.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive retryable failures
	// that opens the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
}

// BreakerProvider wraps a Provider with a circuit breaker. While the
// circuit is open, calls fail fast with KindUnavailable so callers move on
// to the next provider. Only retryable failures count against the circuit;
// a rejected prompt says nothing about the provider's health.
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker[*Completion]
}

// WithBreaker wraps p. A zero FailureThreshold disables wrapping.
func WithBreaker(p Provider, s BreakerSettings) Provider {
	if s.FailureThreshold == 0 {
		return p
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*Completion](gobreaker.Settings{
		Name:        p.Name() + "/" + p.Model(),
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit changed state", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerProvider{Provider: p, cb: cb}
}

// Complete forwards to the wrapped provider unless the circuit is open.
func (b *BreakerProvider) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	c, err := b.cb.Execute(func() (*Completion, error) {
		return b.Provider.Complete(ctx, p)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{Provider: b.Name(), Kind: KindUnavailable, Err: err}
	}
	return c, err
}
