package providers

import (
	"context"

	"github.com/mfcastro/aihub/internal/models"
)

// Breaker gates dispatch to an unhealthy upstream.
type Breaker interface {
	CanExecute() bool
	RecordSuccess()
	RecordFailure()
}

// guardedAdapter consults a circuit breaker before every dispatch and
// reports the outcome back to it. Dispatch errors trip the breaker;
// mid-stream errors do not, since by then the upstream has already
// proven reachable.
type guardedAdapter struct {
	inner   Adapter
	breaker Breaker
}

func WithBreaker(inner Adapter, breaker Breaker) Adapter {
	if breaker == nil {
		return inner
	}
	return &guardedAdapter{inner: inner, breaker: breaker}
}

func (g *guardedAdapter) Name() string { return g.inner.Name() }

func (g *guardedAdapter) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	if !g.breaker.CanExecute() {
		return nil, models.NewProviderError(g.inner.Name(), "provider temporarily unavailable", nil)
	}
	stream, err := g.inner.Stream(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, err
	}
	g.breaker.RecordSuccess()
	return stream, nil
}

func (g *guardedAdapter) Complete(ctx context.Context, req Request) (string, *TokenUsage, error) {
	if !g.breaker.CanExecute() {
		return "", nil, models.NewProviderError(g.inner.Name(), "provider temporarily unavailable", nil)
	}
	text, usage, err := g.inner.Complete(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		return "", nil, err
	}
	g.breaker.RecordSuccess()
	return text, usage, nil
}
