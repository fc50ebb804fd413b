// Package guard serializes access to the local GPU backends. Admission is
// paced by a token bucket, then bounded by a weighted semaphore; a release
// handle scopes the hold to one invocation so a panic or early return
// cannot wedge the backend.
package guard

import (
	"context"

	"github.com/mfcastro/aihub/internal/models"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type Guard struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New builds a guard from backend settings. Zero values fall back to one
// concurrent invocation and an effectively unlimited rate.
func New(maxConcurrent int64, ratePerMinute int) *Guard {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	limit := rate.Inf
	burst := 1
	if ratePerMinute > 0 {
		limit = rate.Limit(float64(ratePerMinute) / 60.0)
		burst = ratePerMinute
	}

	return &Guard{
		sem:     semaphore.NewWeighted(maxConcurrent),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FromConfig builds a guard from a backend config block.
func FromConfig(cfg models.BackendConfig) *Guard {
	return New(cfg.MaxConcurrent, cfg.RatePerMinute)
}

// Acquire admits one invocation, blocking until the rate limiter and
// semaphore both allow it or ctx ends. The returned release function must
// be called exactly once; calling it again is a no-op.
func (g *Guard) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.limiter.Wait(ctx); err != nil {
		// Wait also fails when ctx ends; that is a cancellation, not a
		// rate rejection.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, models.NewRateLimitError("backend admission")
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
	}, nil
}

// TryAcquire admits without blocking, reporting false when the backend is
// busy or the rate budget is spent.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.limiter.Allow() {
		return nil, false
	}
	if !g.sem.TryAcquire(1) {
		return nil, false
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
	}, true
}
