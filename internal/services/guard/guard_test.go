package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfcastro/aihub/internal/models"
)

func TestAcquireRelease(t *testing.T) {
	g := New(1, 0)

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, ok := g.TryAcquire(); ok {
		t.Error("second acquire succeeded while backend held")
	}

	release()

	release2, ok := g.TryAcquire()
	if !ok {
		t.Fatal("acquire failed after release")
	}
	release2()
}

func TestReleaseIdempotent(t *testing.T) {
	g := New(1, 0)

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release() // second call must not over-release

	r1, ok := g.TryAcquire()
	if !ok {
		t.Fatal("acquire failed after double release")
	}
	defer r1()
	if _, ok := g.TryAcquire(); ok {
		t.Error("capacity grew after duplicate release")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	g := New(1, 0)

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Acquire(ctx); err == nil {
		t.Error("expected error when held past deadline")
	}
}

func TestAcquireCancellationIsNotRateLimit(t *testing.T) {
	// One slow permit per minute; Wait fails on the canceled context.
	g := New(1, 1)
	if _, ok := g.TryAcquire(); !ok {
		t.Fatal("burst acquire should pass")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		t.Errorf("cancellation was reported as %v", appErr.Type)
	}
}

func TestRateLimit(t *testing.T) {
	// 60 per minute = 1 per second with matching burst; drain the burst.
	g := New(10, 1)

	release, ok := g.TryAcquire()
	if !ok {
		t.Fatal("first acquire should pass")
	}
	release()

	if _, ok := g.TryAcquire(); ok {
		t.Error("second immediate acquire should be rate limited")
	}
}
