// Package scheduler runs the monthly usage rollover: at the turn of each
// calendar month every active user's usage counter goes back to zero.
package scheduler

import (
	"context"
	"time"

	"github.com/mfcastro/aihub/internal/services/ledger"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

type UsageResetScheduler struct {
	ledger   *ledger.Service
	interval time.Duration
	stopChan chan struct{}

	lastReset time.Time
}

func NewUsageResetScheduler(ledgerSvc *ledger.Service, interval time.Duration) *UsageResetScheduler {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &UsageResetScheduler{
		ledger:    ledgerSvc,
		interval:  interval,
		stopChan:  make(chan struct{}),
		lastReset: time.Now(),
	}
}

func (s *UsageResetScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	fiberlog.Infof("Usage reset scheduler started, checking every %s", s.interval)

	for {
		select {
		case <-ticker.C:
			s.maybeReset(ctx, time.Now())
		case <-s.stopChan:
			fiberlog.Info("Usage reset scheduler stopped")
			return
		case <-ctx.Done():
			fiberlog.Info("Usage reset scheduler stopped due to context cancellation")
			return
		}
	}
}

func (s *UsageResetScheduler) Stop() {
	close(s.stopChan)
}

// maybeReset fires once per month boundary crossing, however late the
// tick lands.
func (s *UsageResetScheduler) maybeReset(ctx context.Context, now time.Time) {
	if sameMonth(s.lastReset, now) {
		return
	}

	n, err := s.ledger.ResetAllPeriods(ctx)
	if err != nil {
		fiberlog.Errorf("Monthly usage reset failed: %v", err)
		return
	}
	s.lastReset = now
	fiberlog.Infof("Monthly usage reset complete: %d users", n)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
