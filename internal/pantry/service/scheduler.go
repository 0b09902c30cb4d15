package service

import (
	"context"
	"time"

	"github.com/larder/larder-backend/pkg/logger"
)

const defaultScanInterval = time.Hour

// Scanner is anything the scheduler can run on a tick
type Scanner interface {
	ScanAll(ctx context.Context) error
}

// ExpiryScheduler runs expiry scans periodically
type ExpiryScheduler struct {
	scanner  Scanner
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpiryScheduler creates a new expiry scheduler
func NewExpiryScheduler(scanner Scanner, interval time.Duration, log *logger.Logger) *ExpiryScheduler {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &ExpiryScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   log.WithComponent("expiry_scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. The first scan
// runs immediately.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("expiry scheduler started")

		s.runScanCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scheduler stopped")
				return
			case <-ticker.C:
				s.runScanCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for it to exit
func (s *ExpiryScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *ExpiryScheduler) runScanCycle(ctx context.Context) {
	start := time.Now()
	if err := s.scanner.ScanAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("expiry scan cycle failed")
		return
	}
	s.logger.Info().Dur("duration", time.Since(start)).Msg("expiry scan cycle completed")
}
