package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/larder/larder-backend/internal/pantry/events"
	"github.com/larder/larder-backend/pkg/logger"
)

// ExpiryScanner publishes expiring and expired events for pantry items.
// An item is announced once per expiry date and status; restocking with a
// different nearest expiry or crossing from expiring to expired announces
// it again.
type ExpiryScanner struct {
	pantry    *PantryService
	publisher *events.PantryEventPublisher
	logger    *logger.Logger

	mu       sync.Mutex
	notified map[string]string
}

// NewExpiryScanner creates a new expiry scanner
func NewExpiryScanner(pantry *PantryService, publisher *events.PantryEventPublisher, log *logger.Logger) *ExpiryScanner {
	return &ExpiryScanner{
		pantry:    pantry,
		publisher: publisher,
		logger:    log.WithComponent("expiry_scanner"),
		notified:  make(map[string]string),
	}
}

// ScanAll runs all expiry scans. Logs errors but continues scanning.
func (s *ExpiryScanner) ScanAll(ctx context.Context) error {
	scanners := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"expiry", s.scanExpiry},
	}

	var lastErr error
	for _, scanner := range scanners {
		n, err := scanner.fn(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Msg("expiry scan failed")
			lastErr = err
			continue
		}
		s.logger.Debug().Str("scanner", scanner.name).Int("published", n).Msg("expiry scan finished")
	}

	return lastErr
}

// scanExpiry publishes one event per newly expiring or expired item and
// forgets items that are no longer in the window
func (s *ExpiryScanner) scanExpiry(ctx context.Context) (int, error) {
	views, err := s.pantry.ExpiringItems(ctx, s.pantry.WarnDays())
	if err != nil {
		return 0, fmt.Errorf("scanExpiry: list expiring items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(views))
	published := 0
	for _, v := range views {
		it := v.Item
		seen[it.ID] = struct{}{}

		key := v.ExpiryStatus + "@" + it.ExpiryDate().String()
		if s.notified[it.ID] == key {
			continue
		}

		switch v.ExpiryStatus {
		case ExpiryExpired:
			s.publisher.PublishExpired(ctx, it, *v.DaysUntilExpiry)
		case ExpiryExpiring:
			s.publisher.PublishExpiring(ctx, it, *v.DaysUntilExpiry)
		default:
			continue
		}
		s.notified[it.ID] = key
		published++
	}

	for id := range s.notified {
		if _, ok := seen[id]; !ok {
			delete(s.notified, id)
		}
	}

	return published, nil
}
