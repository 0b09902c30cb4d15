package repository

import (
	"context"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/pkg/logger"
)

// MirrorStore writes through to a replica after the primary commits.
// The primary is the source of truth: replica failures are logged and
// never fail a save.
type MirrorStore struct {
	primary Store
	replica Store
	logger  *logger.Logger
}

// NewMirrorStore pairs a primary with a replica
func NewMirrorStore(primary, replica Store, log *logger.Logger) *MirrorStore {
	return &MirrorStore{
		primary: primary,
		replica: replica,
		logger:  log.WithComponent("mirror-store"),
	}
}

func (s *MirrorStore) Name() string {
	return s.primary.Name() + "+" + s.replica.Name()
}

// Load reads the primary. An empty primary is restored from the replica,
// which is how a fresh device picks up synced data.
func (s *MirrorStore) Load(ctx context.Context) (ledger.Collection, error) {
	items, err := s.primary.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}

	remote, err := s.replica.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("replica", s.replica.Name()).Msg("replica unavailable, starting empty")
		return items, nil
	}
	if len(remote) == 0 {
		return items, nil
	}

	s.logger.Info().Int("items", len(remote)).Str("replica", s.replica.Name()).Msg("restoring pantry from replica")
	if err := s.primary.Save(ctx, remote); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist restored pantry to primary")
	}

	return remote, nil
}

// Save commits to the primary, then best-effort to the replica
func (s *MirrorStore) Save(ctx context.Context, items ledger.Collection) error {
	if err := s.primary.Save(ctx, items); err != nil {
		return err
	}

	if err := s.replica.Save(ctx, items); err != nil {
		s.logger.Warn().Err(err).Str("replica", s.replica.Name()).Msg("replica save failed")
	}

	return nil
}
