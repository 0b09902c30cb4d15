package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/larder/larder-backend/pkg/logger"
)

const (
	postgresSchema = `
		CREATE TABLE IF NOT EXISTS pantry_items (
			id         VARCHAR(64) PRIMARY KEY,
			document   TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`

	mysqlSchema = `
		CREATE TABLE IF NOT EXISTS pantry_items (
			id         VARCHAR(64) NOT NULL PRIMARY KEY,
			document   LONGTEXT    NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) CHARACTER SET utf8mb4
	`
)

// itemRow is one stored item. The document is kept as text so the record
// comes back byte for byte.
type itemRow struct {
	ID        string    `db:"id"`
	Document  string    `db:"document"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SQLStore keeps one row per item in pantry_items on PostgreSQL or MySQL
type SQLStore struct {
	db     *database.DB
	logger *logger.Logger
}

// NewSQLStore creates a new SQL store
func NewSQLStore(db *database.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, logger: log}
}

func (s *SQLStore) Name() string { return "sql/" + s.db.DriverName() }

// EnsureSchema creates pantry_items if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	schema := postgresSchema
	if s.db.DriverName() == config.DriverMySQL {
		schema = mysqlSchema
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return s.mapError(err, "failed to create pantry schema")
	}
	return nil
}

// Load reads every row
func (s *SQLStore) Load(ctx context.Context) (ledger.Collection, error) {
	var rows []itemRow
	query := `SELECT id, document, updated_at FROM pantry_items ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, s.mapError(err, "failed to load pantry items")
	}

	items := make(ledger.Collection, len(rows))
	for _, row := range rows {
		it, err := decodeItem(row.ID, row.Document)
		if err != nil {
			return nil, err
		}
		items[it.ID] = it
	}

	return items, nil
}

// Save replaces the table contents in a single transaction
func (s *SQLStore) Save(ctx context.Context, items ledger.Collection) error {
	rows := make([]itemRow, 0, len(items))
	for _, it := range items.Items() {
		doc, err := encodeItem(it)
		if err != nil {
			return err
		}
		updated := it.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		rows = append(rows, itemRow{ID: it.ID, Document: doc, UpdatedAt: updated.UTC()})
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pantry_items`); err != nil {
			return err
		}

		insert := tx.Rebind(`INSERT INTO pantry_items (id, document, updated_at) VALUES (?, ?, ?)`)
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, insert, row.ID, row.Document, row.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.mapError(err, "failed to save pantry items")
	}

	return nil
}

func (s *SQLStore) mapError(err error, msg string) error {
	if appErr := database.MapDriverError(err); appErr != nil {
		s.logger.Error().Err(err).Str("code", appErr.Code).Msg(msg)
		return appErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
