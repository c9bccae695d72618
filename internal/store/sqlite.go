package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	keyForecast  = "forecast_cache"
	keyLastAlert = "last_alert"
)

// SQLiteStore keeps each value as one row of a key/value table. Row upserts
// are atomic, and SQLite's own file locking covers concurrent processes.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS bot_state (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			fetched_at INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bot_state table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("store", BackendSQLite)),
	}, nil
}

func (s *SQLiteStore) LoadForecast(ctx context.Context) (*models.ForecastCacheEntry, error) {
	var (
		payload   []byte
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, fetched_at FROM bot_state WHERE key = ?`, keyForecast,
	).Scan(&payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading forecast cache: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrNotFound
	}

	return &models.ForecastCacheEntry{
		FetchedAt: time.Unix(0, fetchedAt).UTC(),
		Payload:   payload,
	}, nil
}

func (s *SQLiteStore) SaveForecast(ctx context.Context, entry models.ForecastCacheEntry) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_state (key, value, fetched_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			fetched_at = excluded.fetched_at,
			updated_at = CURRENT_TIMESTAMP
		WHERE bot_state.fetched_at < excluded.fetched_at
	`, keyForecast, []byte(entry.Payload), entry.FetchedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("writing forecast cache: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrStale
	}

	s.logger.Debug("State written", zap.String("key", keyForecast), zap.Int("bytes", len(entry.Payload)))
	return nil
}

func (s *SQLiteStore) LoadLastAlert(ctx context.Context) (string, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_state WHERE key = ?`, keyLastAlert,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading last alert: %w", err)
	}
	if len(value) == 0 {
		return "", ErrNotFound
	}

	return string(value), nil
}

func (s *SQLiteStore) SaveLastAlert(ctx context.Context, event string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, keyLastAlert, []byte(event))
	if err != nil {
		return fmt.Errorf("writing last alert: %w", err)
	}

	s.logger.Debug("State written", zap.String("key", keyLastAlert))
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
