package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a value has never been persisted.
	ErrNotFound = errors.New("state not found")

	// ErrStale is returned when a forecast entry is not newer than the one
	// already stored. The stored entry is left untouched.
	ErrStale = errors.New("forecast entry is not newer than stored entry")
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store persists the two independent values the bot keeps across restarts.
// Each value is read and written as a whole.
type Store interface {
	LoadForecast(ctx context.Context) (*models.ForecastCacheEntry, error)
	SaveForecast(ctx context.Context, entry models.ForecastCacheEntry) error
	LoadLastAlert(ctx context.Context) (string, error)
	SaveLastAlert(ctx context.Context, event string) error
	Close() error
}

func Open(backend, dir, sqlitePath string, logger *zap.Logger) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(sqlitePath, logger)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// OpenOrNull opens the configured backend and falls back to a NullStore when
// that fails. State loss is logged; it never stops the process.
func OpenOrNull(backend, dir, sqlitePath string, logger *zap.Logger) Store {
	st, err := Open(backend, dir, sqlitePath, logger)
	if err != nil {
		logger.Warn("Failed to open state store, running without persisted state",
			zap.String("backend", backend),
			zap.Error(err))
		return NewNullStore(logger)
	}
	return st
}
