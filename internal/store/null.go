package store

import (
	"context"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"go.uber.org/zap"
)

// NullStore is used when no backend could be opened. Every value reads as
// absent and writes are logged and dropped, so the bot keeps posting
// without persisted state.
type NullStore struct {
	logger *zap.Logger
}

func NewNullStore(logger *zap.Logger) *NullStore {
	return &NullStore{logger: logger.With(zap.String("store", "none"))}
}

func (s *NullStore) LoadForecast(context.Context) (*models.ForecastCacheEntry, error) {
	return nil, ErrNotFound
}

func (s *NullStore) SaveForecast(_ context.Context, entry models.ForecastCacheEntry) error {
	s.logger.Warn("No state store, forecast cache not persisted", zap.Time("fetched_at", entry.FetchedAt))
	return nil
}

func (s *NullStore) LoadLastAlert(context.Context) (string, error) {
	return "", ErrNotFound
}

func (s *NullStore) SaveLastAlert(_ context.Context, event string) error {
	s.logger.Warn("No state store, last alert not persisted", zap.String("event", event))
	return nil
}

func (s *NullStore) Close() error {
	return nil
}
