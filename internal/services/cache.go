package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/internal/store"
	"go.uber.org/zap"
)

// ForecastCache keeps the last successfully fetched forecast payload. It
// never returns errors: persistence problems are logged and read as a miss.
type ForecastCache struct {
	mu        sync.RWMutex
	store     store.Store
	logger    *zap.Logger
	fetchedAt time.Time
}

func NewForecastCache(st store.Store, logger *zap.Logger) *ForecastCache {
	return &ForecastCache{
		store:  st,
		logger: logger.With(zap.String("component", "forecast_cache")),
	}
}

// Save persists payload unless an entry at least as new is already stored.
func (c *ForecastCache) Save(ctx context.Context, payload models.ForecastPayload, fetchedAt time.Time) {
	entry := models.ForecastCacheEntry{
		FetchedAt: fetchedAt.UTC(),
		Payload:   []byte(payload),
	}

	err := c.store.SaveForecast(ctx, entry)
	switch {
	case err == nil:
		c.mu.Lock()
		c.fetchedAt = entry.FetchedAt
		c.mu.Unlock()
		c.logger.Debug("Forecast cached",
			zap.Time("fetched_at", entry.FetchedAt),
			zap.Int("bytes", len(payload)))
	case errors.Is(err, store.ErrStale):
		c.logger.Info("Stored forecast is newer, keeping it",
			zap.Time("fetched_at", entry.FetchedAt))
	default:
		c.logger.Error("Failed to persist forecast cache", zap.Error(err))
	}
}

// Load returns the cached payload, or false when there is none or it could
// not be read.
func (c *ForecastCache) Load(ctx context.Context) (models.ForecastPayload, time.Time, bool) {
	entry, err := c.store.LoadForecast(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("Failed to read forecast cache, treating as empty", zap.Error(err))
		}
		return nil, time.Time{}, false
	}

	c.mu.Lock()
	c.fetchedAt = entry.FetchedAt
	c.mu.Unlock()

	return models.ForecastPayload(entry.Payload), entry.FetchedAt, true
}

// FetchedAt reports the age marker of the last entry this process saw.
func (c *ForecastCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
