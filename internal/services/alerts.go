package services

import (
	"context"
	"errors"
	"sync"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/internal/store"
	"go.uber.org/zap"
)

// AlertDeduplicator remembers the event name of the last alert that was
// actually published. Only one identity is tracked, so two alerts that keep
// trading places at the head of the feed are each published again.
type AlertDeduplicator struct {
	mu     sync.RWMutex
	store  store.Store
	logger *zap.Logger
	last   string
}

// NewAlertDeduplicator loads the persisted state. An unreadable state is
// logged and treated as empty.
func NewAlertDeduplicator(ctx context.Context, st store.Store, logger *zap.Logger) *AlertDeduplicator {
	d := &AlertDeduplicator{
		store:  st,
		logger: logger.With(zap.String("component", "alert_deduplicator")),
	}

	last, err := st.LoadLastAlert(ctx)
	switch {
	case err == nil:
		d.last = last
		d.logger.Info("Loaded last published alert", zap.String("event", last))
	case errors.Is(err, store.ErrNotFound):
	default:
		d.logger.Warn("Failed to read last alert, treating as none", zap.Error(err))
	}

	return d
}

// ShouldPublish reports whether event differs from the last published alert.
// It has no side effects.
func (d *AlertDeduplicator) ShouldPublish(event string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return event != d.last
}

// Select returns the head of the feed when it is eligible for publishing.
// Alerts behind the head are not considered this cycle; they get their turn
// only once they reach the head of the feed.
func (d *AlertDeduplicator) Select(alerts []models.Alert) (models.Alert, bool) {
	if len(alerts) == 0 || !d.ShouldPublish(alerts[0].Event) {
		return models.Alert{}, false
	}
	return alerts[0], true
}

// RecordPublished advances the state. Call it only after the publisher
// confirmed the post. The in-memory state advances even when persisting
// fails, so this process does not repeat the alert.
func (d *AlertDeduplicator) RecordPublished(ctx context.Context, event string) error {
	d.mu.Lock()
	d.last = event
	d.mu.Unlock()

	if err := d.store.SaveLastAlert(ctx, event); err != nil {
		d.logger.Error("Failed to persist last alert", zap.String("event", event), zap.Error(err))
		return err
	}
	return nil
}

func (d *AlertDeduplicator) LastPublished() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}
