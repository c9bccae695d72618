package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/metrics"
	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
	"go.uber.org/zap"
)

const (
	KindWeather = "weather"
	KindAlert   = "alert"

	JobWeatherUpdate = "weather_update"
	JobAlertCheck    = "alert_check"
)

type BotConfig struct {
	Location         models.Location
	WeatherHashtags  string
	AlertHashtags    string
	RateLimitBackoff time.Duration
}

// BotDeps carries the collaborators a Bot is assembled from.
type BotDeps struct {
	Provider     WeatherProvider
	Publisher    Publisher
	Cache        *ForecastCache
	Builder      *ForecastBuilder
	Resolver     *ConditionsResolver
	Deduplicator *AlertDeduplicator
	Formatter    *Formatter
}

// Bot implements the two scheduled jobs: the weather update post and the
// severe weather alert check.
type Bot struct {
	cfg          BotConfig
	provider     WeatherProvider
	publisher    Publisher
	cache        *ForecastCache
	builder      *ForecastBuilder
	resolver     *ConditionsResolver
	deduplicator *AlertDeduplicator
	formatter    *Formatter
	logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu               sync.RWMutex
	lastUpdateAt     time.Time
	lastAlertCheckAt time.Time
	postsSent        int
	postsFailed      int
	alertsPublished  int
}

func NewBot(cfg BotConfig, deps BotDeps, logger *zap.Logger) *Bot {
	return &Bot{
		cfg:          cfg,
		provider:     deps.Provider,
		publisher:    deps.Publisher,
		cache:        deps.Cache,
		builder:      deps.Builder,
		resolver:     deps.Resolver,
		deduplicator: deps.Deduplicator,
		formatter:    deps.Formatter,
		logger:       logger.With(zap.String("component", "bot")),
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// SetClock replaces the time source. Used by tests.
func (b *Bot) SetClock(now func() time.Time) {
	b.now = now
}

// SetSleeper replaces the rate-limit wait. Used by tests.
func (b *Bot) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	b.sleep = sleep
}

// ComposeWeatherUpdate renders the weather post for the current time and
// caches a fresh forecast. It always returns text: unavailable parts are
// replaced by placeholders or cached data.
func (b *Bot) ComposeWeatherUpdate(ctx context.Context) string {
	return b.compose(ctx, true)
}

// PreviewWeatherUpdate renders the same text without writing any state, so
// it is safe to call while jobs run.
func (b *Bot) PreviewWeatherUpdate(ctx context.Context) string {
	return b.compose(ctx, false)
}

func (b *Bot) compose(ctx context.Context, persist bool) string {
	now := b.now()

	point, err := b.provider.GetPoint(ctx, b.cfg.Location)
	if err != nil {
		b.logger.Warn("Point lookup unavailable", zap.Error(err))
		point = nil
	}

	var observation *models.Observation
	if point != nil {
		observation, err = b.resolver.ResolveFromPoint(ctx, point)
		if err != nil {
			b.logger.Warn("Current conditions unavailable", zap.Error(err))
			observation = nil
		}
	}

	lines := b.forecast(ctx, point, now, persist)

	body := join(RenderConditions(b.cfg.Location.Name, observation), RenderForecast(lines))
	return b.formatter.Format(Message{
		Body:     body,
		Hashtags: b.cfg.WeatherHashtags,
	})
}

// forecast loads the cached payload before fetching so a fresh fetch can be
// merged with the previous one; live periods win at identical instants.
func (b *Bot) forecast(ctx context.Context, point *client.PointMetadata, now time.Time, persist bool) []models.ForecastSummaryLine {
	var payloads []SourcedPayload

	cached, cachedAt, hasCache := b.cache.Load(ctx)

	if point != nil {
		live, err := b.provider.GetHourlyForecast(ctx, point.ForecastHourlyURL)
		if err != nil {
			b.logger.Warn("Live forecast unavailable", zap.Error(err))
		} else {
			payloads = append(payloads, SourcedPayload{Source: SourceLive, Payload: live})
			if persist {
				b.cache.Save(ctx, live, now)
			}
		}
	}

	if hasCache {
		payloads = append(payloads, SourcedPayload{Source: SourceCache, Payload: cached})
	}

	lines := b.builder.Build(payloads, now)
	source := forecastSource(lines)
	metrics.ObserveForecastSource(source)

	b.logger.Debug("Forecast summary built",
		zap.Int("lines", len(lines)),
		zap.String("source", source),
		zap.Bool("cache_available", hasCache),
		zap.Time("cache_fetched_at", cachedAt))

	return lines
}

// PostWeatherUpdate composes and publishes the weather post.
func (b *Bot) PostWeatherUpdate(ctx context.Context) error {
	b.mu.Lock()
	b.lastUpdateAt = b.now()
	b.mu.Unlock()

	text := b.ComposeWeatherUpdate(ctx)
	return b.publish(ctx, KindWeather, text)
}

// CheckAlerts publishes the head of the active alerts feed when it differs
// from the last one published. The dedup state only advances after a
// successful publish.
func (b *Bot) CheckAlerts(ctx context.Context) error {
	b.mu.Lock()
	b.lastAlertCheckAt = b.now()
	b.mu.Unlock()

	alerts, err := b.provider.GetActiveAlerts(ctx, b.cfg.Location)
	if err != nil {
		return fmt.Errorf("alert check skipped: %w", err)
	}

	if len(alerts) == 0 {
		b.logger.Info("No alerts.")
		metrics.ObserveAlertDecision(metrics.AlertNone)
		return nil
	}

	alert, ok := b.deduplicator.Select(alerts)
	if !ok {
		b.logger.Debug("Head alert already published",
			zap.Int("active", len(alerts)),
			zap.String("last", b.deduplicator.LastPublished()))
		metrics.ObserveAlertDecision(metrics.AlertDuplicate)
		return nil
	}

	text := b.formatter.Format(Message{
		Header:   fmt.Sprintf("⚠️ %s ⚠️", alert.Event),
		Body:     alert.Description,
		Hashtags: b.cfg.AlertHashtags,
	})

	if err := b.publish(ctx, KindAlert, text); err != nil {
		return fmt.Errorf("alert %q not published: %w", alert.Event, err)
	}

	// Already published; a persistence failure is logged by the deduplicator
	// and must not be reported as a failed publish.
	_ = b.deduplicator.RecordPublished(ctx, alert.Event)
	metrics.ObserveAlertDecision(metrics.AlertPublished)

	b.mu.Lock()
	b.alertsPublished++
	b.mu.Unlock()

	return nil
}

// publish posts text once, and once more after the backoff when the
// platform reports rate limiting. Other failures are not retried.
func (b *Bot) publish(ctx context.Context, kind, text string) error {
	err := b.publisher.Publish(ctx, text)

	if errors.Is(err, client.ErrRateLimited) {
		metrics.ObservePublish(kind, metrics.PublishRateLimited)
		b.logger.Warn("Rate limited, retrying once after backoff",
			zap.String("kind", kind),
			zap.Duration("backoff", b.cfg.RateLimitBackoff),
			zap.Error(err))

		if sleepErr := b.sleep(ctx, b.cfg.RateLimitBackoff); sleepErr != nil {
			err = fmt.Errorf("rate limit backoff interrupted: %w", sleepErr)
		} else {
			err = b.publisher.Publish(ctx, text)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.postsFailed++
		metrics.ObservePublish(kind, metrics.PublishFailed)
		b.logger.Error("Failed to publish",
			zap.String("kind", kind),
			zap.Error(err))
		return err
	}

	b.postsSent++
	metrics.ObservePublish(kind, metrics.PublishSent)
	b.logger.Info("Published",
		zap.String("kind", kind),
		zap.String("text", text))
	return nil
}

func (b *Bot) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"location":            b.cfg.Location.Name,
		"last_update_at":      b.lastUpdateAt,
		"last_alert_check_at": b.lastAlertCheckAt,
		"posts_sent":          b.postsSent,
		"posts_failed":        b.postsFailed,
		"alerts_published":    b.alertsPublished,
		"last_alert":          b.deduplicator.LastPublished(),
		"cache_fetched_at":    b.cache.FetchedAt(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
