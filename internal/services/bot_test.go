package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/internal/store"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testWeatherTags = "#SouthBend #Indiana #Weather"
	testAlertTags   = "#WeatherAlert #SouthBend"
)

type botFixture struct {
	bot       *Bot
	provider  *fakeProvider
	publisher *fakePublisher
	store     store.Store
	sleeps    []time.Duration
	now       time.Time
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	tz := indianapolis(t)
	f := &botFixture{
		provider:  newFakeProvider(),
		publisher: &fakePublisher{},
		store:     newTestStore(t),
		now:       time.Date(2024, 6, 1, 8, 55, 0, 0, tz),
	}

	f.bot = NewBot(BotConfig{
		Location:         models.Location{Latitude: 41.6764, Longitude: -86.252, Name: "South Bend, Indiana"},
		WeatherHashtags:  testWeatherTags,
		AlertHashtags:    testAlertTags,
		RateLimitBackoff: 15 * time.Minute,
	}, BotDeps{
		Provider:  f.provider,
		Publisher: f.publisher,
		Cache:     NewForecastCache(f.store, logger),
		Builder: NewForecastBuilder(ForecastOptions{
			Policy:    PolicyWindowed,
			Horizon:   3 * time.Hour,
			Spacing:   3 * time.Hour,
			Tolerance: time.Hour,
			Slots:     4,
			Location:  tz,
		}, logger),
		Resolver:     NewConditionsResolver(f.provider, logger),
		Deduplicator: NewAlertDeduplicator(context.Background(), f.store, logger),
		Formatter:    NewFormatter(DefaultMessageLimit),
	}, logger)

	f.bot.SetClock(func() time.Time { return f.now })
	f.bot.SetSleeper(func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	})

	return f
}

func (f *botFixture) at(h, m int) time.Time {
	return time.Date(f.now.Year(), f.now.Month(), f.now.Day(), h, m, 0, 0, f.now.Location())
}

func TestBot_ComposeWeatherUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("live data", func(t *testing.T) {
		f := newBotFixture(t)
		celsius := 22.2
		f.provider.observation = &models.Observation{TemperatureCelsius: &celsius, Description: "Sunny"}
		f.provider.forecast = payloadOf(
			period{f.at(12, 0), 75, "Sunny"},
			period{f.at(15, 0), 80, "Partly Cloudy"},
			period{f.at(18, 0), 78, "Thunderstorms"},
			period{f.at(21, 0), 68, "Clear"},
		)

		text := f.bot.ComposeWeatherUpdate(ctx)

		assert.Equal(t, "Current in South Bend, Indiana: 72°F, Sunny\n\n"+
			"12 PM: 75°F, Sunny\n3 PM: 80°F, Partly Cloudy\n6 PM: 78°F, Thunderstorms\n9 PM: 68°F, Clear\n\n"+
			testWeatherTags, text)

		_, fetchedAt, ok := NewForecastCache(f.store, zaptest.NewLogger(t)).Load(ctx)
		require.True(t, ok)
		assert.True(t, fetchedAt.Equal(f.now))
	})

	t.Run("falls back to cache when live forecast fails", func(t *testing.T) {
		f := newBotFixture(t)
		require.NoError(t, f.store.SaveForecast(ctx, models.ForecastCacheEntry{
			FetchedAt: f.now.Add(-6 * time.Hour),
			Payload:   []byte(payloadOf(period{f.at(12, 0), 70, "Cloudy"}, period{f.at(15, 0), 72, "Cloudy"})),
		}))
		f.provider.obsErr = client.ErrUnavailable
		f.provider.forecastErr = client.ErrUnavailable

		text := f.bot.ComposeWeatherUpdate(ctx)

		assert.True(t, strings.HasPrefix(text, ConditionsUnavailableText+"\n\n"))
		assert.Contains(t, text, "12 PM: 70°F, Cloudy\n3 PM: 72°F, Cloudy")
	})

	t.Run("everything unavailable still renders", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.pointErr = client.ErrUnavailable

		text := f.bot.ComposeWeatherUpdate(ctx)

		assert.Equal(t, ConditionsUnavailableText+"\n\n"+NoForecastText+"\n\n"+testWeatherTags, text)
		assert.Equal(t, 0, f.provider.forecastCalls)
	})
}

func TestBot_PreviewWeatherUpdate(t *testing.T) {
	ctx := context.Background()
	f := newBotFixture(t)
	f.provider.forecast = payloadOf(period{f.at(12, 0), 75, "Sunny"})

	text := f.bot.PreviewWeatherUpdate(ctx)

	assert.Contains(t, text, "12 PM: 75°F, Sunny")
	_, err := f.store.LoadForecast(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.publisher.calls)
}

func TestBot_PostWeatherUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes once", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.pointErr = client.ErrUnavailable

		require.NoError(t, f.bot.PostWeatherUpdate(ctx))
		require.Len(t, f.publisher.posted, 1)
		assert.LessOrEqual(t, Length(f.publisher.posted[0]), DefaultMessageLimit)
		assert.Equal(t, 1, f.bot.GetStats()["posts_sent"])
	})

	t.Run("rate limit retries once after backoff", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.pointErr = client.ErrUnavailable
		f.publisher.errs = []error{fmt.Errorf("%w: HTTP 429", client.ErrRateLimited)}

		require.NoError(t, f.bot.PostWeatherUpdate(ctx))
		assert.Equal(t, 2, f.publisher.calls)
		assert.Equal(t, []time.Duration{15 * time.Minute}, f.sleeps)
		assert.Len(t, f.publisher.posted, 1)
	})

	t.Run("second rate limit gives up", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.pointErr = client.ErrUnavailable
		f.publisher.errs = []error{client.ErrRateLimited, client.ErrRateLimited}

		err := f.bot.PostWeatherUpdate(ctx)
		assert.ErrorIs(t, err, client.ErrRateLimited)
		assert.Equal(t, 2, f.publisher.calls)
		assert.Len(t, f.sleeps, 1)
	})

	t.Run("other failures are not retried", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.pointErr = client.ErrUnavailable
		f.publisher.errs = []error{errors.New("HTTP 403")}

		assert.Error(t, f.bot.PostWeatherUpdate(ctx))
		assert.Equal(t, 1, f.publisher.calls)
		assert.Empty(t, f.sleeps)
	})
}

func TestBot_CheckAlerts(t *testing.T) {
	ctx := context.Background()
	tornado := models.Alert{Event: "Tornado Warning", Description: "Take shelter now."}
	flood := models.Alert{Event: "Flood Watch", Description: "Flooding possible."}

	t.Run("publishes a new alert once", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alerts = []models.Alert{tornado}

		require.NoError(t, f.bot.CheckAlerts(ctx))
		require.NoError(t, f.bot.CheckAlerts(ctx))

		require.Len(t, f.publisher.posted, 1)
		assert.Equal(t, "⚠️ Tornado Warning ⚠️\n\nTake shelter now.\n\n"+testAlertTags, f.publisher.posted[0])

		last, err := f.store.LoadLastAlert(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Tornado Warning", last)
	})

	t.Run("failed publish does not advance state", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alerts = []models.Alert{tornado}
		f.publisher.errs = []error{errors.New("HTTP 503")}

		assert.Error(t, f.bot.CheckAlerts(ctx))
		_, err := f.store.LoadLastAlert(ctx)
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, f.bot.CheckAlerts(ctx))
		assert.Len(t, f.publisher.posted, 1)
		assert.Equal(t, "Tornado Warning", f.bot.GetStats()["last_alert"])
	})

	t.Run("head matching the last published alert skips the cycle", func(t *testing.T) {
		f := newBotFixture(t)
		require.NoError(t, f.store.SaveLastAlert(ctx, tornado.Event))
		f.bot.deduplicator = NewAlertDeduplicator(ctx, f.store, zaptest.NewLogger(t))
		f.provider.alerts = []models.Alert{tornado, flood}

		require.NoError(t, f.bot.CheckAlerts(ctx))
		assert.Zero(t, f.publisher.calls)
	})

	t.Run("unchanged two alert feed is posted once", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alerts = []models.Alert{tornado, flood}

		for i := 0; i < 6; i++ {
			require.NoError(t, f.bot.CheckAlerts(ctx))
		}

		require.Len(t, f.publisher.posted, 1)
		assert.True(t, strings.HasPrefix(f.publisher.posted[0], "⚠️ Tornado Warning ⚠️"))
	})

	t.Run("new head is posted when the feed changes", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alerts = []models.Alert{tornado, flood}
		require.NoError(t, f.bot.CheckAlerts(ctx))

		f.provider.alerts = []models.Alert{flood}
		require.NoError(t, f.bot.CheckAlerts(ctx))
		require.NoError(t, f.bot.CheckAlerts(ctx))

		require.Len(t, f.publisher.posted, 2)
		assert.True(t, strings.HasPrefix(f.publisher.posted[1], "⚠️ Flood Watch ⚠️"))
	})

	t.Run("long description is truncated", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alerts = []models.Alert{{Event: "Winter Storm Warning", Description: strings.Repeat("Heavy snow expected. ", 40)}}

		require.NoError(t, f.bot.CheckAlerts(ctx))
		require.Len(t, f.publisher.posted, 1)
		assert.LessOrEqual(t, Length(f.publisher.posted[0]), DefaultMessageLimit)
		assert.True(t, strings.HasSuffix(f.publisher.posted[0], testAlertTags))
	})

	t.Run("no alerts", func(t *testing.T) {
		f := newBotFixture(t)

		require.NoError(t, f.bot.CheckAlerts(ctx))
		assert.Zero(t, f.publisher.calls)
	})

	t.Run("fetch failure skips the cycle", func(t *testing.T) {
		f := newBotFixture(t)
		f.provider.alertsErr = client.ErrUnavailable

		err := f.bot.CheckAlerts(ctx)
		assert.ErrorIs(t, err, client.ErrUnavailable)
		assert.Zero(t, f.publisher.calls)
	})
}
