package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/internal/store"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	mu sync.Mutex

	point       *client.PointMetadata
	pointErr    error
	stations    []string
	stationsErr error
	observation *models.Observation
	obsErr      error
	forecast    models.ForecastPayload
	forecastErr error
	alerts      []models.Alert
	alertsErr   error

	forecastCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		point: &client.PointMetadata{
			ForecastHourlyURL:      "https://nws.test/forecast/hourly",
			ObservationStationsURL: "https://nws.test/stations",
		},
		stations: []string{"KSBN"},
	}
}

func (p *fakeProvider) GetPoint(context.Context, models.Location) (*client.PointMetadata, error) {
	return p.point, p.pointErr
}

func (p *fakeProvider) GetStations(context.Context, string) ([]string, error) {
	return p.stations, p.stationsErr
}

func (p *fakeProvider) GetLatestObservation(context.Context, string) (*models.Observation, error) {
	return p.observation, p.obsErr
}

func (p *fakeProvider) GetHourlyForecast(context.Context, string) (models.ForecastPayload, error) {
	p.mu.Lock()
	p.forecastCalls++
	p.mu.Unlock()
	return p.forecast, p.forecastErr
}

func (p *fakeProvider) GetActiveAlerts(context.Context, models.Location) ([]models.Alert, error) {
	return p.alerts, p.alertsErr
}

type fakePublisher struct {
	mu     sync.Mutex
	errs   []error
	posted []string
	calls  int
}

// Publish returns the queued errors in order, then succeeds. Only
// successful calls are recorded as posted.
func (p *fakePublisher) Publish(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return err
		}
	}
	p.posted = append(p.posted, text)
	return nil
}

type period struct {
	start       time.Time
	temperature int
	forecast    string
}

func payloadOf(periods ...period) models.ForecastPayload {
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = fmt.Sprintf(`{"startTime":%q,"temperature":%d,"temperatureUnit":"F","shortForecast":%q}`,
			p.start.Format(time.RFC3339), p.temperature, p.forecast)
	}
	return models.ForecastPayload(`{"properties":{"periods":[` + strings.Join(parts, ",") + `]}}`)
}

func indianapolis(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Indiana/Indianapolis")
	require.NoError(t, err)
	return loc
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
