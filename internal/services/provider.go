package services

import (
	"context"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
)

// WeatherProvider is the subset of the NWS API the bot consumes.
type WeatherProvider interface {
	GetPoint(ctx context.Context, loc models.Location) (*client.PointMetadata, error)
	GetStations(ctx context.Context, stationsURL string) ([]string, error)
	GetLatestObservation(ctx context.Context, stationID string) (*models.Observation, error)
	GetHourlyForecast(ctx context.Context, forecastURL string) (models.ForecastPayload, error)
	GetActiveAlerts(ctx context.Context, loc models.Location) ([]models.Alert, error)
}

// Publisher posts finished text. Rate limiting is reported by wrapping
// client.ErrRateLimited.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}
