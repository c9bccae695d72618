package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"go.uber.org/zap"
)

const DefaultNWSBaseURL = "https://api.weather.gov"

// NWSClient talks to the National Weather Service API. Every call goes
// through the embedded BaseClient, so failures surface as ErrUnavailable.
type NWSClient struct {
	*BaseClient
	baseURL string
}

type PointMetadata struct {
	ForecastHourlyURL      string
	ObservationStationsURL string
}

type pointResponse struct {
	Properties struct {
		ForecastHourly      string `json:"forecastHourly"`
		ObservationStations string `json:"observationStations"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties struct {
		Temperature struct {
			Value    *float64 `json:"value"`
			UnitCode string   `json:"unitCode"`
		} `json:"temperature"`
		TextDescription string `json:"textDescription"`
	} `json:"properties"`
}

type alertResponse struct {
	Features []struct {
		Properties struct {
			Event       string `json:"event"`
			Description string `json:"description"`
		} `json:"properties"`
	} `json:"features"`
}

func NewNWSClient(baseURL string, config ClientConfig, logger *zap.Logger, opts ...Option) *NWSClient {
	if baseURL == "" {
		baseURL = DefaultNWSBaseURL
	}
	return &NWSClient{
		BaseClient: NewBaseClient("nws", config, logger, opts...),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// GetPoint resolves the grid metadata for a location, which names the
// hourly forecast and observation station endpoints.
func (c *NWSClient) GetPoint(ctx context.Context, loc models.Location) (*PointMetadata, error) {
	var response pointResponse
	if err := c.GetJSON(ctx, fmt.Sprintf("%s/points/%s", c.baseURL, loc.Coordinates()), &response); err != nil {
		return nil, fmt.Errorf("failed to fetch point metadata: %w", err)
	}

	point := &PointMetadata{
		ForecastHourlyURL:      response.Properties.ForecastHourly,
		ObservationStationsURL: response.Properties.ObservationStations,
	}
	if point.ForecastHourlyURL == "" && point.ObservationStationsURL == "" {
		return nil, fmt.Errorf("%w: point metadata has no forecast or station links", ErrUnavailable)
	}

	return point, nil
}

// GetStations returns the candidate observation station identifiers in the
// order the provider ranks them.
func (c *NWSClient) GetStations(ctx context.Context, stationsURL string) ([]string, error) {
	if stationsURL == "" {
		return nil, fmt.Errorf("%w: no observation stations link", ErrUnavailable)
	}

	var response stationsResponse
	if err := c.GetJSON(ctx, stationsURL, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch stations: %w", err)
	}

	stations := make([]string, 0, len(response.Features))
	for _, feature := range response.Features {
		if id := feature.Properties.StationIdentifier; id != "" {
			stations = append(stations, id)
		}
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: station list is empty", ErrUnavailable)
	}

	return stations, nil
}

func (c *NWSClient) GetLatestObservation(ctx context.Context, stationID string) (*models.Observation, error) {
	endpoint := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, url.PathEscape(stationID))

	var response observationResponse
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch latest observation: %w", err)
	}

	observation := &models.Observation{
		Description: response.Properties.TextDescription,
	}
	if v := response.Properties.Temperature.Value; v != nil {
		celsius := *v
		if strings.HasSuffix(response.Properties.Temperature.UnitCode, "degF") {
			celsius = (celsius - 32) * 5 / 9
		}
		observation.TemperatureCelsius = &celsius
	}

	return observation, nil
}

// GetHourlyForecast returns the raw forecast document. A document without
// any usable period counts as unavailable so it never replaces a good cache.
func (c *NWSClient) GetHourlyForecast(ctx context.Context, forecastURL string) (models.ForecastPayload, error) {
	if forecastURL == "" {
		return nil, fmt.Errorf("%w: no hourly forecast link", ErrUnavailable)
	}

	body, err := c.Get(ctx, forecastURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hourly forecast: %w", err)
	}

	payload := models.ForecastPayload(body)
	periods, err := payload.Periods()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: forecast has no periods", ErrUnavailable)
	}

	return payload, nil
}

// GetActiveAlerts returns the active alerts for a location in provider order.
func (c *NWSClient) GetActiveAlerts(ctx context.Context, loc models.Location) ([]models.Alert, error) {
	endpoint := fmt.Sprintf("%s/alerts/active?point=%s", c.baseURL, loc.Coordinates())

	var response alertResponse
	if err := c.GetJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch active alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(response.Features))
	for _, feature := range response.Features {
		if feature.Properties.Event == "" {
			continue
		}
		alerts = append(alerts, models.Alert{
			Event:       feature.Properties.Event,
			Description: feature.Properties.Description,
		})
	}

	return alerts, nil
}
