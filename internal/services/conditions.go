package services

import (
	"context"
	"fmt"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
	"go.uber.org/zap"
)

const ConditionsUnavailableText = "Weather unavailable."

// ConditionsResolver walks point -> stations -> latest observation. A failure
// at any hop fails the whole chain.
type ConditionsResolver struct {
	provider WeatherProvider
	logger   *zap.Logger
}

func NewConditionsResolver(provider WeatherProvider, logger *zap.Logger) *ConditionsResolver {
	return &ConditionsResolver{
		provider: provider,
		logger:   logger.With(zap.String("component", "conditions_resolver")),
	}
}

func (r *ConditionsResolver) Resolve(ctx context.Context, loc models.Location) (*models.Observation, error) {
	point, err := r.provider.GetPoint(ctx, loc)
	if err != nil {
		return nil, err
	}
	return r.ResolveFromPoint(ctx, point)
}

// ResolveFromPoint continues the chain from already fetched point metadata.
func (r *ConditionsResolver) ResolveFromPoint(ctx context.Context, point *client.PointMetadata) (*models.Observation, error) {
	if point == nil {
		return nil, fmt.Errorf("%w: no point metadata", client.ErrUnavailable)
	}

	stations, err := r.provider.GetStations(ctx, point.ObservationStationsURL)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: station list is empty", client.ErrUnavailable)
	}

	observation, err := r.provider.GetLatestObservation(ctx, stations[0])
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Resolved current conditions",
		zap.String("station", stations[0]),
		zap.String("description", observation.Description))

	return observation, nil
}

// RenderConditions formats an observation, e.g. "Current in South Bend,
// Indiana: 72°F, Sunny". A nil observation renders the placeholder.
func RenderConditions(city string, observation *models.Observation) string {
	if observation == nil {
		return ConditionsUnavailableText
	}

	if f, ok := observation.TemperatureFahrenheit(); ok {
		return fmt.Sprintf("Current in %s: %d°F, %s", city, f, observation.Description)
	}
	return fmt.Sprintf("Current in %s: %s", city, observation.Description)
}
