package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Name      string  `json:"name" yaml:"name"`
}

// Coordinates renders the location the way the NWS points and alerts
// endpoints expect it.
func (l Location) Coordinates() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

type ForecastPeriod struct {
	StartTime       time.Time `json:"start_time"`
	Temperature     float64   `json:"temperature"`
	TemperatureUnit string    `json:"temperature_unit"`
	ShortForecast   string    `json:"short_forecast"`
}

// ForecastPayload is the raw hourly forecast document as delivered by the
// provider. It is cached verbatim so live and cached data go through the same
// parsing and selection code.
type ForecastPayload []byte

type forecastDocument struct {
	Properties struct {
		Periods []struct {
			StartTime       string   `json:"startTime"`
			Temperature     *float64 `json:"temperature"`
			TemperatureUnit string   `json:"temperatureUnit"`
			ShortForecast   string   `json:"shortForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

// Periods decodes the payload and returns its periods sorted by start time.
// Periods with an unparseable start time or no temperature are skipped.
func (p ForecastPayload) Periods() ([]ForecastPeriod, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("empty forecast payload")
	}

	var doc forecastDocument
	if err := json.Unmarshal(p, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse forecast payload: %w", err)
	}

	periods := make([]ForecastPeriod, 0, len(doc.Properties.Periods))
	for _, raw := range doc.Properties.Periods {
		start, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil || raw.Temperature == nil {
			continue
		}
		unit := raw.TemperatureUnit
		if unit == "" {
			unit = "F"
		}
		periods = append(periods, ForecastPeriod{
			StartTime:       start,
			Temperature:     *raw.Temperature,
			TemperatureUnit: unit,
			ShortForecast:   raw.ShortForecast,
		})
	}

	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].StartTime.Before(periods[j].StartTime)
	})

	return periods, nil
}

type ForecastCacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

type Observation struct {
	TemperatureCelsius *float64 `json:"temperature_celsius"`
	Description        string   `json:"description"`
}

// TemperatureFahrenheit converts the observed temperature, reporting false
// when the station did not report one.
func (o Observation) TemperatureFahrenheit() (int, bool) {
	if o.TemperatureCelsius == nil {
		return 0, false
	}
	return CelsiusToFahrenheit(*o.TemperatureCelsius), true
}

func CelsiusToFahrenheit(c float64) int {
	return int(math.Round(c*9/5 + 32))
}

type Alert struct {
	Event       string `json:"event"`
	Description string `json:"description"`
}

type ForecastSummaryLine struct {
	Label       string    `json:"label"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Unit        string    `json:"unit"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
}

// String renders the line as it appears in a post, e.g. "3 PM: 72°F, Sunny".
func (l ForecastSummaryLine) String() string {
	return fmt.Sprintf("%s: %s°%s, %s", l.Label, formatTemperature(l.Temperature), l.Unit, l.Description)
}

func formatTemperature(t float64) string {
	if t == float64(int64(t)) {
		return fmt.Sprintf("%d", int64(t))
	}
	return fmt.Sprintf("%.1f", t)
}
