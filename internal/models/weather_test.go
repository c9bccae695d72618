package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCelsiusToFahrenheit(t *testing.T) {
	tests := []struct {
		celsius float64
		want    int
	}{
		{0, 32},
		{100, 212},
		{-40, -40},
		{22.2, 72},
		{37, 99},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CelsiusToFahrenheit(tt.celsius), "celsius %v", tt.celsius)
	}
}

func TestObservation_TemperatureFahrenheit(t *testing.T) {
	_, ok := Observation{Description: "Fog"}.TemperatureFahrenheit()
	assert.False(t, ok)

	c := 20.0
	f, ok := Observation{TemperatureCelsius: &c}.TemperatureFahrenheit()
	assert.True(t, ok)
	assert.Equal(t, 68, f)
}

func TestLocation_Coordinates(t *testing.T) {
	loc := Location{Latitude: 41.6764, Longitude: -86.252}
	assert.Equal(t, "41.6764,-86.2520", loc.Coordinates())
}

func TestForecastPayload_Periods(t *testing.T) {
	t.Run("sorted and filtered", func(t *testing.T) {
		payload := ForecastPayload(`{"properties":{"periods":[
			{"startTime":"2024-06-01T15:00:00-04:00","temperature":80,"temperatureUnit":"F","shortForecast":"Hot"},
			{"startTime":"not a time","temperature":70,"shortForecast":"Bad"},
			{"startTime":"2024-06-01T14:00:00-04:00","temperature":null,"shortForecast":"No temp"},
			{"startTime":"2024-06-01T12:00:00-04:00","temperature":75,"shortForecast":"Sunny"}
		]}}`)

		periods, err := payload.Periods()
		require.NoError(t, err)
		require.Len(t, periods, 2)

		assert.Equal(t, "Sunny", periods[0].ShortForecast)
		assert.Equal(t, "F", periods[0].TemperatureUnit)
		assert.Equal(t, "Hot", periods[1].ShortForecast)
		assert.True(t, periods[0].StartTime.Equal(time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)))
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := ForecastPayload(nil).Periods()
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := ForecastPayload(`{"properties":`).Periods()
		assert.Error(t, err)
	})
}

func TestForecastSummaryLine_String(t *testing.T) {
	line := ForecastSummaryLine{Label: "3 PM", Temperature: 72, Unit: "F", Description: "Sunny"}
	assert.Equal(t, "3 PM: 72°F, Sunny", line.String())

	line.Temperature = 71.5
	assert.Equal(t, "3 PM: 71.5°F, Sunny", line.String())
}
