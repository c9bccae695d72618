package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var southBend = models.Location{Latitude: 41.6764, Longitude: -86.252, Name: "South Bend, Indiana"}

func newNWSServer(t *testing.T, stations string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/points/41.6764,-86.2520", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"properties":{"forecastHourly":"%s/gridpoints/IWX/20,40/forecast/hourly","observationStations":"%s/gridpoints/IWX/20,40/stations"}}`,
			server.URL, server.URL)
	})
	mux.HandleFunc("/gridpoints/IWX/20,40/stations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(stations))
	})
	mux.HandleFunc("/stations/KSBN/observations/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"properties":{"temperature":{"value":22.2,"unitCode":"wmoUnit:degC"},"textDescription":"Sunny"}}`))
	})
	mux.HandleFunc("/gridpoints/IWX/20,40/forecast/hourly", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"properties":{"periods":[
			{"startTime":"2024-06-01T12:00:00-04:00","temperature":75,"temperatureUnit":"F","shortForecast":"Sunny"},
			{"startTime":"2024-06-01T13:00:00-04:00","temperature":77,"temperatureUnit":"F","shortForecast":"Mostly Sunny"}
		]}}`))
	})
	mux.HandleFunc("/alerts/active", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "41.6764,-86.2520", r.URL.Query().Get("point"))
		w.Write([]byte(`{"features":[
			{"properties":{"event":"Tornado Warning","description":"Take shelter now."}},
			{"properties":{"event":"","description":"ignored"}},
			{"properties":{"event":"Flood Watch","description":"Flooding possible."}}
		]}`))
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestNWSClient(t *testing.T, baseURL string) *NWSClient {
	return NewNWSClient(baseURL, ClientConfig{Attempts: 1, UserAgent: "weatherbot-test"}, zaptest.NewLogger(t))
}

func TestNWSClient_ConditionsChain(t *testing.T) {
	server := newNWSServer(t, `{"features":[{"properties":{"stationIdentifier":"KSBN"}},{"properties":{"stationIdentifier":"KGSH"}}]}`)
	c := newTestNWSClient(t, server.URL)
	ctx := context.Background()

	point, err := c.GetPoint(ctx, southBend)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/gridpoints/IWX/20,40/forecast/hourly", point.ForecastHourlyURL)

	stations, err := c.GetStations(ctx, point.ObservationStationsURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"KSBN", "KGSH"}, stations)

	observation, err := c.GetLatestObservation(ctx, stations[0])
	require.NoError(t, err)
	assert.Equal(t, "Sunny", observation.Description)

	f, ok := observation.TemperatureFahrenheit()
	require.True(t, ok)
	assert.Equal(t, 72, f)
}

func TestNWSClient_GetStations(t *testing.T) {
	t.Run("empty list is unavailable", func(t *testing.T) {
		server := newNWSServer(t, `{"features":[]}`)
		c := newTestNWSClient(t, server.URL)

		_, err := c.GetStations(context.Background(), server.URL+"/gridpoints/IWX/20,40/stations")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("missing link is unavailable", func(t *testing.T) {
		c := newTestNWSClient(t, "http://127.0.0.1:1")

		_, err := c.GetStations(context.Background(), "")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNWSClient_GetLatestObservation(t *testing.T) {
	t.Run("fahrenheit readings are normalised", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"properties":{"temperature":{"value":50,"unitCode":"wmoUnit:degF"},"textDescription":"Cloudy"}}`))
		}))
		defer server.Close()

		observation, err := newTestNWSClient(t, server.URL).GetLatestObservation(context.Background(), "KSBN")
		require.NoError(t, err)
		require.NotNil(t, observation.TemperatureCelsius)
		assert.InDelta(t, 10.0, *observation.TemperatureCelsius, 0.001)
	})

	t.Run("missing temperature", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"properties":{"temperature":{"value":null,"unitCode":"wmoUnit:degC"},"textDescription":"Fog"}}`))
		}))
		defer server.Close()

		observation, err := newTestNWSClient(t, server.URL).GetLatestObservation(context.Background(), "KSBN")
		require.NoError(t, err)
		assert.Nil(t, observation.TemperatureCelsius)
		assert.Equal(t, "Fog", observation.Description)
	})
}

func TestNWSClient_GetHourlyForecast(t *testing.T) {
	t.Run("returns raw payload", func(t *testing.T) {
		server := newNWSServer(t, `{"features":[]}`)
		c := newTestNWSClient(t, server.URL)

		payload, err := c.GetHourlyForecast(context.Background(), server.URL+"/gridpoints/IWX/20,40/forecast/hourly")
		require.NoError(t, err)

		periods, err := payload.Periods()
		require.NoError(t, err)
		assert.Len(t, periods, 2)
	})

	t.Run("no periods is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"properties":{"periods":[]}}`))
		}))
		defer server.Close()

		_, err := newTestNWSClient(t, server.URL).GetHourlyForecast(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestNWSClient_GetActiveAlerts(t *testing.T) {
	t.Run("keeps provider order and skips unnamed", func(t *testing.T) {
		server := newNWSServer(t, `{"features":[]}`)

		alerts, err := newTestNWSClient(t, server.URL).GetActiveAlerts(context.Background(), southBend)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "Tornado Warning", alerts[0].Event)
		assert.Equal(t, "Flood Watch", alerts[1].Event)
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := newTestNWSClient(t, server.URL).GetActiveAlerts(context.Background(), southBend)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
