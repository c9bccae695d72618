package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/models"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Location struct {
		City      string  `yaml:"city"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
		Timezone  string  `yaml:"timezone"`
	} `yaml:"location"`

	NWS struct {
		BaseURL   string `yaml:"base_url"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"nws"`

	Fetch struct {
		Attempts        int           `yaml:"attempts"`
		Delay           time.Duration `yaml:"delay"`
		Timeout         time.Duration `yaml:"timeout"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	} `yaml:"fetch"`

	State struct {
		Backend    string `yaml:"backend"`
		Dir        string `yaml:"dir"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"state"`

	Schedule struct {
		UpdateTimes      []string      `yaml:"update_times"`
		AlertInterval    time.Duration `yaml:"alert_interval"`
		RunUpdateOnStart bool          `yaml:"run_update_on_start"`
		RunAlertsOnStart bool          `yaml:"run_alerts_on_start"`
		JobTimeout       time.Duration `yaml:"job_timeout"`
	} `yaml:"schedule"`

	Forecast struct {
		Policy    string        `yaml:"policy"`
		Horizon   time.Duration `yaml:"horizon"`
		Spacing   time.Duration `yaml:"spacing"`
		Tolerance time.Duration `yaml:"tolerance"`
		Slots     int           `yaml:"slots"`
	} `yaml:"forecast"`

	Message struct {
		Limit           int    `yaml:"limit"`
		WeatherHashtags string `yaml:"weather_hashtags"`
		AlertHashtags   string `yaml:"alert_hashtags"`
	} `yaml:"message"`

	Twitter struct {
		APIURL            string        `yaml:"api_url"`
		APIKey            string        `yaml:"-"`
		APISecret         string        `yaml:"-"`
		AccessToken       string        `yaml:"-"`
		AccessTokenSecret string        `yaml:"-"`
		Timeout           time.Duration `yaml:"timeout"`
		RateLimitBackoff  time.Duration `yaml:"rate_limit_backoff"`
		DryRun            bool          `yaml:"dry_run"`
	} `yaml:"twitter"`

	Server struct {
		Enabled      bool          `yaml:"enabled"`
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		LogLevel     string        `yaml:"log_level"`
	} `yaml:"server"`
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	cfg.Location.City = getEnv("CITY", "South Bend, Indiana")
	cfg.Location.Latitude = parseFloat(getEnv("LAT", "41.6764"))
	cfg.Location.Longitude = parseFloat(getEnv("LON", "-86.2520"))
	cfg.Location.Timezone = getEnv("TZ", "America/Indiana/Indianapolis")

	cfg.NWS.BaseURL = getEnv("NWS_BASE_URL", "https://api.weather.gov")
	cfg.NWS.UserAgent = getEnv("NWS_USER_AGENT", "weatherbot")

	// Fetch retry and breaker configuration
	cfg.Fetch.Attempts = parseInt(getEnv("FETCH_ATTEMPTS", "3"))
	cfg.Fetch.Delay = parseDuration(getEnv("FETCH_DELAY", "5s"))
	cfg.Fetch.Timeout = parseDuration(getEnv("FETCH_TIMEOUT", "10s"))
	cfg.Fetch.BreakerFailures = parseInt(getEnv("BREAKER_FAILURES", "5"))
	cfg.Fetch.BreakerTimeout = parseDuration(getEnv("BREAKER_TIMEOUT", "2m"))

	cfg.State.Backend = getEnv("STATE_BACKEND", "file")
	cfg.State.Dir = getEnv("STATE_DIR", "data")
	cfg.State.SQLitePath = getEnv("SQLITE_PATH", "data/weatherbot.db")

	cfg.Schedule.UpdateTimes = splitCSV(getEnv("UPDATE_TIMES", "03:00,07:00,12:00,17:00,22:00"))
	cfg.Schedule.AlertInterval = parseDuration(getEnv("ALERT_INTERVAL", "5m"))
	cfg.Schedule.RunUpdateOnStart = parseBool(getEnv("RUN_UPDATE_ON_START", "true"))
	cfg.Schedule.RunAlertsOnStart = parseBool(getEnv("RUN_ALERTS_ON_START", "true"))
	cfg.Schedule.JobTimeout = parseDuration(getEnv("JOB_TIMEOUT", "30m"))

	cfg.Forecast.Policy = getEnv("FORECAST_POLICY", "windowed")
	cfg.Forecast.Horizon = parseDuration(getEnv("FORECAST_HORIZON", "3h"))
	cfg.Forecast.Spacing = parseDuration(getEnv("FORECAST_SPACING", "3h"))
	cfg.Forecast.Tolerance = parseDuration(getEnv("FORECAST_TOLERANCE", "1h"))
	cfg.Forecast.Slots = parseInt(getEnv("FORECAST_SLOTS", "4"))

	cfg.Message.Limit = parseInt(getEnv("MESSAGE_LIMIT", "280"))
	cfg.Message.WeatherHashtags = getEnv("WEATHER_HASHTAGS", "#SouthBend #Indiana #Weather")
	cfg.Message.AlertHashtags = getEnv("ALERT_HASHTAGS", "#WeatherAlert #SouthBend")

	cfg.Twitter.APIURL = getEnv("TWITTER_API_URL", "https://api.twitter.com/2/tweets")
	cfg.Twitter.APIKey = getEnv("TWITTER_API_KEY", "")
	cfg.Twitter.APISecret = getEnv("TWITTER_API_SECRET", "")
	cfg.Twitter.AccessToken = getEnv("TWITTER_ACCESS_TOKEN", "")
	cfg.Twitter.AccessTokenSecret = getEnv("TWITTER_ACCESS_TOKEN_SECRET", "")
	cfg.Twitter.Timeout = parseDuration(getEnv("TWITTER_TIMEOUT", "15s"))
	cfg.Twitter.RateLimitBackoff = parseDuration(getEnv("RATE_LIMIT_BACKOFF", "15m"))
	cfg.Twitter.DryRun = parseBool(getEnv("DRY_RUN", "false"))

	cfg.Server.Enabled = parseBool(getEnv("SERVER_ENABLED", "true"))
	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("SERVER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("SERVER_WRITE_TIMEOUT", "30s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	if path := os.Getenv("WEATHERBOT_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlayFile applies a YAML file on top of the environment configuration.
// Credentials are never read from the file.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 || c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("invalid coordinates %f,%f", c.Location.Latitude, c.Location.Longitude)
	}
	if c.Fetch.Attempts < 1 {
		return fmt.Errorf("FETCH_ATTEMPTS must be at least 1")
	}
	if c.Schedule.AlertInterval <= 0 {
		return fmt.Errorf("ALERT_INTERVAL must be positive")
	}
	if len(c.Schedule.UpdateTimes) == 0 {
		return fmt.Errorf("UPDATE_TIMES must list at least one time of day")
	}
	// A rate-limited post waits out the backoff inside its job.
	if c.Schedule.JobTimeout > 0 && c.Schedule.JobTimeout <= c.Twitter.RateLimitBackoff {
		return fmt.Errorf("JOB_TIMEOUT %s must be longer than RATE_LIMIT_BACKOFF %s",
			c.Schedule.JobTimeout, c.Twitter.RateLimitBackoff)
	}

	switch c.Forecast.Policy {
	case "windowed", "simple":
	default:
		return fmt.Errorf("unknown FORECAST_POLICY %q", c.Forecast.Policy)
	}
	if c.Forecast.Spacing < time.Hour || c.Forecast.Spacing%time.Hour != 0 {
		return fmt.Errorf("FORECAST_SPACING must be a whole number of hours")
	}
	if c.Forecast.Tolerance <= 0 || c.Forecast.Tolerance*2 >= c.Forecast.Spacing {
		return fmt.Errorf("FORECAST_TOLERANCE must be positive and under half the spacing")
	}
	if c.Forecast.Slots < 1 || c.Forecast.Slots > 4 {
		return fmt.Errorf("FORECAST_SLOTS must be between 1 and 4")
	}

	switch c.State.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend)
	}

	// Hashtags are never truncated, so they must leave room for a body.
	for name, tags := range map[string]string{
		"WEATHER_HASHTAGS": c.Message.WeatherHashtags,
		"ALERT_HASHTAGS":   c.Message.AlertHashtags,
	} {
		if len([]rune(tags))+5 >= c.Message.Limit {
			return fmt.Errorf("%s does not fit in MESSAGE_LIMIT %d", name, c.Message.Limit)
		}
	}

	if !c.Twitter.DryRun && (c.Twitter.APIKey == "" || c.Twitter.APISecret == "" ||
		c.Twitter.AccessToken == "" || c.Twitter.AccessTokenSecret == "") {
		return fmt.Errorf("twitter credentials are required unless DRY_RUN is set")
	}

	return nil
}

func (c *Config) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ %q: %w", c.Location.Timezone, err)
	}
	return loc, nil
}

func (c *Config) GeoLocation() models.Location {
	return models.Location{
		Latitude:  c.Location.Latitude,
		Longitude: c.Location.Longitude,
		Name:      c.Location.City,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
