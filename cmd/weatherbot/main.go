package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/bobby-s-dev/weatherbot/internal/api"
	"github.com/bobby-s-dev/weatherbot/internal/config"
	"github.com/bobby-s-dev/weatherbot/internal/metrics"
	"github.com/bobby-s-dev/weatherbot/internal/scheduler"
	"github.com/bobby-s-dev/weatherbot/internal/services"
	"github.com/bobby-s-dev/weatherbot/internal/store"
	"github.com/bobby-s-dev/weatherbot/pkg/client"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Initialize logger
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logConfig := zap.NewProductionConfig()
	logConfig.Level = level
	logger, err := logConfig.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting weatherbot")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("Invalid LOG_LEVEL, keeping info", zap.String("value", cfg.Server.LogLevel))
	}

	tz, err := cfg.TimeLocation()
	if err != nil {
		logger.Fatal("Invalid time zone", zap.Error(err))
	}

	metrics.Init()

	st := store.OpenOrNull(cfg.State.Backend, cfg.State.Dir, cfg.State.SQLitePath, logger)
	defer st.Close()

	bot := newBot(cfg, tz, st, logger)

	// Initialize scheduler
	weatherScheduler := scheduler.NewScheduler(tz, cfg.Schedule.JobTimeout, logger)

	specs, err := scheduler.DailySpecs(cfg.Schedule.UpdateTimes)
	if err != nil {
		logger.Fatal("Invalid update times", zap.Error(err))
	}
	for i, spec := range specs {
		name := services.JobWeatherUpdate
		if i > 0 {
			name = fmt.Sprintf("%s_%d", services.JobWeatherUpdate, i+1)
		}
		if err := weatherScheduler.OnSchedule(spec, name, bot.PostWeatherUpdate); err != nil {
			logger.Fatal("Failed to schedule weather update", zap.Error(err))
		}
	}
	if err := weatherScheduler.OnSchedule(scheduler.IntervalSpec(cfg.Schedule.AlertInterval), services.JobAlertCheck, bot.CheckAlerts); err != nil {
		logger.Fatal("Failed to schedule alert check", zap.Error(err))
	}

	var initial []string
	if cfg.Schedule.RunUpdateOnStart {
		initial = append(initial, services.JobWeatherUpdate)
	}
	if cfg.Schedule.RunAlertsOnStart {
		initial = append(initial, services.JobAlertCheck)
	}
	weatherScheduler.Start(initial...)

	var app *fiber.App
	if cfg.Server.Enabled {
		app = fiber.New(fiber.Config{
			ReadTimeout:           cfg.Server.ReadTimeout,
			WriteTimeout:          cfg.Server.WriteTimeout,
			ErrorHandler:          errorHandler,
			DisableStartupMessage: true,
		})

		handler := api.NewHandler(bot, weatherScheduler, logger)
		api.SetupRoutes(app, handler, logger)

		// Start server in goroutine
		go func() {
			addr := ":" + cfg.Server.Port
			logger.Info("Starting server", zap.String("address", addr))

			if err := app.Listen(addr); err != nil {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("Weatherbot started",
		zap.String("city", cfg.Location.City),
		zap.Strings("update_times", cfg.Schedule.UpdateTimes),
		zap.Duration("alert_interval", cfg.Schedule.AlertInterval),
		zap.Bool("dry_run", cfg.Twitter.DryRun))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	weatherScheduler.Stop()

	if app != nil {
		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Weatherbot stopped")
}

func newBot(cfg *config.Config, tz *time.Location, st store.Store, logger *zap.Logger) *services.Bot {
	nws := client.NewNWSClient(cfg.NWS.BaseURL, client.ClientConfig{
		Timeout:         cfg.Fetch.Timeout,
		Attempts:        cfg.Fetch.Attempts,
		RetryDelay:      cfg.Fetch.Delay,
		BreakerFailures: cfg.Fetch.BreakerFailures,
		BreakerTimeout:  cfg.Fetch.BreakerTimeout,
		UserAgent:       cfg.NWS.UserAgent,
	}, logger)

	var publisher services.Publisher
	if cfg.Twitter.DryRun {
		publisher = client.NewLogPublisher(logger)
	} else {
		publisher = client.NewTwitterClient(cfg.Twitter.APIURL, client.TwitterCredentials{
			APIKey:            cfg.Twitter.APIKey,
			APISecret:         cfg.Twitter.APISecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		}, cfg.Twitter.Timeout, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return services.NewBot(services.BotConfig{
		Location:         cfg.GeoLocation(),
		WeatherHashtags:  cfg.Message.WeatherHashtags,
		AlertHashtags:    cfg.Message.AlertHashtags,
		RateLimitBackoff: cfg.Twitter.RateLimitBackoff,
	}, services.BotDeps{
		Provider:  nws,
		Publisher: publisher,
		Cache:     services.NewForecastCache(st, logger),
		Builder: services.NewForecastBuilder(services.ForecastOptions{
			Policy:    cfg.Forecast.Policy,
			Horizon:   cfg.Forecast.Horizon,
			Spacing:   cfg.Forecast.Spacing,
			Tolerance: cfg.Forecast.Tolerance,
			Slots:     cfg.Forecast.Slots,
			Location:  tz,
		}, logger),
		Resolver:     services.NewConditionsResolver(nws, logger),
		Deduplicator: services.NewAlertDeduplicator(ctx, st, logger),
		Formatter:    services.NewFormatter(cfg.Message.Limit),
	}, logger)
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
