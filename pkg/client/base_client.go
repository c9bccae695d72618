package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned once every attempt for a resource has failed,
	// or when the response did not carry the data the caller needs.
	ErrUnavailable = errors.New("resource unavailable")

	// ErrRateLimited is returned by publishers when the platform answered 429.
	ErrRateLimited = errors.New("rate limited")
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type BaseClient struct {
	client         HTTPClient
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	attempts       int
	retryDelay     time.Duration
	timeout        time.Duration
	userAgent      string
	sleep          func(ctx context.Context, d time.Duration) error
}

type ClientConfig struct {
	Timeout         time.Duration
	Attempts        int
	RetryDelay      time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
	UserAgent       string
}

type Option func(*BaseClient)

// WithHTTPClient replaces the transport used for every attempt.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *BaseClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *BaseClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewBaseClient(name string, config ClientConfig, logger *zap.Logger, opts ...Option) *BaseClient {
	attempts := config.Attempts
	if attempts < 1 {
		attempts = 1
	}

	c := &BaseClient{
		client:     &http.Client{Timeout: config.Timeout},
		logger:     logger.With(zap.String("client", name)),
		attempts:   attempts,
		retryDelay: config.RetryDelay,
		timeout:    config.Timeout,
		userAgent:  config.UserAgent,
		sleep:      sleepContext,
	}

	if config.BreakerFailures > 0 {
		threshold := uint32(config.BreakerFailures)
		c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("Circuit breaker state changed",
					zap.String("client", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetJSON fetches url and decodes the body into out. Any failure, including
// a body that does not decode, is reported as ErrUnavailable.
func (c *BaseClient) GetJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("Failed to decode response",
			zap.String("url", url),
			zap.Error(err))
		return fmt.Errorf("%w: decoding %s: %v", ErrUnavailable, url, err)
	}

	return nil
}

// Get returns the body of the first 2xx response for url, trying at most
// the configured number of attempts with a constant delay between them.
func (c *BaseClient) Get(ctx context.Context, url string) ([]byte, error) {
	if c.circuitBreaker == nil {
		return c.doGetWithRetry(ctx, url)
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doGetWithRetry(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Circuit breaker rejected request",
				zap.String("url", url),
				zap.Error(err))
			metrics.ObserveFetch(metrics.FetchRejected)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	return result.([]byte), nil
}

func (c *BaseClient) doGetWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug("Retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", c.retryDelay))

			if err := c.sleep(ctx, c.retryDelay); err != nil {
				lastErr = err
				break
			}
		}

		body, err := c.attempt(ctx, url)
		if err == nil {
			metrics.ObserveFetchAttempt(true)
			metrics.ObserveFetch(metrics.FetchSuccess)
			c.logger.Debug("Request successful",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("body_size", len(body)))
			return body, nil
		}

		metrics.ObserveFetchAttempt(false)
		lastErr = err
		c.logger.Warn("HTTP request failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err))
	}

	metrics.ObserveFetch(metrics.FetchUnavailable)
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, url, c.attempts, lastErr)
}

func (c *BaseClient) attempt(ctx context.Context, url string) ([]byte, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body failed: %w", err)
	}

	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
