package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"
)

const DefaultTwitterURL = "https://api.twitter.com/2/tweets"

type TwitterCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// TwitterClient posts text through the v2 create-tweet endpoint using
// OAuth 1.0a user context signing. It makes exactly one request per call;
// retry policy belongs to the caller.
type TwitterClient struct {
	client   HTTPClient
	endpoint string
	logger   *zap.Logger
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func NewTwitterClient(endpoint string, creds TwitterCredentials, timeout time.Duration, logger *zap.Logger, opts ...Option) *TwitterClient {
	if endpoint == "" {
		endpoint = DefaultTwitterURL
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	httpClient := config.Client(context.Background(), oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	httpClient.Timeout = timeout

	// Options are shared with BaseClient; only the transport override applies.
	base := &BaseClient{client: httpClient}
	for _, opt := range opts {
		opt(base)
	}

	return &TwitterClient{
		client:   base.client,
		endpoint: endpoint,
		logger:   logger.With(zap.String("client", "twitter")),
	}
}

// Publish posts text. A 429 answer is reported as ErrRateLimited.
func (c *TwitterClient) Publish(ctx context.Context, text string) error {
	body, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return fmt.Errorf("encoding tweet failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting tweet failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP %d: %s", ErrRateLimited, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posting tweet failed: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var created tweetResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		c.logger.Warn("Tweet accepted but response did not decode", zap.Error(err))
		return nil
	}

	c.logger.Debug("Tweet created", zap.String("tweet_id", created.Data.ID))
	return nil
}

// LogPublisher only logs what would have been posted.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(zap.String("client", "dry-run"))}
}

func (p *LogPublisher) Publish(_ context.Context, text string) error {
	p.logger.Info("Dry run, not publishing", zap.String("text", text))
	return nil
}
