// Package datasource reads context documents from the operations backend.
package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable means the backend has no document for the request:
// a 404, any non-200 status, or a transport failure.
var ErrUnavailable = errors.New("data source unavailable")

const (
	DefaultTokenEnv = "ROTA_VERDE_AGENT_TOKEN"
	DefaultTimeout  = 20 * time.Second

	anomaliesPath = "/agent/fraud-events?window=60"
	workItemsPath = "/agent/open-shifts-summary"
	healthPath    = "/health"
)

// Document is a raw JSON payload returned by the backend.
type Document json.RawMessage

// Empty reports whether the document has no content at all.
func (d Document) Empty() bool {
	return len(bytes.TrimSpace(d)) == 0
}

// Pretty returns the document indented for inclusion in a prompt.
func (d Document) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d, "", "  "); err != nil {
		return string(d)
	}
	return buf.String()
}

// Source is the read-only view prompt assembly depends on.
type Source interface {
	RecentAnomalies(ctx context.Context) (Document, error)
	OpenWorkItems(ctx context.Context) (Document, error)
	Health(ctx context.Context) error
}

// Config configures the HTTP client.
type Config struct {
	BaseURL  string
	TokenEnv string
	Timeout  time.Duration
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client. The bearer token is read from cfg.TokenEnv.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = DefaultTokenEnv
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   os.Getenv(cfg.TokenEnv),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "datasource").Logger(),
	}
}

// RecentAnomalies returns anomaly events from the last hour.
func (c *Client) RecentAnomalies(ctx context.Context) (Document, error) {
	return c.get(ctx, anomaliesPath)
}

// OpenWorkItems returns the open work item summary.
func (c *Client) OpenWorkItems(ctx context.Context) (Document, error) {
	return c.get(ctx, workItemsPath)
}

// Health succeeds when the backend answers below 500.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Data source request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return Document(body), nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug().Str("path", path).Msg("Data source endpoint not found")
	default:
		c.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("Unexpected data source status")
	}
	return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
}
