package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
)

// LatencyRecorder receives the duration and outcome of every backend
// round trip. Implemented by the telemetry client.
type LatencyRecorder interface {
	RecordBackendLatency(operation string, duration time.Duration, success bool)
}

// Client talks to the hosted backend: the auth endpoints under
// /auth/v1 and the row endpoints under /rest/v1. Every request carries
// the project API key and is bounded by the configured timeout.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	metrics LatencyRecorder
}

// defaultTimeout applies when the config leaves request_timeout unset.
const defaultTimeout = 15 * time.Second

// New builds a client from the backend configuration.
func New(cfg config.BackendConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetMetrics attaches a latency recorder. Wired before the client
// issues any request.
func (c *Client) SetMetrics(metrics LatencyRecorder) {
	c.metrics = metrics
}

// do issues a request and decodes a 2xx response body into out (out may
// be nil). Non-2xx responses are classified into sentinel errors.
// accessToken overrides the API key as the bearer when non-empty.
func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, accessToken, in, out)
	if c.metrics != nil {
		c.metrics.RecordBackendLatency(operationLabel(method, path), time.Since(start), err == nil)
	}
	return err
}

// operationLabel is the metric tag for a request: method plus path with
// the query stripped, so token grant types do not fan out the series.
func operationLabel(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return method + " " + path
}

func (c *Client) roundTrip(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	bearer := accessToken
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("backend request failed",
			"method", method, "path", path, "status", resp.StatusCode)
		return classify(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
