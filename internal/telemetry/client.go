// Package telemetry ships agent health metrics to InfluxDB: session
// lifecycle outcomes, backend latency and cache behaviour. Entirely
// optional; the agent runs identically with it disabled, and writes
// are batched and best effort.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	millisecondsPerSecond = 1000
)

// Client wraps the InfluxDB v2 client for agent telemetry.
//
// Write operations are non-blocking and batched; all methods are safe
// for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.TelemetryConfig

	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Connect establishes a connection to the telemetry backend. Returns
// ErrDisabled when telemetry is off in config.
func Connect(cfg config.TelemetryConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	c := &Client{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
	}

	errorsCh := writeAPI.Errors()
	go c.handleWriteErrors(errorsCh)

	return c, nil
}

// handleWriteErrors processes async write errors from the WriteAPI.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes pending writes and shuts the client down.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck verifies the telemetry connection with an active ping.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback invoked when async write errors occur.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush forces all pending writes out. Safe to call after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil {
		return
	}

	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	if connected {
		c.writeAPI.Flush()
	}
}

// RecordBootstrap records the terminal state and duration of a session
// recovery.
func (c *Client) RecordBootstrap(state string, duration time.Duration) {
	if c == nil || !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"session_bootstrap",
		map[string]string{"state": state},
		map[string]interface{}{"duration_ms": duration.Milliseconds()},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// RecordAuthEvent records a handled auth event by type.
func (c *Client) RecordAuthEvent(eventType string) {
	if c == nil || !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"auth_events",
		map[string]string{"type": eventType},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// RecordBackendLatency records the latency of a backend operation.
func (c *Client) RecordBackendLatency(operation string, duration time.Duration, success bool) {
	if c == nil || !c.IsConnected() {
		return
	}
	point := write.NewPoint(
		"backend_requests",
		map[string]string{
			"operation": operation,
			"outcome":   outcomeTag(success),
		},
		map[string]interface{}{"duration_ms": duration.Milliseconds()},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// RecordCacheAccess records a profile cache hit or miss.
func (c *Client) RecordCacheAccess(hit bool) {
	if c == nil || !c.IsConnected() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	point := write.NewPoint(
		"profile_cache",
		map[string]string{"result": result},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

func outcomeTag(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
