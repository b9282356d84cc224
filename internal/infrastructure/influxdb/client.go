package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// pointWriter is the part of api.WriteAPI the history writers use.
type pointWriter interface {
	WritePoint(point *write.Point)
}

// Client records bridge history in InfluxDB. It satisfies
// bridge.HistoryWriter.
//
// Writes never block the engine: points are batched by the non-blocking
// WriteAPI and failures arrive later on the SetOnError callback.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	points   pointWriter

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect creates the client and pings the server once.
//
// Returns ErrDisabled when history is off, or a wrapped ErrConnectionFailed
// when the server is unreachable or unhealthy.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{client: client, writeAPI: writeAPI, points: writeAPI}
	go func() {
		for err := range writeAPI.Errors() {
			if cb := c.onError.Load(); cb != nil {
				(*cb)(err)
			}
		}
	}()
	return c, nil
}

// clientOptions batches points, compresses requests and tags every point
// with the service name.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	// #nosec G115 -- both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush)*1000).
		SetPrecision(time.Millisecond).
		SetUseGZip(true).
		AddDefaultTag("service", "ringbridge")
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// Close flushes pending points and shuts the client down. Points written
// after Close are dropped.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether points are still accepted.
func (c *Client) IsConnected() bool {
	return c != nil && c.points != nil && !c.closed.Load()
}

// SetOnError sets a callback for async write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.onError.Store(&callback)
}
