package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
)

// Defaults for batching and timeouts.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
	defaultPingTimeout   = 5 * time.Second

	// bridgeTag identifies this bridge's points among other Gray Logic writers.
	bridgeTag = "enocean"
)

// Options configures Connect beyond the config file section.
type Options struct {
	// Site is added as the "site" tag of every point. Optional.
	Site string

	// OnError receives asynchronous write failures. Optional.
	OnError func(err error)
}

// Stats counts points handed to the write API and failed batches.
type Stats struct {
	PointsQueued uint64
	WriteErrors  uint64
}

// Client records rocker activity in InfluxDB through a batched,
// non-blocking write API.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes after Close are dropped silently.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected atomic.Bool

	// onError is fixed at Connect; the drain goroutine reads it unlocked.
	onError func(err error)

	pointsQueued atomic.Uint64
	writeErrors  atomic.Uint64
}

// Connect verifies the server and prepares the write API.
//
// It performs the following setup:
//  1. Applies batch defaults (100 points, 10s flush) to unset values
//  2. Tags every point with bridge=enocean and, when set, the site ID
//  3. Pings the server within the configured timeout
//  4. Starts draining asynchronous write errors into opts.OnError
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: InfluxDB section of config.yaml
//   - opts: Site tag and error callback
//
// Returns:
//   - *Client: Ready for WriteButtonState and WriteToggle
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed otherwise
func Connect(ctx context.Context, cfg config.InfluxDBConfig, opts Options) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	options := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg)).
		SetFlushInterval(uint(flushInterval(cfg).Milliseconds())). // #nosec G115 -- positive by construction
		AddDefaultTag("bridge", bridgeTag)
	if opts.Site != "" {
		options.AddDefaultTag("site", opts.Site)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		onError:  opts.OnError,
	}
	c.connected.Store(true)

	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

func batchSize(cfg config.InfluxDBConfig) uint {
	if cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return uint(cfg.BatchSize) // #nosec G115 -- checked above
}

func flushInterval(cfg config.InfluxDBConfig) time.Duration {
	if cfg.FlushInterval <= 0 {
		return defaultFlushInterval
	}
	return time.Duration(cfg.FlushInterval) * time.Second
}

// drainErrors forwards asynchronous batch failures until the write API closes.
func (c *Client) drainErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.writeErrors.Add(1)
		if c.onError != nil {
			c.onError(err)
		}
	}
}

// Close flushes queued points and closes the client. Safe on nil and
// on an already closed client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrNotConnected after Close, or the ping failure
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// Flush blocks until queued points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Stats returns write counters.
func (c *Client) Stats() Stats {
	return Stats{
		PointsQueued: c.pointsQueued.Load(),
		WriteErrors:  c.writeErrors.Load(),
	}
}
