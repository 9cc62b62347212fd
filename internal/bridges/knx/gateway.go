package knx

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default bus call timeouts used when GatewayConfig leaves them zero.
const (
	DefaultGatewayReadTimeout  = 2 * time.Second
	DefaultGatewayWriteTimeout = 5 * time.Second
)

// GatewayConfig bounds individual bus calls.
type GatewayConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Gateway exposes boolean group points of the KNX bus.
//
// Values are DPT 1 encoded. A read that is not answered within ReadTimeout
// reports an unknown value rather than an error.
type Gateway struct {
	conn Connector
	cfg  GatewayConfig
}

// NewGateway wraps conn with the given timeouts.
func NewGateway(conn Connector, cfg GatewayConfig) *Gateway {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultGatewayReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultGatewayWriteTimeout
	}
	return &Gateway{conn: conn, cfg: cfg}
}

// ReadBool reads the current value of a boolean group address.
//
// Parameters:
//   - ctx: Parent context; ReadTimeout is applied on top
//   - ga: Group address of the switch
//
// Returns:
//   - value: Current switch value, valid only when ok
//   - ok: False when no device answered within ReadTimeout
//   - err: Transport failure, or an answer that is not a DPT 1 payload
func (g *Gateway) ReadBool(ctx context.Context, ga GroupAddress) (value, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ReadTimeout)
	defer cancel()

	data, err := g.conn.Read(ctx, ga)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("reading %s: %w", ga, err)
	}
	if len(data) == 0 {
		return false, false, nil
	}

	value, err = DecodeDPT1(data)
	if err != nil {
		return false, false, fmt.Errorf("reading %s: %w", ga, err)
	}
	return value, true, nil
}

// WriteBool writes a boolean value to a group address.
//
// Parameters:
//   - ctx: Parent context; WriteTimeout is applied on top
//   - ga: Group address of the switch
//   - value: Value to send as DPT 1
//
// Returns:
//   - error: Send failure wrapped with the address
func (g *Gateway) WriteBool(ctx context.Context, ga GroupAddress, value bool) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()

	if err := g.conn.Send(ctx, ga, EncodeDPT1(value)); err != nil {
		return fmt.Errorf("writing %s: %w", ga, err)
	}
	return nil
}
