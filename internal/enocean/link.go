package enocean

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Read loop backoff bounds after a port error.
const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = 5 * time.Second
)

// DefaultBaudRate is the ESP3 serial speed of EnOcean USB gateways.
const DefaultBaudRate = 57600

// SerialConfig holds the serial port settings of the gateway.
type SerialConfig struct {
	// Port is the device path, e.g. "/dev/ttyUSB0".
	Port string

	// BaudRate defaults to 57600.
	BaudRate int
}

// LinkStats holds operational counters.
type LinkStats struct {
	PacketsRx     uint64
	TelegramsRx   uint64
	CRCErrors     uint64
	HandlerErrors uint64
	LastActivity  time.Time
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Link reads ESP3 packets from a gateway and hands radio telegrams to a handler.
//
// Thread Safety:
//   - A single goroutine reads the port; telegrams are handled in arrival order.
//   - Close and Stats are safe for concurrent use.
type Link struct {
	port    io.ReadWriteCloser
	reader  *bufio.Reader
	handler TelegramHandler
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   *closeOnce
	wg     sync.WaitGroup

	shutdown sync.Once
	closeErr error

	packetsRx     atomic.Uint64
	telegramsRx   atomic.Uint64
	crcErrors     atomic.Uint64
	handlerErrors atomic.Uint64
	lastActivity  atomic.Int64
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}

// OpenSerial opens the gateway's serial port (8N1) and starts reading.
//
// Parameters:
//   - ctx: Stops the read loop when cancelled
//   - cfg: Port name; BaudRate defaults to 57600
//   - handler: Receives every RADIO_ERP1 telegram until Close
//   - logger: Optional; nil discards link diagnostics
//
// Returns:
//   - *Link: Running link; Close releases the port
//   - error: If the port cannot be opened
func OpenSerial(ctx context.Context, cfg SerialConfig, handler TelegramHandler, logger Logger) (*Link, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("enocean: open %s: %w", cfg.Port, err)
	}

	return NewLink(ctx, port, handler, logger), nil
}

// NewLink starts reading ESP3 packets from an already open port.
func NewLink(ctx context.Context, port io.ReadWriteCloser, handler TelegramHandler, logger Logger) *Link {
	if logger == nil {
		logger = noopLogger{}
	}

	linkCtx, cancel := context.WithCancel(ctx)
	l := &Link{
		port:    port,
		reader:  bufio.NewReader(port),
		handler: handler,
		logger:  logger,
		ctx:     linkCtx,
		cancel:  cancel,
		done:    newCloseOnce(),
	}

	l.wg.Add(1)
	go l.readLoop()

	return l
}

// Send writes a packet to the gateway.
func (l *Link) Send(p Packet) error {
	if l.isClosed() {
		return ErrLinkClosed
	}
	if _, err := l.port.Write(p.Encode()); err != nil {
		return fmt.Errorf("enocean: write %s packet: %w", p.Type, err)
	}
	return nil
}

// Close stops the read loop and closes the port. Safe to call more than once.
func (l *Link) Close() error {
	l.shutdown.Do(func() {
		l.done.Close()
		l.cancel()
		l.closeErr = l.port.Close()
	})
	l.wg.Wait()
	return l.closeErr
}

// Stats returns current counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		PacketsRx:     l.packetsRx.Load(),
		TelegramsRx:   l.telegramsRx.Load(),
		CRCErrors:     l.crcErrors.Load(),
		HandlerErrors: l.handlerErrors.Load(),
		LastActivity:  time.Unix(l.lastActivity.Load(), 0),
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	backoff := minReadBackoff

	for {
		if l.isClosed() {
			return
		}

		p, err := ReadPacket(l.reader)
		if err != nil {
			if l.isClosed() {
				return
			}
			if errors.Is(err, ErrCRCMismatch) || errors.Is(err, ErrInvalidPacket) {
				l.crcErrors.Add(1)
				l.logger.Warn("dropping corrupt packet", "error", err)
				continue
			}

			l.logger.Error("serial read failed", "error", err)
			select {
			case <-time.After(backoff):
			case <-l.done.Done():
				return
			case <-l.ctx.Done():
				return
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		backoff = minReadBackoff

		l.packetsRx.Add(1)
		l.lastActivity.Store(time.Now().Unix())
		l.handlePacket(p)
	}
}

func (l *Link) handlePacket(p Packet) {
	if p.Type != PacketTypeRadioERP1 {
		l.logger.Debug("ignoring packet", "type", p.Type.String(), "len", len(p.Data))
		return
	}

	t, err := ParseRadioTelegram(p)
	if err != nil {
		l.logger.Warn("invalid radio telegram", "error", err)
		return
	}
	l.telegramsRx.Add(1)

	if err := l.handler.HandleTelegram(l.ctx, t); err != nil {
		l.handlerErrors.Add(1)
		l.logger.Error("handling telegram failed", "device", t.Sender.Hex(), "error", err)
	}
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}
