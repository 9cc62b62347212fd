package knx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

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

// Default timeouts and intervals for knxd communication.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultIdleReadTimeout   = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// readBufferSize bounds a single knxd message.
	readBufferSize = 256
)

// KNXDConfig holds knxd connection configuration.
//
//nolint:revive // KNXDConfig is clearer than DConfig for external use
type KNXDConfig struct {
	// Connection is the knxd URL: "unix:///run/knxd" or "tcp://localhost:6720".
	Connection string

	// ConnectTimeout bounds dial plus handshake. Default: 10s.
	ConnectTimeout time.Duration

	// IdleReadTimeout is the socket read deadline of the receive loop.
	// Expiry is normal on a quiet bus. Default: 30s.
	IdleReadTimeout time.Duration

	// ReconnectInterval is the initial reconnection delay. Default: 5s.
	ReconnectInterval time.Duration
}

// KNXDStats holds operational statistics.
//
//nolint:revive // KNXDStats is clearer than DStats for external use
type KNXDStats struct {
	TelegramsTx     uint64
	TelegramsRx     uint64
	ReadsAnswered   uint64 // group reads resolved by a response or write
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the group communication surface used by Gateway.
type Connector interface {
	Send(ctx context.Context, ga GroupAddress, data []byte) error
	Read(ctx context.Context, ga GroupAddress) ([]byte, error)
	IsConnected() bool
}

// Ensure KNXDClient implements Connector.
var _ Connector = (*KNXDClient)(nil)

// KNXDClient is a group socket connection to the knxd daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent reads of the same group address share one bus response.
//
// Auto-Reconnection:
//   - A lost connection is re-established with exponential backoff from
//     ReconnectInterval up to 2 minutes, until Close is called.
//
//nolint:revive // KNXDClient is clearer than DClient for external use
type KNXDClient struct {
	cfg KNXDConfig

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool
	writeMu   sync.Mutex

	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	// Outstanding group reads, keyed by destination.
	pendingMu sync.Mutex
	pending   map[GroupAddress][]chan []byte

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	telegramsTx     atomic.Uint64
	telegramsRx     atomic.Uint64
	readsAnswered   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Connect dials knxd, opens group communication and starts the receive loop.
//
// The connection URL selects the transport:
//   - "unix:///run/knxd" for the Unix socket
//   - "tcp://localhost:6720" for TCP
//
// It performs:
//  1. Fills unset timeouts and the reconnect interval with defaults
//  2. Dials knxd within ConnectTimeout
//  3. Sends EIB_OPEN_GROUPCON and waits for the confirmation
//  4. Starts the receive loop, which reconnects with backoff until Close
//
// Parameters:
//   - ctx: Bounds the initial dial and handshake
//   - cfg: Connection configuration
//
// Returns:
//   - *KNXDClient: Connected client
//   - error: ErrConnectionFailed wrapping the dial or handshake failure
func Connect(ctx context.Context, cfg KNXDConfig) (*KNXDClient, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IdleReadTimeout == 0 {
		cfg.IdleReadTimeout = defaultIdleReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	if err := openGroupCon(connectCtx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	client := &KNXDClient{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		pending:   make(map[GroupAddress][]chan []byte),
		done:      newCloseOnce(),
	}
	client.lastActivity.Store(time.Now().Unix())

	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

// parseConnectionURL parses a knxd connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:6720"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openGroupCon performs the EIB_OPEN_GROUPCON handshake on conn within ctx's deadline.
// write_only=0x00 opens the socket for both directions.
func openGroupCon(ctx context.Context, conn net.Conn) error {
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{}) //nolint:errcheck // Cleared for the receive loop

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	if _, err := conn.Write(EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	sizeBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, sizeBytes); err != nil {
		return fmt.Errorf("read response size: %w", err)
	}
	msgSize := binary.BigEndian.Uint16(sizeBytes)
	if msgSize < 2 {
		return fmt.Errorf("invalid response size: %d", msgSize)
	}

	resp := make([]byte, 2+int(msgSize))
	copy(resp[:2], sizeBytes)
	if _, err := io.ReadFull(conn, resp[2:]); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	msgType, _, err := ParseKNXDMessage(resp)
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if msgType != EIBOpenGroupCon {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}
	return nil
}

// receiveLoop reads telegrams until Close, reconnecting on fatal errors.
func (c *KNXDClient) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		if c.isClosed() {
			return
		}

		msgType, payload, err := c.readMessage(buf)
		if err != nil {
			if !c.handleReadError(err) {
				continue
			}
			if c.isClosed() || !c.reconnect() {
				return
			}
			continue
		}

		if msgType == EIBGroupPacket && len(payload) >= groupPacketMinLen {
			c.handleGroupPacket(payload)
		}
	}
}

// readMessage reads one framed knxd message into buf.
func (c *KNXDClient) readMessage(buf []byte) (uint16, []byte, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return 0, nil, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.IdleReadTimeout)); err != nil {
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	msgSize := binary.BigEndian.Uint16(buf[:2])
	totalLen := 2 + int(msgSize)
	if msgSize < 2 || totalLen > len(buf) {
		// The rest of the frame cannot be skipped safely; force a reconnect.
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("%w: message size %d", ErrProtocolDesync, msgSize)
	}

	if _, err := io.ReadFull(conn, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}

	msgType, payload, err := ParseKNXDMessage(buf[:totalLen])
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("parse message failed", err)
		return 0, nil, nil
	}
	return msgType, payload, nil
}

// handleReadError reports whether err is fatal to the connection.
func (c *KNXDClient) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	c.errorsTotal.Add(1)
	c.logError("read failed", err)

	c.connMu.Lock()
	if errors.Is(err, ErrProtocolDesync) && c.conn != nil {
		c.conn.Close()
	}
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
	return true
}

// handleGroupPacket records a received telegram and resolves waiting reads.
func (c *KNXDClient) handleGroupPacket(payload []byte) {
	t, err := ParseTelegram(payload)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("parse telegram failed", err)
		return
	}

	c.telegramsRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	// A write carries the new state just as a response does.
	if !t.IsResponse() && !t.IsWrite() {
		return
	}

	c.pendingMu.Lock()
	waiters := c.pending[t.Destination]
	delete(c.pending, t.Destination)
	c.pendingMu.Unlock()

	if len(waiters) == 0 {
		return
	}
	c.readsAnswered.Add(1)
	for _, ch := range waiters {
		select {
		case ch <- t.Data:
		default:
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Returns false if Close was called first.
func (c *KNXDClient) reconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		if err := c.redial(network, address); err != nil {
			c.errorsTotal.Add(1)
			c.logError("reconnect failed", err)

			select {
			case <-c.done.Done():
				return false
			case <-time.After(backoff):
			}
			backoff = min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
			continue
		}

		c.reconnectCount.Store(0)
		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// redial dials and handshakes a fresh connection, installing it on success.
func (c *KNXDClient) redial(network, address string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	if err := openGroupCon(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()
	return nil
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *KNXDClient) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

func (c *KNXDClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the receive loop and closes the connection.
// Safe to call multiple times.
func (c *KNXDClient) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send writes a DPT-encoded value to a group address.
//
// Parameters:
//   - ctx: Bounds the socket write
//   - ga: Target group address
//   - data: DPT-encoded payload
//
// Returns:
//   - error: ErrNotConnected, or the write failure
func (c *KNXDClient) Send(ctx context.Context, ga GroupAddress, data []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.sendTelegram(ctx, NewWriteTelegram(ga, data))
}

// Read sends a group read request and waits for the value.
//
// The first GroupValue_Response or GroupValue_Write seen for ga after the
// request resolves the read.
//
// Parameters:
//   - ctx: Bounds the request and the wait for an answer
//   - ga: Group address to read
//
// Returns:
//   - []byte: DPT-encoded value from the answering device
//   - error: ErrTimeout when ctx expires first, ErrNotConnected on Close
func (c *KNXDClient) Read(ctx context.Context, ga GroupAddress) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	ch := make(chan []byte, 1)
	c.pendingMu.Lock()
	c.pending[ga] = append(c.pending[ga], ch)
	c.pendingMu.Unlock()
	defer c.dropWaiter(ga, ch)

	if err := c.sendTelegram(ctx, NewReadTelegram(ga)); err != nil {
		return nil, err
	}

	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: read %s: %w", ErrTimeout, ga, ctx.Err())
	case <-c.done.Done():
		return nil, ErrNotConnected
	}
}

// dropWaiter removes ch from the pending reads of ga, if still present.
func (c *KNXDClient) dropWaiter(ga GroupAddress, ch chan []byte) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	waiters := c.pending[ga]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(c.pending, ga)
	} else {
		c.pending[ga] = waiters
	}
}

// sendTelegram writes one telegram to knxd.
func (c *KNXDClient) sendTelegram(ctx context.Context, t Telegram) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTelegramFailed, err)
	}

	msg := EncodeKNXDMessage(EIBGroupPacket, t.Encode())

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrTelegramFailed, err)
	}
	if _, err := conn.Write(msg); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrTelegramFailed, err)
	}

	c.telegramsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetLogger sets the logger for this client.
func (c *KNXDClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if connected to knxd.
func (c *KNXDClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *KNXDClient) Stats() KNXDStats {
	return KNXDStats{
		TelegramsTx:     c.telegramsTx.Load(),
		TelegramsRx:     c.telegramsRx.Load(),
		ReadsAnswered:   c.readsAnswered.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck reports whether the connection is up.
func (c *KNXDClient) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *KNXDClient) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *KNXDClient) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
