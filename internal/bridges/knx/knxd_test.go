package knx

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestParseConnectionURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{
			name:        "unix socket",
			url:         "unix:///run/knxd",
			wantNetwork: "unix",
			wantAddress: "/run/knxd",
		},
		{
			name:        "tcp with host and port",
			url:         "tcp://192.168.1.100:6720",
			wantNetwork: "tcp",
			wantAddress: "192.168.1.100:6720",
		},
		{
			name:        "tcp without host defaults",
			url:         "tcp://",
			wantNetwork: "tcp",
			wantAddress: "localhost:6720",
		},
		{
			name:    "unsupported scheme",
			url:     "http://localhost:6720",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			url:     "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address, err := parseConnectionURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Error("parseConnectionURL() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConnectionURL() unexpected error: %v", err)
			}
			if network != tt.wantNetwork {
				t.Errorf("network = %q, want %q", network, tt.wantNetwork)
			}
			if address != tt.wantAddress {
				t.Errorf("address = %q, want %q", address, tt.wantAddress)
			}
		})
	}
}

func TestKNXDClientNotConnected(t *testing.T) {
	client := &KNXDClient{
		pending: make(map[GroupAddress][]chan []byte),
		done:    newCloseOnce(),
	}
	ga := GroupAddress{Main: 1, Middle: 2, Sub: 3}

	if err := client.Send(context.Background(), ga, []byte{0x01}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
	if _, err := client.Read(context.Background(), ga); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read() = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

// mockKNXD is a single-connection knxd stand-in on TCP loopback.
// It answers the GROUPCON handshake, records group packets, and replies to
// group reads from its values table.
type mockKNXD struct {
	listener net.Listener

	mu       sync.Mutex
	conn     net.Conn
	received []Telegram
	values   map[GroupAddress]byte
}

func newMockKNXD(t *testing.T) *mockKNXD {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockKNXD{listener: listener, values: make(map[GroupAddress]byte)}
	go m.serve()
	t.Cleanup(m.close)
	return m
}

func (m *mockKNXD) url() string {
	return "tcp://" + m.listener.Addr().String()
}

func (m *mockKNXD) setValue(ga GroupAddress, v byte) {
	m.mu.Lock()
	m.values[ga] = v
	m.mu.Unlock()
}

func (m *mockKNXD) telegrams() []Telegram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Telegram(nil), m.received...)
}

func (m *mockKNXD) serve() {
	conn, err := m.listener.Accept()
	if err != nil {
		return
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	for {
		size := make([]byte, 2)
		if _, err := io.ReadFull(conn, size); err != nil {
			return
		}
		msg := make([]byte, 2+int(binary.BigEndian.Uint16(size)))
		copy(msg, size)
		if _, err := io.ReadFull(conn, msg[2:]); err != nil {
			return
		}

		msgType, payload, err := ParseKNXDMessage(msg)
		if err != nil {
			return
		}

		switch msgType {
		case EIBOpenGroupCon:
			conn.Write(EncodeKNXDMessage(EIBOpenGroupCon, nil)) //nolint:errcheck // test server
		case EIBGroupPacket:
			// Outgoing packets have no source; add one to reuse ParseTelegram.
			tg, err := ParseTelegram(append([]byte{0x00, 0x00}, payload...))
			if err != nil {
				return
			}
			m.mu.Lock()
			m.received = append(m.received, tg)
			v, known := m.values[tg.Destination]
			m.mu.Unlock()

			if tg.IsRead() && known {
				m.inject(Telegram{Destination: tg.Destination, APCI: APCIResponse, Data: []byte{v}})
			}
		}
	}
}

// inject delivers a telegram to the client as if sent by device 1.1.10.
func (m *mockKNXD) inject(tg Telegram) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	payload := append([]byte{0x11, 0x0A}, tg.Encode()...)
	conn.Write(EncodeKNXDMessage(EIBGroupPacket, payload)) //nolint:errcheck // test server
}

func (m *mockKNXD) close() {
	m.listener.Close()
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()
}

func connectMock(t *testing.T, m *mockKNXD) *KNXDClient {
	t.Helper()

	client, err := Connect(context.Background(), KNXDConfig{
		Connection:      m.url(),
		ConnectTimeout:  2 * time.Second,
		IdleReadTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestKNXDClientSend(t *testing.T) {
	server := newMockKNXD(t)
	client := connectMock(t, server)

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	ga := GroupAddress{Main: 1, Middle: 2, Sub: 3}
	if err := client.Send(context.Background(), ga, EncodeDPT1(true)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(server.telegrams()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	got := server.telegrams()
	if len(got) != 1 {
		t.Fatalf("server received %d telegrams, want 1", len(got))
	}
	if !got[0].IsWrite() || got[0].Destination != ga || got[0].Data[0] != 0x01 {
		t.Errorf("server received %s, want write 01 to %s", got[0], ga)
	}
	if stats := client.Stats(); stats.TelegramsTx != 1 {
		t.Errorf("TelegramsTx = %d, want 1", stats.TelegramsTx)
	}
}

func TestKNXDClientRead(t *testing.T) {
	server := newMockKNXD(t)
	client := connectMock(t, server)

	ga := GroupAddress{Main: 1, Middle: 0, Sub: 7}
	server.setValue(ga, 0x01)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, err := client.Read(ctx, ga)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(data) != 1 || data[0] != 0x01 {
		t.Errorf("Read() = %X, want 01", data)
	}

	stats := client.Stats()
	if stats.ReadsAnswered != 1 {
		t.Errorf("ReadsAnswered = %d, want 1", stats.ReadsAnswered)
	}
	if stats.TelegramsRx != 1 {
		t.Errorf("TelegramsRx = %d, want 1", stats.TelegramsRx)
	}
}

func TestKNXDClientReadTimeout(t *testing.T) {
	server := newMockKNXD(t)
	client := connectMock(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Read(ctx, GroupAddress{Main: 9, Middle: 1, Sub: 9})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}

	client.pendingMu.Lock()
	n := len(client.pending)
	client.pendingMu.Unlock()
	if n != 0 {
		t.Errorf("pending reads = %d after timeout, want 0", n)
	}
}

func TestKNXDClientReadResolvedByWrite(t *testing.T) {
	server := newMockKNXD(t)
	client := connectMock(t, server)

	ga := GroupAddress{Main: 2, Middle: 1, Sub: 4}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := make(chan []byte, 1)
	go func() {
		data, err := client.Read(ctx, ga)
		if err != nil {
			t.Errorf("Read() error: %v", err)
		}
		result <- data
	}()

	// Wait for the read request to reach the bus, then answer with a write.
	deadline := time.Now().Add(time.Second)
	for len(server.telegrams()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	server.inject(NewWriteTelegram(ga, EncodeDPT1(false)))

	select {
	case data := <-result:
		if len(data) != 1 || data[0] != 0x00 {
			t.Errorf("Read() = %X, want 00", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read() did not return")
	}
}

func TestKNXDClientIgnoresOtherAddresses(t *testing.T) {
	server := newMockKNXD(t)
	client := connectMock(t, server)

	ga := GroupAddress{Main: 3, Middle: 0, Sub: 1}
	other := GroupAddress{Main: 3, Middle: 0, Sub: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		server.inject(NewWriteTelegram(other, EncodeDPT1(true)))
	}()

	if _, err := client.Read(ctx, ga); !errors.Is(err, ErrTimeout) {
		t.Errorf("Read() error = %v, want ErrTimeout", err)
	}
}

func TestKNXDClientClose(t *testing.T) {
	server := newMockKNXD(t)

	client, err := Connect(context.Background(), KNXDConfig{
		Connection:      server.url(),
		IdleReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestKNXDClientConnectFailure(t *testing.T) {
	_, err := Connect(context.Background(), KNXDConfig{
		Connection:     "tcp://127.0.0.1:1",
		ConnectTimeout: 500 * time.Millisecond,
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
