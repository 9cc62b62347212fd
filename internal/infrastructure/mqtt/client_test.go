package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-enocean-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ButtonState", topics.ButtonState("00A1B2C3", "AI"), "graylogic/state/enocean/00A1B2C3/AI"},
		{"ButtonEvent", topics.ButtonEvent("00A1B2C3", "BO"), "graylogic/event/enocean/00A1B2C3/BO"},
		{"BridgeStatus", topics.BridgeStatus(), "graylogic/system/status/enocean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("bridge-1"), StatusOnline, ""},
		{"offline", buildOfflinePayload("bridge-1"), StatusOffline, reasonShutdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg StatusMessage
			if err := json.Unmarshal([]byte(tt.payload), &msg); err != nil {
				t.Fatalf("payload %q is not JSON: %v", tt.payload, err)
			}
			if msg.Status != tt.wantStatus || msg.Reason != tt.wantReason || msg.ClientID != "bridge-1" {
				t.Errorf("payload = %+v", msg)
			}
			if msg.Timestamp == "" {
				t.Error("timestamp missing")
			}
		})
	}

	// Quotes in a client ID must not break the JSON.
	var msg StatusMessage
	if err := json.Unmarshal([]byte(buildOnlinePayload(`odd"id`)), &msg); err != nil || msg.ClientID != `odd"id` {
		t.Errorf("escaped client id = %q, err = %v", msg.ClientID, err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != cfg.Broker.ClientID {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with a clean session")
	}

	cfg.Broker.TLS = true
	if got := brokerURL(cfg); !strings.HasPrefix(got, "ssl://") {
		t.Errorf("brokerURL() with TLS = %q, want ssl://", got)
	}
	if opts := buildClientOptions(cfg); opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "bridge-1")

	if !opts.WillEnabled || opts.WillTopic != (Topics{}).BridgeStatus() || !opts.WillRetained {
		t.Errorf("will = (%v, %q, retained %v)", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	var msg StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if msg.Status != StatusOffline || msg.Reason != reasonUnexpected {
		t.Errorf("will payload = %+v", msg)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "t", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "t", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := client.PublishRetained("t", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishEvent("t", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishEvent() error = %v, want ErrNotConnected", err)
	}
}

func TestUnconnectedClient(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestConnectionLostRunsCallback(t *testing.T) {
	c := &Client{connected: true}

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("broker went away")
	c.handleDisconnect(lost)

	if !errors.Is(got, lost) {
		t.Errorf("callback error = %v, want %v", got, lost)
	}
	c.connMu.RLock()
	connected := c.connected
	c.connMu.RUnlock()
	if connected {
		t.Error("connected = true after connection lost")
	}

	// Without a callback the state change alone must not panic.
	c.SetOnDisconnect(nil)
	c.handleDisconnect(lost)
}
