package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/liftgate-io/liftgate/internal/infrastructure/config"
)

type testLogger struct{}

func (testLogger) Error(string, ...any) {}
func (testLogger) Warn(string, ...any)  {}

func newDisconnectedClient() *Client {
	return &Client{
		clientID:      "liftgate-test",
		logger:        testLogger{},
		subscriptions: make(map[string]subscription),
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", Topics{}.DeviceState("CG08001"), "liftgate/device/CG08001/state"},
		{"device command", Topics{}.DeviceCommand("CG08001"), "liftgate/device/CG08001/command"},
		{"device availability", Topics{}.DeviceAvailability("CG08001"), "liftgate/device/CG08001/availability"},
		{"all commands", Topics{}.AllDeviceCommands(), "liftgate/device/+/command"},
		{"all states", Topics{}.AllDeviceStates(), "liftgate/device/+/state"},
		{"system status", Topics{}.SystemStatus(), "liftgate/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestClientIDDefaultsWhenUnset(t *testing.T) {
	cfg := config.MQTTConfig{}

	id := clientID(cfg)
	if !strings.HasPrefix(id, "liftgate-") {
		t.Errorf("clientID = %q, want liftgate- prefix", id)
	}
	if id == "liftgate-" {
		t.Error("clientID has no unique suffix")
	}

	other := clientID(cfg)
	if id == other {
		t.Error("generated client IDs should differ per call")
	}
}

func TestClientIDUsesConfiguredValue(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.ClientID = "garage-bridge"

	if id := clientID(cfg); id != "garage-bridge" {
		t.Errorf("clientID = %q, want garage-bridge", id)
	}
}

func TestBuildClientOptionsPlainBroker(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "broker.local"
	cfg.Broker.Port = 1883
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 30

	opts := buildClientOptions(cfg, "liftgate-abc")

	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
	}
	if opts.ClientID != "liftgate-abc" {
		t.Errorf("client ID = %q, want liftgate-abc", opts.ClientID)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS config should be nil for plain connections")
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect should be enabled")
	}
}

func TestBuildClientOptionsTLSAndAuth(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "broker.local"
	cfg.Broker.Port = 8883
	cfg.Broker.TLS = true
	cfg.Auth.Username = "liftgate"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, "liftgate-abc")

	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %q, want ssl://broker.local:8883", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config missing")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS min version = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
	if opts.Username != "liftgate" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "broker.local"
	cfg.Broker.Port = 1883

	opts := buildClientOptions(cfg, "liftgate-abc")
	configureLWT(opts, "liftgate-abc")

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != "liftgate/system/status" {
		t.Errorf("will topic = %q, want liftgate/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will should be retained")
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("will payload missing offline status: %s", payload)
	}
	if !strings.Contains(payload, `"client_id":"liftgate-abc"`) {
		t.Errorf("will payload missing client ID: %s", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("liftgate-abc")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("liftgate-abc")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload = %s", offline)
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason: %s", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		qos     byte
		wantErr error
	}{
		{"empty topic", "", 0, ErrInvalidTopic},
		{"invalid qos", "liftgate/device/x/state", 3, ErrInvalidQoS},
		{"not connected", "liftgate/device/x/state", 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, []byte("{}"), tt.qos)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	c := newDisconnectedClient()

	err := c.Publish("liftgate/device/x/state", make([]byte, maxPayloadSize+1), 0)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnectedClient()
	handler := func(string, []byte) {}

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("liftgate/device/+/command", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("liftgate/device/+/command", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("subscription count = %d, want 0 after failed subscribes", c.SubscriptionCount())
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.HealthCheck(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}
