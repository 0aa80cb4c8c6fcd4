package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/liftgate-io/liftgate/internal/device"
	infra "github.com/liftgate-io/liftgate/internal/infrastructure/mqtt"
)

// commandTimeout bounds a single inbound command's round trip to the vendor.
const commandTimeout = 30 * time.Second

// Broker is the subset of the MQTT client the bridge needs. Satisfied by
// *mqtt.Client from internal/infrastructure/mqtt.
type Broker interface {
	PublishRetained(topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte, handler infra.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge publishes device state to an MQTT broker and relays inbound
// command messages to the device registry.
type Bridge struct {
	registry *device.Registry
	broker   Broker
	logger   Logger
	qos      byte
	topics   infra.Topics
}

// stateDocument is the JSON payload published on the device state topic.
type stateDocument struct {
	SerialNumber string       `json:"serial_number"`
	Name         string       `json:"name"`
	Family       string       `json:"family"`
	State        device.State `json:"state"`
	TargetState  device.State `json:"target_state"`
	Online       bool         `json:"online"`
	Obstructed   bool         `json:"obstructed"`
	Occupied     bool         `json:"occupied"`
	BatteryLow   bool         `json:"battery_low"`
	LastSeen     time.Time    `json:"last_seen"`
}

// commandMessage is the accepted JSON form of an inbound command. A bare
// action string ("open") is also accepted for hand-driven clients.
type commandMessage struct {
	Action string `json:"action"`
}

// NewBridge creates a bridge between the registry and an MQTT broker.
//
// Parameters:
//   - registry: populated device registry; must not be nil
//   - broker: connected MQTT client; must not be nil
//   - qos: delivery guarantee for outbound publishes (0-2)
//   - logger: receives bridge diagnostics; must not be nil
func NewBridge(registry *device.Registry, broker Broker, qos byte, logger Logger) *Bridge {
	return &Bridge{
		registry: registry,
		broker:   broker,
		logger:   logger,
		qos:      qos,
	}
}

// Start subscribes to the device command wildcard and publishes the
// current state of every known device so retained topics are populated
// immediately after startup.
func (b *Bridge) Start() error {
	if err := b.broker.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return err
	}

	for _, dev := range b.registry.Devices() {
		b.publishDevice(dev)
	}

	return nil
}

// Stop removes the command subscription. Retained state topics are left
// in place; the broker-level Last Will covers availability of the bridge
// itself.
func (b *Bridge) Stop() error {
	return b.broker.Unsubscribe(b.topics.AllDeviceCommands())
}

// HandleEvent publishes the registry event onto the broker. Wire this as
// (part of) the registry's event handler.
func (b *Bridge) HandleEvent(e device.Event) {
	switch e.Type {
	case device.EventDiscovered, device.EventStateChanged, device.EventObstruction:
		b.publishDevice(e.Device)
	case device.EventRemoved:
		b.retireDevice(e.Device.SerialNumber)
	}
}

// publishDevice emits the retained state document and availability flag
// for one device.
func (b *Bridge) publishDevice(dev *device.Device) {
	doc := stateDocument{
		SerialNumber: dev.SerialNumber,
		Name:         dev.Name,
		Family:       string(dev.Family),
		Online:       dev.Online(),
		BatteryLow:   dev.BatteryLow(),
		LastSeen:     dev.LastSeen,
	}

	if res, err := b.registry.Resolver(dev.SerialNumber); err == nil {
		doc.State = res.CanonicalState()
		doc.TargetState = res.TargetState()
		doc.Obstructed = res.IsObstructed()
		doc.Occupied = res.IsOccupied()
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		b.logger.Error("failed to encode state document", "serial", dev.SerialNumber, "error", err)
		return
	}

	if err := b.broker.PublishRetained(b.topics.DeviceState(dev.SerialNumber), payload, b.qos); err != nil {
		b.logger.Warn("failed to publish device state", "serial", dev.SerialNumber, "error", err)
	}

	availability := "offline"
	if dev.Online() {
		availability = "online"
	}
	if err := b.broker.PublishRetained(b.topics.DeviceAvailability(dev.SerialNumber), []byte(availability), b.qos); err != nil {
		b.logger.Warn("failed to publish device availability", "serial", dev.SerialNumber, "error", err)
	}
}

// retireDevice clears the retained topics for a device that left the
// account. An empty retained payload deletes the broker-side copy.
func (b *Bridge) retireDevice(serial string) {
	if err := b.broker.PublishRetained(b.topics.DeviceState(serial), nil, b.qos); err != nil {
		b.logger.Warn("failed to clear device state topic", "serial", serial, "error", err)
	}
	if err := b.broker.PublishRetained(b.topics.DeviceAvailability(serial), []byte("offline"), b.qos); err != nil {
		b.logger.Warn("failed to publish device availability", "serial", serial, "error", err)
	}
}

// handleCommand processes an inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	serial, ok := serialFromCommandTopic(topic)
	if !ok {
		b.logger.Warn("command on unrecognised topic", "topic", topic)
		return
	}

	action, ok := parseCommand(payload)
	if !ok {
		b.logger.Warn("unparseable command payload", "serial", serial, "payload", string(payload))
		return
	}

	res, err := b.registry.Resolver(serial)
	if err != nil {
		b.logger.Warn("command for unknown device", "serial", serial, "action", action)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := res.Command(ctx, action); err != nil {
		b.logger.Warn("command rejected", "serial", serial, "action", action, "error", err)
		return
	}

	b.logger.Info("command accepted", "serial", serial, "action", action)
}

// serialFromCommandTopic extracts the serial from
// liftgate/device/{serial}/command.
func serialFromCommandTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "liftgate" || parts[1] != "device" || parts[3] != "command" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// parseCommand accepts either {"action":"open"} or a bare action string.
func parseCommand(payload []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "{") {
		var msg commandMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Action == "" {
			return "", false
		}
		return strings.ToLower(msg.Action), true
	}

	return strings.ToLower(strings.Trim(trimmed, `"`)), true
}
