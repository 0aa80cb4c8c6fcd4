package mqtt

import "fmt"

// Topic prefixes for the Liftgate MQTT surface.
//
// Device topics use the scheme: liftgate/device/{serial}/{suffix}
const (
	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "liftgate/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "liftgate/system"
)

// Topics provides builders for Liftgate MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("CG0800000001")
//	// Returns: "liftgate/device/CG0800000001/state"
type Topics struct{}

// DeviceState returns the retained canonical-state topic for a device.
//
// Example: liftgate/device/CG0800000001/state
func (Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, serial)
}

// DeviceCommand returns the command topic for a device.
//
// Example: liftgate/device/CG0800000001/command
func (Topics) DeviceCommand(serial string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, serial)
}

// DeviceAvailability returns the per-device availability topic.
//
// Example: liftgate/device/CG0800000001/availability
func (Topics) DeviceAvailability(serial string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefixDevice, serial)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: liftgate/device/+/command
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefixDevice)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: liftgate/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixDevice)
}

// SystemStatus returns the system status topic carrying online/offline
// payloads and the LWT.
//
// Example: liftgate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
