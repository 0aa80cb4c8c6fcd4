package device

import (
	"strings"
	"time"

	"github.com/liftgate-io/liftgate/internal/cloud"
)

// Family classifies a device by its command surface.
type Family string

// Known device families. The vendor reports others (sensors, cameras);
// anything unrecognised is FamilyOther and read-only.
const (
	FamilyGarageDoor Family = "garagedoor"
	FamilyLamp       Family = "lamp"
	FamilyGateway    Family = "gateway"
	FamilyOther      Family = "other"
)

// ParseFamily maps the vendor's device_family string onto a Family.
func ParseFamily(raw string) Family {
	switch strings.ToLower(raw) {
	case "garagedoor":
		return FamilyGarageDoor
	case "lamp":
		return FamilyLamp
	case "gateway":
		return FamilyGateway
	default:
		return FamilyOther
	}
}

// Actionable reports whether the family has a command endpoint.
func (f Family) Actionable() bool {
	return f == FamilyGarageDoor || f == FamilyLamp
}

// Device is one entry in the local mirror of the vendor's device list.
//
// Devices are immutable once published: each refresh produces new Device
// values rather than mutating the prior snapshot, so readers never observe
// a half-updated device.
type Device struct {
	// SerialNumber is the unique device key across all accounts.
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
	Family       Family `json:"family"`

	// ParentDeviceID links openers and lamps to the gateway they hang off.
	ParentDeviceID string `json:"parent_device_id,omitempty"`

	// AccountID routes commands to the owning vendor account. Internal;
	// not part of the API representation.
	AccountID string `json:"-"`

	// RawState is the vendor's state attribute map, unmodified.
	// Interpretation belongs to the Resolver.
	RawState map[string]any `json:"raw_state"`

	// LastSeen is when this snapshot was fetched.
	LastSeen time.Time `json:"last_seen"`
}

// fromWire converts the cloud DTO into a mirror entry.
func fromWire(w cloud.Device, accountID string, now time.Time) *Device {
	return &Device{
		SerialNumber:   w.SerialNumber,
		Name:           w.Name,
		Family:         ParseFamily(w.DeviceFamily),
		ParentDeviceID: w.ParentDeviceID,
		AccountID:      accountID,
		RawState:       w.State,
		LastSeen:       now,
	}
}

// RawDoorState returns the raw door_state attribute, lowercased, or ""
// when absent.
func (d *Device) RawDoorState() string {
	return d.rawString("door_state")
}

// RawLampState returns the raw lamp_state attribute, lowercased, or ""
// when absent.
func (d *Device) RawLampState() string {
	return d.rawString("lamp_state")
}

// Online reports whether the vendor considers the device reachable.
// Absence of the attribute is treated as online; gateways in particular
// omit it.
func (d *Device) Online() bool {
	v, ok := d.RawState["online"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

// BatteryLow reports whether the vendor flags a low DC battery.
func (d *Device) BatteryLow() bool {
	v, ok := d.RawState["dps_low_battery_mode"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (d *Device) rawString(key string) string {
	v, ok := d.RawState[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.ToLower(s)
}

// DeepCopy creates an independent copy of the Device, cloning the raw
// state map so callers can hold it without racing the mirror.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.RawState = deepCopyMap(d.RawState)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
