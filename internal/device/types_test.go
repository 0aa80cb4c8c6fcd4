package device

import (
	"testing"
	"time"

	"github.com/liftgate-io/liftgate/internal/cloud"
)

func TestParseFamily(t *testing.T) {
	tests := []struct {
		raw  string
		want Family
	}{
		{"garagedoor", FamilyGarageDoor},
		{"GarageDoor", FamilyGarageDoor},
		{"lamp", FamilyLamp},
		{"gateway", FamilyGateway},
		{"camera", FamilyOther},
		{"", FamilyOther},
	}
	for _, tt := range tests {
		if got := ParseFamily(tt.raw); got != tt.want {
			t.Errorf("ParseFamily(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFamilyActionable(t *testing.T) {
	if !FamilyGarageDoor.Actionable() || !FamilyLamp.Actionable() {
		t.Error("doors and lamps should be actionable")
	}
	if FamilyGateway.Actionable() || FamilyOther.Actionable() {
		t.Error("gateways and unknown families should not be actionable")
	}
}

func TestDeviceRawAccessors(t *testing.T) {
	dev := &Device{
		Family: FamilyGarageDoor,
		RawState: map[string]any{
			"door_state":           "Closed",
			"online":               true,
			"dps_low_battery_mode": false,
		},
	}

	if got := dev.RawDoorState(); got != "closed" {
		t.Errorf("RawDoorState() = %q, want lowercased %q", got, "closed")
	}
	if !dev.Online() {
		t.Error("Online() = false, want true")
	}
	if dev.BatteryLow() {
		t.Error("BatteryLow() = true, want false")
	}

	dev.RawState["online"] = false
	dev.RawState["dps_low_battery_mode"] = true
	if dev.Online() {
		t.Error("Online() = true after vendor marked offline")
	}
	if !dev.BatteryLow() {
		t.Error("BatteryLow() = false, want true")
	}
}

func TestDeviceOnlineDefaultsTrue(t *testing.T) {
	dev := &Device{RawState: map[string]any{}}
	if !dev.Online() {
		t.Error("absent online attribute should read as online")
	}
}

func TestDeviceDeepCopy(t *testing.T) {
	orig := &Device{
		SerialNumber: "CG0123456789",
		RawState: map[string]any{
			"door_state": "open",
			"nested":     map[string]any{"k": "v"},
		},
		LastSeen: time.Now(),
	}

	cpy := orig.DeepCopy()
	cpy.RawState["door_state"] = "closed"
	cpy.RawState["nested"].(map[string]any)["k"] = "changed"

	if orig.RawState["door_state"] != "open" {
		t.Error("copy mutation leaked into original raw state")
	}
	if orig.RawState["nested"].(map[string]any)["k"] != "v" {
		t.Error("copy mutation leaked into nested map")
	}
}

func TestFromWire(t *testing.T) {
	now := time.Now()
	dev := fromWire(cloud.Device{
		SerialNumber:   "CG0123456789",
		Name:           "Main Door",
		DeviceFamily:   "garagedoor",
		ParentDeviceID: "GW0000000001",
		State:          map[string]any{"door_state": "closed"},
	}, "acc-1", now)

	if dev.Family != FamilyGarageDoor {
		t.Errorf("Family = %q, want %q", dev.Family, FamilyGarageDoor)
	}
	if dev.AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want acc-1", dev.AccountID)
	}
	if !dev.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", dev.LastSeen, now)
	}
}
