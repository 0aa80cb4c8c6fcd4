package device

import "testing"

func TestDecodeHardware(t *testing.T) {
	tests := []struct {
		name     string
		serial   string
		wantNil  bool
		wantInfo HwInfo
	}{
		{
			name:     "smart garage hub",
			serial:   "CG23A0B1C2D3",
			wantInfo: HwInfo{Brand: "Chamberlain", Product: "Smart Garage Hub"},
		},
		{
			name:     "wall mount opener",
			serial:   "GW27X0000001",
			wantInfo: HwInfo{Brand: "LiftMaster", Product: "WiFi Wall Mount Opener"},
		},
		{
			name:     "lowercase serial",
			serial:   "cg23a0b1c2d3",
			wantInfo: HwInfo{Brand: "Chamberlain", Product: "Smart Garage Hub"},
		},
		{
			name:    "unrecognised product code",
			serial:  "CG99A0B1C2D3",
			wantNil: true,
		},
		{
			name:    "too short",
			serial:  "CG2",
			wantNil: true,
		},
		{
			name:    "empty",
			serial:  "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeHardware(tt.serial)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("DecodeHardware(%q) = %+v, want nil", tt.serial, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("DecodeHardware(%q) = nil, want %+v", tt.serial, tt.wantInfo)
			}
			if *got != tt.wantInfo {
				t.Errorf("DecodeHardware(%q) = %+v, want %+v", tt.serial, *got, tt.wantInfo)
			}
		})
	}
}
