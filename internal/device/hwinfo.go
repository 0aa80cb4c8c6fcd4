package device

import "strings"

// HwInfo describes the hardware a serial number encodes.
type HwInfo struct {
	Brand   string `json:"brand"`
	Product string `json:"product"`
}

// hwInfoTable maps the two product-code characters embedded in a serial
// number to brand and product. Recovered from observed hardware; the
// vendor publishes no decoder.
var hwInfoTable = map[string]HwInfo{
	"00": {Brand: "Chamberlain", Product: "Ethernet Gateway"},
	"01": {Brand: "LiftMaster", Product: "Ethernet Gateway"},
	"02": {Brand: "Craftsman", Product: "Ethernet Gateway"},
	"03": {Brand: "Chamberlain", Product: "WiFi Hub"},
	"04": {Brand: "LiftMaster", Product: "WiFi Hub"},
	"05": {Brand: "Craftsman", Product: "WiFi Hub"},
	"08": {Brand: "LiftMaster", Product: "WiFi GDO DC with Battery Backup"},
	"09": {Brand: "Chamberlain", Product: "WiFi GDO DC with Battery Backup"},
	"10": {Brand: "Chamberlain", Product: "WiFi GDO or Gate Operator AC"},
	"11": {Brand: "LiftMaster", Product: "WiFi GDO or Gate Operator AC"},
	"12": {Brand: "LiftMaster", Product: "WiFi GDO DC 3/4 HP"},
	"13": {Brand: "Chamberlain", Product: "WiFi GDO DC 3/4 HP"},
	"20": {Brand: "LiftMaster", Product: "Home Bridge"},
	"21": {Brand: "Chamberlain", Product: "Home Bridge"},
	"23": {Brand: "Chamberlain", Product: "Smart Garage Hub"},
	"24": {Brand: "LiftMaster", Product: "Smart Garage Hub"},
	"27": {Brand: "LiftMaster", Product: "WiFi Wall Mount Opener"},
	"28": {Brand: "LiftMaster Commercial", Product: "WiFi Wall Mount Operator"},
	"80": {Brand: "LiftMaster EU", Product: "Ethernet Gateway"},
	"81": {Brand: "Chamberlain EU", Product: "Ethernet Gateway"},
}

// DecodeHardware decodes the product code embedded at positions 2-3 of a
// serial number. Returns nil for malformed serials or unrecognised codes.
func DecodeHardware(serial string) *HwInfo {
	if len(serial) < 4 {
		return nil
	}
	info, ok := hwInfoTable[strings.ToUpper(serial[2:4])]
	if !ok {
		return nil
	}
	return &info
}
