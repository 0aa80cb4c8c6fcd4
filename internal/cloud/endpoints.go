package cloud

import "strings"

// Endpoints is the vendor host set. The paths appended to these hosts are
// part of the observed wire contract and must not be altered.
type Endpoints struct {
	// Identity is the OAuth identity service host.
	Identity string

	// Accounts is the account listing host.
	Accounts string

	// Devices is the device listing host.
	Devices string

	// DoorCommands is the garage-door-opener command host.
	DoorCommands string

	// LampCommands is the lamp command host.
	LampCommands string
}

// EndpointsForRegion returns the host set for a configured region.
// Empty and "east" select the default deployment.
func EndpointsForRegion(region string) Endpoints {
	switch strings.ToLower(region) {
	case "west":
		return Endpoints{
			Identity:     "https://partner-identity-west.myq-cloud.com",
			Accounts:     "https://accounts-west.myq-cloud.com",
			Devices:      "https://devices-west.myq-cloud.com",
			DoorCommands: "https://account-devices-gdo-west.myq-cloud.com",
			LampCommands: "https://account-devices-lamp-west.myq-cloud.com",
		}
	default:
		return Endpoints{
			Identity:     "https://partner-identity.myq-cloud.com",
			Accounts:     "https://accounts.myq-cloud.com",
			Devices:      "https://devices.myq-cloud.com",
			DoorCommands: "https://account-devices-gdo.myq-cloud.com",
			LampCommands: "https://account-devices-lamp.myq-cloud.com",
		}
	}
}
