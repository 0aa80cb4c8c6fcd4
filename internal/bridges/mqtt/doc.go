// Package mqtt bridges the device registry onto an MQTT broker.
//
// The bridge publishes retained state documents for every device and
// accepts commands back over a topic wildcard, mirroring the vendor
// cloud onto local infrastructure:
//
//	┌──────────────┐  events   ┌──────────────┐  retained   ┌────────┐
//	│   Registry    ├──────────►│    Bridge     ├────────────►│ Broker │
//	│ (cloud mirror)│◄──────────┤               │◄────────────┤        │
//	└──────────────┘  commands  └──────────────┘  commands    └────────┘
//
// Topics:
//
//	liftgate/device/{serial}/state         retained JSON state document
//	liftgate/device/{serial}/availability  retained "online"/"offline"
//	liftgate/device/{serial}/command       inbound, payload {"action":"open"}
//	                                       or a bare action string
//
// State documents are retained so consumers joining after a publish still
// see current values. Command results are reflected by the next state
// publish rather than a per-command reply topic.
package mqtt
