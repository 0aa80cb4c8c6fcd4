// Package device provides the device registry and per-device state
// resolution for Liftgate.
//
// The registry maintains an in-memory mirror of the vendor's device list
// and reconciles it on every refresh. Resolvers sit alongside the mirror,
// keyed by serial number, and turn each device's raw state map into a
// canonical state with debounced obstruction and occupancy signals.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Device Registry                        │
//	│                                                              │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────┐  │
//	│  │    Registry     │   │    Resolver    │   │    HwInfo    │ │
//	│  │  (registry.go)  │──▶│  (resolver.go) │   │  (hwinfo.go) │ │
//	│  │                 │   │                │   │              │ │
//	│  │ • mirror sync   │   │ • canonical    │   │ • serial     │ │
//	│  │ • diff events   │   │   door state   │   │   decode     │ │
//	│  │ • staleness     │   │ • debounces    │   │ • brand map  │ │
//	│  └────────────────┘   └────────────────┘   └──────────────┘  │
//	│           │                    │                             │
//	└───────────│────────────────────│─────────────────────────────┘
//	            ▼                    ▼
//	      cloud.Client          REST API / MQTT bridge
//
// The mirror is replaced wholesale on each successful refresh, never
// patched in place; resolvers survive replacement because they are keyed by
// serial number rather than holding pointers into the mirror.
package device
