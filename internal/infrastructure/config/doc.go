// Package config provides configuration loading for liftgate.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// LIFTGATE_* environment variables. Secrets (the vendor account credentials,
// MQTT password) should be supplied through the environment rather than
// written into config.yaml.
//
// The loaded Config is passed into each component at construction; no package
// reads configuration from globals.
package config
