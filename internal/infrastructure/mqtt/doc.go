// Package mqtt provides MQTT client connectivity for Liftgate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The MQTT surface is an optional bridge: device states are published as
// retained messages so home-automation consumers (Home Assistant, Node-RED)
// see the current state immediately on subscribe, and commands arrive on a
// per-device command topic.
//
//	Liftgate ↔ MQTT Broker ↔ Automation consumers
//
// # Security Considerations
//
//   - TLS is recommended for brokers outside the local host
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Subscribe to all device commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) {
//	        logger.Info("received", "topic", topic)
//	    })
//
//	// Publish retained state
//	topic := mqtt.Topics{}.DeviceState("CG0800000001")
//	err = client.PublishRetained(topic, []byte(`{"state":"open"}`), 1)
package mqtt
