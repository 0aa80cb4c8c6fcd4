package mqtt

import "errors"

// Sentinel errors for MQTT operations.
//
// These wrap common failure modes and can be checked with errors.Is():
//
//	err := client.Publish(topic, payload, 1)
//	if errors.Is(err, mqtt.ErrNotConnected) {
//	    // handle disconnected state
//	}
var (
	// ErrNotConnected indicates an operation was attempted while disconnected.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection to broker failed")

	// ErrPublishFailed indicates a publish operation failed or timed out.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed indicates a subscribe operation failed or timed out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed indicates an unsubscribe operation failed or timed out.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS indicates an invalid QoS level was specified (must be 0-2).
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic indicates an empty or malformed topic was specified.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTimeout indicates an operation exceeded its timeout.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
