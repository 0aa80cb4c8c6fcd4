package mqtt

import "fmt"

// maxPayloadSize limits outbound payloads. State documents are tiny; this
// guards against accidentally publishing a multi-megabyte blob.
const maxPayloadSize = 1024 * 1024

// Publish sends a message to the given topic.
//
// Parameters:
//   - topic: destination topic; must be non-empty
//   - payload: message bytes
//   - qos: delivery guarantee (0, 1 or 2)
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte) error {
	return c.publish(topic, payload, qos, false)
}

// PublishRetained sends a retained message: the broker stores it and
// delivers it immediately to every future subscriber. Device state and
// availability use retained messages so late joiners see current values.
func (c *Client) PublishRetained(topic string, payload []byte, qos byte) error {
	return c.publish(topic, payload, qos, true)
}

// PublishString is a convenience wrapper for string payloads.
func (c *Client) PublishString(topic, payload string, qos byte) error {
	return c.publish(topic, []byte(payload), qos, false)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrPublishFailed, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %v", ErrPublishFailed, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return nil
}
