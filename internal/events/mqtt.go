package events

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// Publisher is the subset of *mqtt.Client the MQTT sink needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// MQTTSink publishes button state (retained) and toggle outcomes.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Publish implements rocker.EventSink.
func (s *MQTTSink) Publish(_ context.Context, e rocker.Event) error {
	device := e.Button.Device.Hex()
	position := string(e.Button.Position)

	switch e.Type {
	case rocker.EventButtonState:
		payload, err := marshal(NewStateMessage(e))
		if err != nil {
			return err
		}
		if err := s.pub.PublishRetained(s.topics.ButtonState(device, position), payload); err != nil {
			return fmt.Errorf("publish button state %s: %w", e.Button, err)
		}
	case rocker.EventToggle:
		payload, err := marshal(NewToggleMessage(e))
		if err != nil {
			return err
		}
		if err := s.pub.PublishEvent(s.topics.ButtonEvent(device, position), payload); err != nil {
			return fmt.Errorf("publish toggle %s: %w", e.Button, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return nil
}
