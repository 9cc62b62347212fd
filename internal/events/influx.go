package events

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// PointWriter is the subset of *influxdb.Client the history sink needs.
type PointWriter interface {
	WriteButtonState(s influxdb.ButtonState)
	WriteToggle(t influxdb.Toggle)
}

// InfluxSink records every event as a time-series point. Writes are
// batched by the client, so Publish never blocks on the network.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Publish implements rocker.EventSink.
func (s *InfluxSink) Publish(_ context.Context, e rocker.Event) error {
	switch e.Type {
	case rocker.EventButtonState:
		s.w.WriteButtonState(influxdb.ButtonState{
			Device:    e.Button.Device.Hex(),
			Position:  string(e.Button.Position),
			Name:      e.Name,
			Pressed:   e.Pressed,
			Timestamp: e.Timestamp,
		})
	case rocker.EventToggle:
		msg := NewToggleMessage(e)
		s.w.WriteToggle(influxdb.Toggle{
			Device:    msg.Device,
			Position:  msg.Position,
			Switch:    msg.Switch,
			Address:   msg.Address,
			Result:    string(msg.Result),
			Value:     msg.Value,
			Timestamp: e.Timestamp,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return nil
}
