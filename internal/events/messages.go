package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// Protocol is the protocol identifier carried in every message.
const Protocol = "enocean"

// StateMessage is the retained payload describing a button's position.
// Topic: graylogic/state/enocean/{device}/{position}
type StateMessage struct {
	// ID is the originating event ID.
	ID string `json:"id"`

	// Timestamp is when the state changed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	Protocol string `json:"protocol"`

	// Device is the EnOcean device ID in hex ("00A1B2C3").
	Device string `json:"device"`

	// Position is the rocker position ("AI", "AO", "BI", "BO").
	Position string `json:"position"`

	Name    string `json:"name,omitempty"`
	Pressed bool   `json:"pressed"`
}

// ToggleMessage reports one toggle attempt.
// Topic: graylogic/event/enocean/{device}/{position}
type ToggleMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	Device    string    `json:"device"`
	Position  string    `json:"position"`

	// Switch is the name of the toggled KNX switch.
	Switch string `json:"switch"`

	// Address is the switch's main group address ("1/0/7").
	Address string `json:"address"`

	Result rocker.ToggleResult `json:"result"`

	// Value is the state written to the bus. Absent unless Result is "written".
	Value *bool `json:"value,omitempty"`
}

// NewStateMessage builds the state payload for a button_state event.
func NewStateMessage(e rocker.Event) StateMessage {
	return StateMessage{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC(),
		Protocol:  Protocol,
		Device:    e.Button.Device.Hex(),
		Position:  string(e.Button.Position),
		Name:      e.Name,
		Pressed:   e.Pressed,
	}
}

// NewToggleMessage builds the event payload for a toggle event.
func NewToggleMessage(e rocker.Event) ToggleMessage {
	msg := ToggleMessage{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC(),
		Protocol:  Protocol,
		Device:    e.Button.Device.Hex(),
		Position:  string(e.Button.Position),
		Switch:    e.Switch,
		Address:   e.Address.String(),
		Result:    e.Result,
	}
	if e.Result == rocker.ToggleWritten {
		v := e.Value
		msg.Value = &v
	}
	return msg
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}
