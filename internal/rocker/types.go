package rocker

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
)

// ButtonKey identifies a logical button.
type ButtonKey struct {
	Device   enocean.DeviceID
	Position Position
}

// String returns "DEVICE/POSITION", e.g. "00A1B2C3/AI".
func (k ButtonKey) String() string {
	return fmt.Sprintf("%s/%s", k.Device.Hex(), k.Position)
}

// Button is the persisted state of one rocker button.
type Button struct {
	ButtonKey
	Name      string
	Pressed   bool
	UpdatedAt time.Time
}

// Switch is a boolean KNX group point.
type Switch struct {
	Name        string
	MainAddress knx.GroupAddress
}

// ToggleCommand binds a button to the switch it inverts.
type ToggleCommand struct {
	Button ButtonKey
	Name   string
	Switch Switch
}

// Store opens units of work. One unit of work spans one attribute batch.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is a transactional view of buttons and toggle commands.
//
// Lookups report absence with ok=false and a nil error. After Commit or
// Rollback the unit of work must not be used; a Rollback after Commit is a
// no-op.
type UnitOfWork interface {
	LookupButton(ctx context.Context, key ButtonKey) (Button, bool, error)

	// LookupToggleCommand returns ErrAmbiguousToggle when more than one
	// switch is bound to the button.
	LookupToggleCommand(ctx context.Context, key ButtonKey) (ToggleCommand, bool, error)

	SaveButton(ctx context.Context, b Button) error
	Commit() error
	Rollback() error
}

// BusGateway reads and writes boolean bus points.
type BusGateway interface {
	// ReadBool returns ok=false when the current value is unknown.
	ReadBool(ctx context.Context, addr knx.GroupAddress) (value, ok bool, err error)
	WriteBool(ctx context.Context, addr knx.GroupAddress, value bool) error
}

// EventType classifies published events.
type EventType string

// Event types.
const (
	EventButtonState EventType = "button_state"
	EventToggle      EventType = "toggle"
)

// ToggleResult is the outcome of a toggle attempt.
type ToggleResult string

// Toggle results.
const (
	ToggleWritten         ToggleResult = "written"
	ToggleUnknownValue    ToggleResult = "unknown_value"
	ToggleReadFailed      ToggleResult = "read_failed"
	ToggleWriteFailed     ToggleResult = "write_failed"
	ToggleAmbiguousTarget ToggleResult = "ambiguous_target"
)

// Event is emitted after a batch commits.
type Event struct {
	ID        string
	Type      EventType
	Button    ButtonKey
	Name      string
	Pressed   bool
	Timestamp time.Time

	// Toggle events only.
	Switch  string
	Address knx.GroupAddress
	Result  ToggleResult
	Value   bool // value written, when Result is ToggleWritten
}

// EventSink receives committed events. Failures are logged by the caller.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
