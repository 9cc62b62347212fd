package rocker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
)

// Ensure Translator implements the enocean listener interfaces.
var (
	_ enocean.AttributeListener = (*Translator)(nil)
	_ enocean.DeviceListener    = (*Translator)(nil)
)

// TranslatorOptions holds the collaborators of a Translator.
type TranslatorOptions struct {
	// Store provides one unit of work per batch. Required.
	Store Store

	// Bus is the KNX side. Required.
	Bus BusGateway

	// Events receives committed state changes and toggles. Optional.
	Events EventSink

	// Logger is optional.
	Logger Logger

	// SerializeToggles makes read+write on one address atomic with respect
	// to other toggles issued by this translator.
	SerializeToggles bool
}

// Translator turns rocker attribute changes into button state and KNX toggles.
//
// Each batch runs in its own unit of work: positions are visited in
// Positions() order and, for each configured button, attributes are applied
// in the order received. A RockerAction sets the pressed flag from the
// button's hardware index. A ButtonCount of 0 on a pressed button triggers
// the toggle command: the switch is read, its inverse written, and the button
// released whatever the bus outcome.
//
// Thread Safety: OnAttributeChange is safe for concurrent use.
type Translator struct {
	store  Store
	bus    BusGateway
	events EventSink
	logger Logger
	locks  *addressLocks

	now   func() time.Time
	newID func() string
}

// NewTranslator creates a translator.
//
// Parameters:
//   - opts: Store and Bus are required; Events and Logger may be nil
//
// Returns:
//   - *Translator: Ready to register as device and attribute listener
//   - error: ErrMissingDependency naming the absent collaborator
func NewTranslator(opts TranslatorOptions) (*Translator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus gateway", ErrMissingDependency)
	}

	t := &Translator{
		store:  opts.Store,
		bus:    opts.Bus,
		events: opts.Events,
		logger: opts.Logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	if opts.SerializeToggles {
		t.locks = newAddressLocks()
	}
	return t, nil
}

// OnAttributeChange applies one attribute batch.
//
// It performs:
//  1. Opens a unit of work on the store
//  2. For each configured position, applies rocker actions in order and
//     toggles the bound switches when a pressed button is released
//  3. Saves every visited button and commits
//  4. Publishes state and toggle events, only after a successful commit
//
// Unknown devices and unconfigured positions are skipped. Bus failures are
// logged and never abort the batch.
//
// Parameters:
//   - ctx: Bounds store access and bus reads and writes
//   - change: Attributes decoded from one telegram
//
// Returns:
//   - error: ErrPersistence after a store failure; nothing is published
func (t *Translator) OnAttributeChange(ctx context.Context, change enocean.AttributeChange) error {
	for _, a := range change.Attributes {
		t.logger.Info("attribute changed",
			"device", change.Device.Hex(),
			"channel", change.Channel,
			"attribute", a.Name(),
			"value", a.Value(),
		)
	}

	uow, err := t.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}

	events, err := t.apply(ctx, uow, change)
	if err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return fmt.Errorf("%w: device %s: %w", ErrPersistence, change.Device.Hex(), err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("%w: device %s: commit: %w", ErrPersistence, change.Device.Hex(), err)
	}

	t.publish(ctx, events)
	return nil
}

// apply runs the state machine for every configured position of the device
// and returns the events to publish after commit.
func (t *Translator) apply(ctx context.Context, uow UnitOfWork, change enocean.AttributeChange) ([]Event, error) {
	var events []Event

	for _, pos := range Positions() {
		key := ButtonKey{Device: change.Device, Position: pos}

		b, ok, err := uow.LookupButton(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("looking up button %s: %w", key, err)
		}
		if !ok {
			continue
		}
		wasPressed := b.Pressed

		for _, attr := range change.Attributes {
			switch a := attr.(type) {
			case enocean.RockerAction:
				b.Pressed = a.Button(pos.HardwareIndex())

			case enocean.ButtonCount:
				if !b.Pressed || a.Count != 0 {
					continue
				}
				ev, fired, err := t.toggle(ctx, uow, b)
				if err != nil {
					return nil, err
				}
				if !fired {
					continue
				}
				b.Pressed = false
				ev.Pressed = false
				events = append(events, ev)
			}
		}

		b.UpdatedAt = t.now()
		if err := uow.SaveButton(ctx, b); err != nil {
			return nil, fmt.Errorf("saving button %s: %w", key, err)
		}
		t.logger.Info("button saved", "button", key.String(), "name", b.Name, "pressed", b.Pressed)

		if b.Pressed != wasPressed {
			ev := t.newEvent(EventButtonState, b)
			events = append(events, ev)
		}
	}

	return events, nil
}

// toggle resolves the button's toggle command and inverts its switch.
// fired is false when the button has no toggle command.
func (t *Translator) toggle(ctx context.Context, uow UnitOfWork, b Button) (ev Event, fired bool, err error) {
	cmd, ok, err := uow.LookupToggleCommand(ctx, b.ButtonKey)
	switch {
	case errors.Is(err, ErrAmbiguousToggle):
		t.logger.Error("toggle command rejected", "button", b.ButtonKey.String(), "error", err)
		ev = t.newEvent(EventToggle, b)
		ev.Result = ToggleAmbiguousTarget
		return ev, true, nil
	case err != nil:
		return Event{}, false, fmt.Errorf("looking up toggle command for %s: %w", b.ButtonKey, err)
	case !ok:
		t.logger.Debug("no toggle command", "button", b.ButtonKey.String())
		return Event{}, false, nil
	}

	ev = t.newEvent(EventToggle, b)
	ev.Switch = cmd.Switch.Name
	ev.Address = cmd.Switch.MainAddress
	ev.Result, ev.Value = t.invert(ctx, b, cmd.Switch)
	return ev, true, nil
}

// invert reads the switch and writes back the inverse.
// An unknown current value suppresses the write.
func (t *Translator) invert(ctx context.Context, b Button, sw Switch) (ToggleResult, bool) {
	addr := sw.MainAddress
	if t.locks != nil {
		unlock := t.locks.lock(addr)
		defer unlock()
	}

	prev, ok, err := t.bus.ReadBool(ctx, addr)
	if err != nil {
		t.logger.Error("reading switch failed",
			"switch", sw.Name, "address", addr.String(), "button", b.ButtonKey.String(), "error", err)
		return ToggleReadFailed, false
	}
	if !ok {
		t.logger.Warn("switch value unknown, not toggling",
			"switch", sw.Name, "address", addr.String(), "button", b.ButtonKey.String())
		return ToggleUnknownValue, false
	}

	next := !prev
	if err := t.bus.WriteBool(ctx, addr, next); err != nil {
		t.logger.Error("writing switch failed",
			"switch", sw.Name, "address", addr.String(), "button", b.ButtonKey.String(), "error", err)
		return ToggleWriteFailed, next
	}

	t.logger.Info("switch toggled",
		"switch", sw.Name, "address", addr.String(), "button", b.ButtonKey.String(), "value", next)
	return ToggleWritten, next
}

func (t *Translator) newEvent(typ EventType, b Button) Event {
	return Event{
		ID:        t.newID(),
		Type:      typ,
		Button:    b.ButtonKey,
		Name:      b.Name,
		Pressed:   b.Pressed,
		Timestamp: t.now(),
	}
}

func (t *Translator) publish(ctx context.Context, events []Event) {
	if t.events == nil {
		return
	}
	for _, ev := range events {
		if err := t.events.Publish(ctx, ev); err != nil {
			t.logger.Warn("publishing event failed", "type", string(ev.Type), "button", ev.Button.String(), "error", err)
		}
	}
}

// OnDeviceAdded logs the new device.
func (t *Translator) OnDeviceAdded(_ context.Context, d enocean.Device) {
	t.logger.Info("device added", "device", d.ID.Hex(), "eep", d.EEP.String(), "name", d.Name)
}

// OnDeviceModified is ignored; button configuration comes from the directory.
func (t *Translator) OnDeviceModified(_ context.Context, d enocean.Device) {
	t.logger.Debug("device modified", "device", d.ID.Hex())
}

// OnDeviceRemoved is ignored; persisted buttons are kept.
func (t *Translator) OnDeviceRemoved(_ context.Context, d enocean.Device) {
	t.logger.Debug("device removed", "device", d.ID.Hex())
}

// addressLocks hands out one mutex per group address.
type addressLocks struct {
	mu    sync.Mutex
	locks map[knx.GroupAddress]*sync.Mutex
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[knx.GroupAddress]*sync.Mutex)}
}

// lock acquires the mutex for addr and returns its release function.
func (l *addressLocks) lock(addr knx.GroupAddress) func() {
	l.mu.Lock()
	m, ok := l.locks[addr]
	if !ok {
		m = &sync.Mutex{}
		l.locks[addr] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
