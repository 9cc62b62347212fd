package rocker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store. A unit of work stages its saves and applies
// them on Commit.
type memStore struct {
	mu       sync.Mutex
	buttons  map[ButtonKey]Button
	toggles  map[ButtonKey][]Switch
	saves    []Button
	commits  int
	rollback int

	failBegin  bool
	failSave   bool
	failCommit bool
}

func newMemStore() *memStore {
	return &memStore{
		buttons: make(map[ButtonKey]Button),
		toggles: make(map[ButtonKey][]Switch),
	}
}

func (s *memStore) addButton(device enocean.DeviceID, pos Position, pressed bool) ButtonKey {
	key := ButtonKey{Device: device, Position: pos}
	s.buttons[key] = Button{ButtonKey: key, Name: fmt.Sprintf("button %s", key), Pressed: pressed}
	return key
}

func (s *memStore) addToggle(key ButtonKey, switches ...Switch) {
	s.toggles[key] = append(s.toggles[key], switches...)
}

func (s *memStore) button(key ButtonKey) Button {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons[key]
}

func (s *memStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *memStore) Begin(_ context.Context) (UnitOfWork, error) {
	if s.failBegin {
		return nil, errStoreDown
	}
	return &memUnit{store: s, staged: make(map[ButtonKey]Button)}, nil
}

type memUnit struct {
	store  *memStore
	staged map[ButtonKey]Button
	saves  []Button
	done   bool
}

func (u *memUnit) LookupButton(_ context.Context, key ButtonKey) (Button, bool, error) {
	if b, ok := u.staged[key]; ok {
		return b, true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	b, ok := u.store.buttons[key]
	return b, ok, nil
}

func (u *memUnit) LookupToggleCommand(_ context.Context, key ButtonKey) (ToggleCommand, bool, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	switches := u.store.toggles[key]
	switch len(switches) {
	case 0:
		return ToggleCommand{}, false, nil
	case 1:
		return ToggleCommand{Button: key, Name: "toggle " + key.String(), Switch: switches[0]}, true, nil
	default:
		return ToggleCommand{}, false, fmt.Errorf("%w: %s", ErrAmbiguousToggle, key)
	}
}

func (u *memUnit) SaveButton(_ context.Context, b Button) error {
	if u.store.failSave {
		return errStoreDown
	}
	u.staged[b.ButtonKey] = b
	u.saves = append(u.saves, b)
	return nil
}

func (u *memUnit) Commit() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.store.failCommit {
		u.done = true
		return errStoreDown
	}
	for k, b := range u.staged {
		u.store.buttons[k] = b
	}
	u.store.saves = append(u.store.saves, u.saves...)
	u.store.commits++
	u.done = true
	return nil
}

func (u *memUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.store.mu.Lock()
	u.store.rollback++
	u.store.mu.Unlock()
	u.done = true
	return nil
}

type busWrite struct {
	addr  knx.GroupAddress
	value bool
}

// fakeBus is a BusGateway backed by a value table.
type fakeBus struct {
	mu        sync.Mutex
	values    map[knx.GroupAddress]bool
	readErr   error
	writeErr  error
	readDelay time.Duration

	reads  []knx.GroupAddress
	writes []busWrite
}

func newFakeBus() *fakeBus {
	return &fakeBus{values: make(map[knx.GroupAddress]bool)}
}

func (b *fakeBus) ReadBool(_ context.Context, addr knx.GroupAddress) (value, ok bool, err error) {
	b.mu.Lock()
	b.reads = append(b.reads, addr)
	value, ok = b.values[addr]
	readErr, delay := b.readErr, b.readDelay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if readErr != nil {
		return false, false, readErr
	}
	return value, ok, nil
}

func (b *fakeBus) WriteBool(_ context.Context, addr knx.GroupAddress, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, busWrite{addr: addr, value: value})
	if b.writeErr != nil {
		return b.writeErr
	}
	b.values[addr] = value
	return nil
}

func (b *fakeBus) recorded() (reads []knx.GroupAddress, writes []busWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]knx.GroupAddress(nil), b.reads...), append([]busWrite(nil), b.writes...)
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) published() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// recordingLogger keeps messages by level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
	infos  []string
}

func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Info(msg string, kv ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, fmt.Sprintln(append([]any{msg}, kv...)...))
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func mustDeviceID(t *testing.T, s string) enocean.DeviceID {
	t.Helper()
	id, err := enocean.ParseDeviceID(s)
	if err != nil {
		t.Fatalf("ParseDeviceID(%q): %v", s, err)
	}
	return id
}

func newTestTranslator(t *testing.T, store Store, bus BusGateway, opts ...func(*TranslatorOptions)) *Translator {
	t.Helper()
	o := TranslatorOptions{Store: store, Bus: bus}
	for _, fn := range opts {
		fn(&o)
	}
	tr, err := NewTranslator(o)
	if err != nil {
		t.Fatalf("NewTranslator() error: %v", err)
	}
	return tr
}

func action(buttons ...int) enocean.RockerAction {
	var a enocean.RockerAction
	for _, i := range buttons {
		a.Buttons[i] = true
	}
	return a
}

func count(n int) enocean.ButtonCount {
	return enocean.ButtonCount{Count: n}
}

func batch(device enocean.DeviceID, attrs ...enocean.Attribute) enocean.AttributeChange {
	return enocean.AttributeChange{Device: device, Attributes: attrs, Received: time.Now()}
}
