package enocean

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AttributeChange is a batch of attributes decoded from one telegram.
type AttributeChange struct {
	Device     DeviceID
	Channel    int
	Attributes []Attribute
	Received   time.Time
}

// DeviceListener is notified when the set of registered devices changes.
type DeviceListener interface {
	OnDeviceAdded(ctx context.Context, d Device)
	OnDeviceModified(ctx context.Context, d Device)
	OnDeviceRemoved(ctx context.Context, d Device)
}

// AttributeListener receives decoded attribute changes.
//
// Returned errors are collected and logged by the caller; they never stop
// delivery to other listeners.
type AttributeListener interface {
	OnAttributeChange(ctx context.Context, change AttributeChange) error
}

// TelegramHandler consumes radio telegrams read from the link.
type TelegramHandler interface {
	HandleTelegram(ctx context.Context, t RadioTelegram) error
}

// Ensure DeviceManager implements TelegramHandler.
var _ TelegramHandler = (*DeviceManager)(nil)

// DeviceManager tracks registered devices and dispatches their telegrams.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners are called synchronously on the caller's goroutine.
type DeviceManager struct {
	mu                 sync.RWMutex
	devices            map[DeviceID]Device
	deviceListeners    []DeviceListener
	attributeListeners []AttributeListener

	logger Logger
	now    func() time.Time
}

// NewDeviceManager creates an empty manager. A nil logger discards output.
func NewDeviceManager(logger Logger) *DeviceManager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DeviceManager{
		devices: make(map[DeviceID]Device),
		logger:  logger,
		now:     time.Now,
	}
}

// AddDeviceListener subscribes l to device add/modify/remove events.
func (m *DeviceManager) AddDeviceListener(l DeviceListener) {
	m.mu.Lock()
	m.deviceListeners = append(m.deviceListeners, l)
	m.mu.Unlock()
}

// AddAttributeListener subscribes l to decoded attribute changes.
func (m *DeviceManager) AddAttributeListener(l AttributeListener) {
	m.mu.Lock()
	m.attributeListeners = append(m.attributeListeners, l)
	m.mu.Unlock()
}

// RegisterDevice adds d, or replaces the entry with the same ID.
// Listeners see OnDeviceAdded for a new ID and OnDeviceModified otherwise.
func (m *DeviceManager) RegisterDevice(ctx context.Context, d Device) error {
	if err := checkSupported(d.EEP); err != nil {
		return fmt.Errorf("registering %s: %w", d.ID, err)
	}

	m.mu.Lock()
	_, existed := m.devices[d.ID]
	m.devices[d.ID] = d
	listeners := append([]DeviceListener(nil), m.deviceListeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		if existed {
			l.OnDeviceModified(ctx, d)
		} else {
			l.OnDeviceAdded(ctx, d)
		}
	}
	return nil
}

// UnregisterDevice removes the device with id. Unknown IDs are ignored.
func (m *DeviceManager) UnregisterDevice(ctx context.Context, id DeviceID) {
	m.mu.Lock()
	d, ok := m.devices[id]
	delete(m.devices, id)
	listeners := append([]DeviceListener(nil), m.deviceListeners...)
	m.mu.Unlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		l.OnDeviceRemoved(ctx, d)
	}
}

// Device returns the registered device with id.
func (m *DeviceManager) Device(id DeviceID) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	return d, ok
}

// Devices returns all registered devices ordered by ID.
func (m *DeviceManager) Devices() []Device {
	m.mu.RLock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HandleTelegram decodes a telegram from a registered device and delivers
// the result to every attribute listener. Telegrams from unknown senders are
// dropped.
func (m *DeviceManager) HandleTelegram(ctx context.Context, t RadioTelegram) error {
	d, ok := m.Device(t.Sender)
	if !ok {
		m.logger.Debug("telegram from unregistered device", "device", t.Sender.Hex(), "rorg", fmt.Sprintf("%02X", t.RORG))
		return nil
	}

	attrs, err := Decode(d.EEP, t)
	if err != nil {
		return fmt.Errorf("decoding telegram from %s: %w", d.ID, err)
	}

	change := AttributeChange{
		Device:     d.ID,
		Attributes: attrs,
		Received:   m.now(),
	}

	m.mu.RLock()
	listeners := append([]AttributeListener(nil), m.attributeListeners...)
	m.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.OnAttributeChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

