package directory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// File is the YAML layout of a directory file.
//
//	switches:
//	  - name: kitchen light
//	    address: 1/0/7
//	devices:
//	  - id: A1B2C3
//	    name: Kitchen rocker
//	    eep: F6-02-01
//	    buttons:
//	      - position: AI
//	        name: Kitchen light
//	        toggle:
//	          switches: [kitchen light]
type File struct {
	Switches []SwitchEntry `yaml:"switches"`
	Devices  []DeviceEntry `yaml:"devices"`
}

// SwitchEntry defines a KNX switch.
// Address is required; nil means the key was absent.
type SwitchEntry struct {
	Name    string            `yaml:"name"`
	Address *knx.GroupAddress `yaml:"address"`
}

// DeviceEntry defines a rocker switch and its buttons.
type DeviceEntry struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	EEP     string        `yaml:"eep"`
	Buttons []ButtonEntry `yaml:"buttons"`
}

// ButtonEntry defines one button of a device.
type ButtonEntry struct {
	Position string       `yaml:"position"`
	Name     string       `yaml:"name"`
	Toggle   *ToggleEntry `yaml:"toggle"`
}

// ToggleEntry binds a button to a switch by name.
type ToggleEntry struct {
	Name     string   `yaml:"name"`
	Switches []string `yaml:"switches"`
}

// Directory is a validated directory.
type Directory struct {
	Devices  []enocean.Device
	Switches []rocker.Switch
	Buttons  []rocker.Button
	Toggles  []rocker.ToggleCommand
}

// LoadFile reads and validates a directory file.
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("opening directory file: %w", err)
	}
	defer f.Close()

	dir, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return dir, nil
}

// Load decodes and validates a directory.
//
// Unknown keys are rejected. Validation does not stop at the first problem:
// every bad switch, device and button is reported in one joined error.
//
// Parameters:
//   - r: YAML document
//
// Returns:
//   - *Directory: Devices, buttons, switches and resolved toggle commands
//   - error: ErrInvalidDirectory joined with each validation failure
func Load(r io.Reader) (*Directory, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidDirectory, err)
	}
	return file.Build()
}

// Build validates the file and resolves switch references.
func (f File) Build() (*Directory, error) {
	var errs []error
	dir := &Directory{}

	switches := make(map[string]rocker.Switch, len(f.Switches))
	for i, s := range f.Switches {
		name := strings.TrimSpace(s.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("switches[%d]: name is required", i))
			continue
		case s.Address == nil:
			errs = append(errs, fmt.Errorf("switches[%d]: %w", i, ErrMissingAddress))
			continue
		case hasKey(switches, name):
			errs = append(errs, fmt.Errorf("%w: switch %q", ErrDuplicate, name))
			continue
		}
		sw := rocker.Switch{Name: name, MainAddress: *s.Address}
		switches[name] = sw
		dir.Switches = append(dir.Switches, sw)
	}

	devices := make(map[enocean.DeviceID]bool, len(f.Devices))
	for i, d := range f.Devices {
		device, err := d.device()
		if err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, err))
			continue
		}
		if devices[device.ID] {
			errs = append(errs, fmt.Errorf("%w: device %s", ErrDuplicate, device.ID.Hex()))
			continue
		}
		devices[device.ID] = true
		dir.Devices = append(dir.Devices, device)

		positions := make(map[rocker.Position]bool, len(d.Buttons))
		for j, b := range d.Buttons {
			where := fmt.Sprintf("device %s buttons[%d]", device.ID.Hex(), j)

			pos, err := rocker.ParsePosition(b.Position)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
				continue
			}
			if positions[pos] {
				errs = append(errs, fmt.Errorf("%w: %s position %s", ErrDuplicate, where, pos))
				continue
			}
			positions[pos] = true

			key := rocker.ButtonKey{Device: device.ID, Position: pos}
			dir.Buttons = append(dir.Buttons, rocker.Button{ButtonKey: key, Name: b.Name})

			if b.Toggle == nil {
				continue
			}
			cmd, err := b.Toggle.command(key, switches)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s toggle: %w", where, err))
				continue
			}
			dir.Toggles = append(dir.Toggles, cmd)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDirectory, errors.Join(errs...))
	}
	return dir, nil
}

func (d DeviceEntry) device() (enocean.Device, error) {
	id, err := enocean.ParseDeviceID(d.ID)
	if err != nil {
		return enocean.Device{}, err
	}

	eep := enocean.EEPRockerF60201
	if strings.TrimSpace(d.EEP) != "" {
		if eep, err = enocean.ParseEEP(d.EEP); err != nil {
			return enocean.Device{}, err
		}
	}
	if eep != enocean.EEPRockerF60201 && eep != enocean.EEPRockerF60202 {
		return enocean.Device{}, fmt.Errorf("%w: %s is not a rocker profile", enocean.ErrUnsupportedEEP, eep)
	}

	return enocean.Device{ID: id, EEP: eep, Name: d.Name}, nil
}

func (t ToggleEntry) command(key rocker.ButtonKey, switches map[string]rocker.Switch) (rocker.ToggleCommand, error) {
	switch n := len(t.Switches); {
	case n == 0:
		return rocker.ToggleCommand{}, errors.New("no switch configured")
	case n > 1:
		return rocker.ToggleCommand{}, fmt.Errorf("%w: %s", ErrMultipleSwitches, strings.Join(t.Switches, ", "))
	}

	name := strings.TrimSpace(t.Switches[0])
	sw, ok := switches[name]
	if !ok {
		return rocker.ToggleCommand{}, fmt.Errorf("%w: %q", ErrUnknownSwitch, name)
	}
	return rocker.ToggleCommand{Button: key, Name: t.Name, Switch: sw}, nil
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
