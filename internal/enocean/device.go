package enocean

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceID is the 32-bit EnOcean sender ID of a radio module.
type DeviceID uint32

// Hex returns the canonical form: eight upper-case hex digits, no prefix.
func (id DeviceID) Hex() string {
	return fmt.Sprintf("%08X", uint32(id))
}

// String implements fmt.Stringer.
func (id DeviceID) String() string {
	return id.Hex()
}

// ParseDeviceID parses a hex device identifier.
// Case is ignored and a leading "0x" is accepted, so "0x0029e5b1" and
// "0029E5B1" are the same device. Short forms such as "A1B2C3" are zero-padded.
func ParseDeviceID(s string) (DeviceID, error) {
	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if h == "" || len(h) > 8 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}
	return DeviceID(v), nil
}

// EEP is an EnOcean Equipment Profile: RORG-FUNC-TYPE.
type EEP struct {
	RORG byte
	Func byte
	Type byte
}

// Common profiles.
var (
	// EEPRockerF60201 is a light and blind control rocker, application style 1.
	EEPRockerF60201 = EEP{RORG: RORGRPS, Func: 0x02, Type: 0x01}

	// EEPRockerF60202 is a light and blind control rocker, application style 2.
	EEPRockerF60202 = EEP{RORG: RORGRPS, Func: 0x02, Type: 0x02}
)

// String renders the profile as "F6-02-01".
func (e EEP) String() string {
	return fmt.Sprintf("%02X-%02X-%02X", e.RORG, e.Func, e.Type)
}

// ParseEEP parses "F6-02-01" (case-insensitive).
func ParseEEP(s string) (EEP, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return EEP{}, fmt.Errorf("%w: %q", ErrUnsupportedEEP, s)
	}

	var out [3]byte
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return EEP{}, fmt.Errorf("%w: %q", ErrUnsupportedEEP, s)
		}
		out[i] = byte(v)
	}
	return EEP{RORG: out[0], Func: out[1], Type: out[2]}, nil
}

// Device is a registered radio module.
type Device struct {
	ID   DeviceID
	EEP  EEP
	Name string
}
