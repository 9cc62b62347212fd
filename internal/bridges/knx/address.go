package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupAddress is a KNX group address in 3-level form Main/Middle/Sub
// (5, 3 and 8 bits).
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// Group address limits per KNX specification.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	gaLevelCount = 3

	gaMainMask   = 0x1F
	gaMiddleMask = 0x07
	gaSubMask    = 0xFF
)

// ParseGroupAddress parses a 3-level group address such as "1/2/3".
//
// Parameters:
//   - s: Group address string; surrounding whitespace is ignored
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: ErrInvalidGroupAddress naming the level that is out of range
//
// Example:
//
//	ga, err := ParseGroupAddress("1/0/7")
//	if err != nil {
//	    return err
//	}
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != gaLevelCount {
		return GroupAddress{}, fmt.Errorf("%w: expected main/middle/sub, got %q", ErrInvalidGroupAddress, s)
	}

	limits := [gaLevelCount]uint64{maxMain, maxMiddle, maxSub}
	names := [gaLevelCount]string{"main", "middle", "sub"}

	var levels [gaLevelCount]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil || v > limits[i] {
			return GroupAddress{}, fmt.Errorf("%w: %s group must be 0-%d, got %q",
				ErrInvalidGroupAddress, names[i], limits[i], p)
		}
		levels[i] = uint8(v)
	}

	return GroupAddress{Main: levels[0], Middle: levels[1], Sub: levels[2]}, nil
}

// MustParseGroupAddress is ParseGroupAddress for constants; it panics on error.
func MustParseGroupAddress(s string) GroupAddress {
	ga, err := ParseGroupAddress(s)
	if err != nil {
		panic(err)
	}
	return ga
}

// String returns the group address in 3-level format, e.g. "1/2/3".
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// MarshalText implements encoding.TextMarshaler.
func (ga GroupAddress) MarshalText() ([]byte, error) {
	return []byte(ga.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so addresses can be
// written as "1/2/3" in YAML and JSON.
func (ga *GroupAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseGroupAddress(string(text))
	if err != nil {
		return err
	}
	*ga = parsed
	return nil
}

// ToUint16 packs the address as MMMMMSSS SSSSSSSS.
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | uint16(ga.Middle)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 unpacks a 16-bit group address.
func GroupAddressFromUint16(value uint16) GroupAddress {
	return GroupAddress{
		Main:   uint8((value >> 11) & gaMainMask),  //nolint:gosec // masked to 5 bits
		Middle: uint8((value >> 8) & gaMiddleMask), //nolint:gosec // masked to 3 bits
		Sub:    uint8(value & gaSubMask),           //nolint:gosec // masked to 8 bits
	}
}
