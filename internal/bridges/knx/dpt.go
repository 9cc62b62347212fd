package knx

import "fmt"

// DPT represents a KNX Datapoint Type identifier ("major.minor").
type DPT string

// 1-bit datapoint types. Toggle targets are always one of these.
const (
	DPTSwitch DPT = "1.001" // 0=Off, 1=On
	DPTBool   DPT = "1.002" // 0=False, 1=True
	DPTEnable DPT = "1.003" // 0=Disable, 1=Enable
)

// EncodeDPT1 encodes a boolean value to 1-bit KNX format.
//
// Parameters:
//   - value: Boolean value to encode
//
// Returns:
//   - []byte: Single byte with LSB set to 0 or 1
func EncodeDPT1(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeDPT1 decodes a 1-bit KNX value. Only bit 0 is significant.
//
// Parameters:
//   - data: KNX data (at least 1 byte)
//
// Returns:
//   - bool: Decoded value
//   - error: ErrDecodingFailed if data is empty
func DecodeDPT1(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: DPT1 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return (data[0] & 0x01) != 0, nil
}
