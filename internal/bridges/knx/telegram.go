package knx

import (
	"encoding/binary"
	"fmt"
	"time"
)

// knxd protocol message types.
const (
	// EIBOpenGroupCon opens a group socket that can send to and receive from
	// any group address. Payload: reserved(1) + write_only(1) + reserved(1).
	EIBOpenGroupCon uint16 = 0x0026

	// EIBGroupPacket carries one group telegram in either direction.
	EIBGroupPacket uint16 = 0x0027
)

// APCI (Application Protocol Control Information) codes.
const (
	APCIRead     byte = 0x00
	APCIResponse byte = 0x40
	APCIWrite    byte = 0x80
)

const (
	// knxdHeaderSize is size(2) + type(2).
	knxdHeaderSize = 4

	// groupPacketMinLen is the received GROUPCON layout: src(2) + GA(2) + TPCI(1) + APCI(1).
	groupPacketMinLen = 6
)

// Telegram is a KNX group telegram.
type Telegram struct {
	// Source is the sender's individual address ("1.1.5"); empty for outgoing telegrams.
	Source      string
	Destination GroupAddress
	APCI        byte

	// Data is the DPT-encoded payload; nil for read requests.
	Data      []byte
	Timestamp time.Time
}

// ParseTelegram parses the payload of a received EIB_GROUP_PACKET.
//
//	Byte 0-1: source individual address
//	Byte 2-3: destination group address
//	Byte 4:   TPCI
//	Byte 5:   APCI (upper 2 bits) | 6-bit data for short frames
//	Byte 6+:  data for long frames
//
// Received packets carry a source address; sent packets do not.
//
// Parameters:
//   - data: EIB_GROUP_PACKET payload, without the knxd frame header
//
// Returns:
//   - Telegram: Decoded telegram, Data copied out of the buffer
//   - error: ErrInvalidTelegram when shorter than the fixed header
func ParseTelegram(data []byte) (Telegram, error) {
	if len(data) < groupPacketMinLen {
		return Telegram{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)",
			ErrInvalidTelegram, len(data), groupPacketMinLen)
	}

	t := Telegram{
		Source:      formatIndividualAddress(binary.BigEndian.Uint16(data[0:2])),
		Destination: GroupAddressFromUint16(binary.BigEndian.Uint16(data[2:4])),
		APCI:        data[5] & 0xC0,
		Timestamp:   time.Now(),
	}

	switch {
	case len(data) > groupPacketMinLen:
		t.Data = append([]byte(nil), data[groupPacketMinLen:]...)
	case t.APCI == APCIWrite || t.APCI == APCIResponse:
		t.Data = []byte{data[5] & 0x3F}
	}

	return t, nil
}

// formatIndividualAddress renders a 16-bit individual address as "A.L.D".
func formatIndividualAddress(ia uint16) string {
	return fmt.Sprintf("%d.%d.%d", (ia>>12)&0x0F, (ia>>8)&0x0F, ia&0xFF)
}

// Encode encodes the telegram for sending on a GROUPCON socket:
// GA(2) + TPCI(1) + APCI(1) [+ data]. Values up to 0x3F travel in the
// low bits of the APCI byte.
func (t Telegram) Encode() []byte {
	short := len(t.Data) == 0 || (len(t.Data) == 1 && t.Data[0] <= 0x3F)

	size := 4
	if !short {
		size += len(t.Data)
	}

	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], t.Destination.ToUint16())
	buf[2] = 0x00
	buf[3] = t.APCI
	if short {
		if len(t.Data) == 1 {
			buf[3] |= t.Data[0] & 0x3F
		}
	} else {
		copy(buf[4:], t.Data)
	}
	return buf
}

// IsWrite returns true if this is a group write telegram.
func (t Telegram) IsWrite() bool {
	return t.APCI == APCIWrite
}

// IsRead returns true if this is a group read request.
func (t Telegram) IsRead() bool {
	return t.APCI == APCIRead
}

// IsResponse returns true if this is a group read response.
func (t Telegram) IsResponse() bool {
	return t.APCI == APCIResponse
}

// String returns a human-readable representation of the telegram.
func (t Telegram) String() string {
	apci := "UNKNOWN"
	switch t.APCI {
	case APCIRead:
		apci = "READ"
	case APCIResponse:
		apci = "RESPONSE"
	case APCIWrite:
		apci = "WRITE"
	}
	return fmt.Sprintf("Telegram{GA:%s, APCI:%s, Data:%X}", t.Destination, apci, t.Data)
}

// NewWriteTelegram creates a group write telegram.
func NewWriteTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{Destination: dest, APCI: APCIWrite, Data: data, Timestamp: time.Now()}
}

// NewReadTelegram creates a group read request.
func NewReadTelegram(dest GroupAddress) Telegram {
	return Telegram{Destination: dest, APCI: APCIRead, Timestamp: time.Now()}
}

// EncodeKNXDMessage frames a payload for the knxd socket.
// The size field counts type(2) + payload, not itself.
//
// Parameters:
//   - msgType: knxd message type, e.g. EIBGroupPacket
//   - payload: Message body; may be nil
//
// Returns:
//   - []byte: size(2) + type(2) + payload
func EncodeKNXDMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, knxdHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // bounded by small message sizes
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)
	return buf
}

// ParseKNXDMessage parses one framed knxd message.
func ParseKNXDMessage(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < knxdHeaderSize {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidTelegram, len(data))
	}

	declared := binary.BigEndian.Uint16(data[0:2])
	if int(declared) != len(data)-2 {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, expected %d)",
			ErrInvalidTelegram, declared, len(data)-2)
	}

	msgType = binary.BigEndian.Uint16(data[2:4])
	if len(data) > knxdHeaderSize {
		payload = data[knxdHeaderSize:]
	}
	return msgType, payload, nil
}
