package enocean

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// ESP3 framing constants.
const (
	// SyncByte starts every ESP3 packet.
	SyncByte byte = 0x55

	// headerLen is data length (2) + optional length (1) + packet type (1).
	headerLen = 4

	// frameOverhead is sync + header + CRC8H + CRC8D.
	frameOverhead = 1 + headerLen + 1 + 1
)

// PacketType identifies the content of an ESP3 packet.
type PacketType byte

// ESP3 packet types.
const (
	PacketTypeRadioERP1     PacketType = 0x01
	PacketTypeResponse      PacketType = 0x02
	PacketTypeRadioSubTel   PacketType = 0x03
	PacketTypeEvent         PacketType = 0x04
	PacketTypeCommonCommand PacketType = 0x05
	PacketTypeSmartAckCmd   PacketType = 0x06
	PacketTypeRemoteManCmd  PacketType = 0x07
	PacketTypeRadioMessage  PacketType = 0x09
	PacketTypeRadioERP2     PacketType = 0x0A
)

// String returns a short name for the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketTypeRadioERP1:
		return "RADIO_ERP1"
	case PacketTypeResponse:
		return "RESPONSE"
	case PacketTypeRadioSubTel:
		return "RADIO_SUB_TEL"
	case PacketTypeEvent:
		return "EVENT"
	case PacketTypeCommonCommand:
		return "COMMON_COMMAND"
	case PacketTypeSmartAckCmd:
		return "SMART_ACK_COMMAND"
	case PacketTypeRemoteManCmd:
		return "REMOTE_MAN_COMMAND"
	case PacketTypeRadioMessage:
		return "RADIO_MESSAGE"
	case PacketTypeRadioERP2:
		return "RADIO_ERP2"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// Packet is a decoded ESP3 packet.
type Packet struct {
	Type     PacketType
	Data     []byte
	Optional []byte
}

// Encode serialises the packet with sync byte and both checksums.
func (p Packet) Encode() []byte {
	buf := make([]byte, 0, frameOverhead+len(p.Data)+len(p.Optional))

	header := make([]byte, headerLen)
	binary.BigEndian.PutUint16(header[0:2], uint16(len(p.Data))) //nolint:gosec // ESP3 data length is 16-bit
	header[2] = byte(len(p.Optional))                              //nolint:gosec // ESP3 optional length is 8-bit
	header[3] = byte(p.Type)

	buf = append(buf, SyncByte)
	buf = append(buf, header...)
	buf = append(buf, crc8(header))
	buf = append(buf, p.Data...)
	buf = append(buf, p.Optional...)
	buf = append(buf, crc8(buf[1+headerLen+1:]))

	return buf
}

// ReadPacket reads the next ESP3 packet from r.
//
// Bytes before a sync byte are discarded. A sync byte whose header fails
// CRC8H is treated as noise and scanning resumes at the following byte, so a
// stray 0x55 in garbage never swallows a real frame. A data checksum failure
// consumes the frame and returns ErrCRCMismatch; the caller may keep reading.
//
// Parameters:
//   - r: Buffered serial stream
//
// Returns:
//   - Packet: Type, data and optional data of one verified frame
//   - error: ErrCRCMismatch for a bad data checksum, or the read error
func ReadPacket(r *bufio.Reader) (Packet, error) {
	for {
		if err := skipToSync(r); err != nil {
			return Packet{}, err
		}

		head, err := r.Peek(1 + headerLen + 1)
		if err != nil {
			return Packet{}, err
		}
		header := head[1 : 1+headerLen]
		if crc8(header) != head[1+headerLen] {
			if _, err := r.Discard(1); err != nil {
				return Packet{}, err
			}
			continue
		}

		dataLen := int(binary.BigEndian.Uint16(header[0:2]))
		optLen := int(header[2])
		ptype := PacketType(header[3])

		if _, err := r.Discard(1 + headerLen + 1); err != nil {
			return Packet{}, err
		}

		body := make([]byte, dataLen+optLen+1)
		if _, err := io.ReadFull(r, body); err != nil {
			return Packet{}, fmt.Errorf("reading packet body: %w", err)
		}

		if crc8(body[:dataLen+optLen]) != body[dataLen+optLen] {
			return Packet{}, fmt.Errorf("%w: data of %s packet", ErrCRCMismatch, ptype)
		}
		if dataLen == 0 {
			return Packet{}, fmt.Errorf("%w: empty data", ErrInvalidPacket)
		}

		return Packet{
			Type:     ptype,
			Data:     body[:dataLen],
			Optional: body[dataLen : dataLen+optLen],
		}, nil
	}
}

// skipToSync discards bytes until the next byte is SyncByte.
func skipToSync(r *bufio.Reader) error {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return err
		}
		if b[0] == SyncByte {
			return nil
		}
		if _, err := r.Discard(1); err != nil {
			return err
		}
	}
}

// crc8Table is the lookup table for CRC-8 with polynomial x^8+x^2+x+1 (0x07).
var crc8Table = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i) //nolint:gosec // i < 256
		for range 8 {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc8(data []byte) byte {
	var c byte
	for _, b := range data {
		c = crc8Table[c^b]
	}
	return c
}
