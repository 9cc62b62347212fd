package enocean

import (
	"encoding/binary"
	"fmt"
)

// Radio telegram organisation (RORG) values.
const (
	RORGRPS byte = 0xF6 // Repeated switch communication
	RORG1BS byte = 0xD5 // 1 byte communication
	RORG4BS byte = 0xA5 // 4 byte communication
	RORGVLD byte = 0xD2 // Variable length data
)

// RPS status byte bits.
const (
	statusT21 byte = 0x20
	statusNU  byte = 0x10
)

// minERP1Len is RORG (1) + at least one data byte + sender ID (4) + status (1).
const minERP1Len = 7

// optionalERP1Len is SubTelNum (1) + destination ID (4) + dBm (1) + security level (1).
const optionalERP1Len = 7

// RadioTelegram is a received RADIO_ERP1 telegram.
type RadioTelegram struct {
	RORG   byte
	Data   []byte // user data between RORG and sender ID
	Sender DeviceID
	Status byte

	// Optional data; zero when the gateway omits it.
	SubTelegrams byte
	Destination  DeviceID
	DBm          int // signal strength, negative
}

// T21 reports the T21 status flag (set for PTM2xx modules).
func (t RadioTelegram) T21() bool {
	return t.Status&statusT21 != 0
}

// NU reports the NU status flag: set for N-messages, clear for U-messages.
func (t RadioTelegram) NU() bool {
	return t.Status&statusNU != 0
}

// ParseRadioTelegram decodes a RADIO_ERP1 packet.
func ParseRadioTelegram(p Packet) (RadioTelegram, error) {
	if p.Type != PacketTypeRadioERP1 {
		return RadioTelegram{}, fmt.Errorf("%w: packet type %s", ErrInvalidTelegram, p.Type)
	}
	if len(p.Data) < minERP1Len {
		return RadioTelegram{}, fmt.Errorf("%w: %d data bytes", ErrInvalidTelegram, len(p.Data))
	}

	n := len(p.Data)
	t := RadioTelegram{
		RORG:   p.Data[0],
		Data:   append([]byte(nil), p.Data[1:n-5]...),
		Sender: DeviceID(binary.BigEndian.Uint32(p.Data[n-5 : n-1])),
		Status: p.Data[n-1],
	}

	if len(p.Optional) >= optionalERP1Len {
		t.SubTelegrams = p.Optional[0]
		t.Destination = DeviceID(binary.BigEndian.Uint32(p.Optional[1:5]))
		t.DBm = -int(p.Optional[5])
	}

	return t, nil
}

// Packet encodes the telegram as a RADIO_ERP1 packet addressed to broadcast.
func (t RadioTelegram) Packet() Packet {
	data := make([]byte, 0, len(t.Data)+6)
	data = append(data, t.RORG)
	data = append(data, t.Data...)
	data = binary.BigEndian.AppendUint32(data, uint32(t.Sender))
	data = append(data, t.Status)

	dest := t.Destination
	if dest == 0 {
		dest = 0xFFFFFFFF
	}
	opt := make([]byte, 0, optionalERP1Len)
	opt = append(opt, t.SubTelegrams)
	opt = binary.BigEndian.AppendUint32(opt, uint32(dest))
	opt = append(opt, byte(-t.DBm), 0x00) //nolint:gosec // dBm fits a byte

	return Packet{Type: PacketTypeRadioERP1, Data: data, Optional: opt}
}
