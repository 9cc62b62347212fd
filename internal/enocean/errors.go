package enocean

import "errors"

// Domain errors for the EnOcean link package.
var (
	// ErrInvalidPacket is returned when an ESP3 frame is structurally invalid.
	ErrInvalidPacket = errors.New("enocean: invalid ESP3 packet")

	// ErrCRCMismatch is returned when a header or data checksum does not match.
	ErrCRCMismatch = errors.New("enocean: CRC mismatch")

	// ErrInvalidTelegram is returned when a radio telegram is too short or
	// carries an unexpected RORG.
	ErrInvalidTelegram = errors.New("enocean: invalid radio telegram")

	// ErrUnsupportedEEP is returned when no decoder exists for a device profile.
	ErrUnsupportedEEP = errors.New("enocean: unsupported EEP")

	// ErrInvalidDeviceID is returned when a device identifier string cannot be parsed.
	ErrInvalidDeviceID = errors.New("enocean: invalid device ID")

	// ErrLinkClosed is returned when an operation is attempted on a closed link.
	ErrLinkClosed = errors.New("enocean: link closed")
)
