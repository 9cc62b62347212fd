package knx

import "errors"

// Domain errors for the KNX package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to knxd.
	ErrNotConnected = errors.New("knx: not connected to knxd")

	// ErrConnectionFailed is returned when the connection to knxd fails.
	ErrConnectionFailed = errors.New("knx: connection to knxd failed")

	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")

	// ErrTelegramFailed is returned when sending a telegram to the bus fails.
	ErrTelegramFailed = errors.New("knx: telegram send failed")

	// ErrTimeout is returned when no response arrives before the deadline.
	ErrTimeout = errors.New("knx: operation timed out")

	// ErrInvalidTelegram is returned when a received telegram is malformed.
	ErrInvalidTelegram = errors.New("knx: invalid telegram")

	// ErrProtocolDesync is returned when the knxd stream can no longer be
	// framed and the connection must be re-established.
	ErrProtocolDesync = errors.New("knx: protocol desync")
)
