package directory

import "errors"

// Domain errors for the directory package.
var (
	// ErrInvalidDirectory wraps every validation failure of a directory file.
	ErrInvalidDirectory = errors.New("directory: invalid")

	// ErrMultipleSwitches is returned when a toggle command names more than
	// one switch. Toggle commands invert exactly one bus point.
	ErrMultipleSwitches = errors.New("directory: toggle command has more than one switch")

	// ErrUnknownSwitch is returned when a toggle command references a switch
	// that is not defined.
	ErrUnknownSwitch = errors.New("directory: unknown switch")

	// ErrMissingAddress is returned when a switch has no group address.
	ErrMissingAddress = errors.New("directory: switch address is required")

	// ErrDuplicate is returned for repeated device IDs, button positions or
	// switch names.
	ErrDuplicate = errors.New("directory: duplicate entry")

	// ErrButtonNotFound is returned when saving a button that was never imported.
	ErrButtonNotFound = errors.New("directory: button not found")
)
