package enocean

import (
	"fmt"
	"strings"
)

// RockerButtons is the number of buttons on a two-rocker switch.
const RockerButtons = 4

// Attribute is one decoded value from a telegram.
//
// The concrete types are RockerAction and ButtonCount.
type Attribute interface {
	// Name identifies the attribute kind in logs.
	Name() string

	// Value is a loggable form of the decoded value.
	Value() any
}

// RockerAction reports which rocker buttons are actuated, indexed by
// hardware button number (AI=0, AO=1, BI=2, BO=3).
type RockerAction struct {
	Buttons [RockerButtons]bool
}

// Name implements Attribute.
func (RockerAction) Name() string { return "RockerAction" }

// Value implements Attribute.
func (a RockerAction) Value() any { return a.String() }

// Button reports whether the button at index is actuated.
// Indexes outside the rocker are never pressed.
func (a RockerAction) Button(index int) bool {
	if index < 0 || index >= RockerButtons {
		return false
	}
	return a.Buttons[index]
}

// String lists the pressed button indexes, e.g. "[0 3]".
func (a RockerAction) String() string {
	var pressed []string
	for i, p := range a.Buttons {
		if p {
			pressed = append(pressed, fmt.Sprint(i))
		}
	}
	return "[" + strings.Join(pressed, " ") + "]"
}

// ButtonCount reports how many buttons are held. A count of 0 is sent when
// the last button is released.
type ButtonCount struct {
	Count int
}

// Name implements Attribute.
func (ButtonCount) Name() string { return "ButtonCount" }

// Value implements Attribute.
func (c ButtonCount) Value() any { return c.Count }

// Decode turns a radio telegram into attributes according to the device profile.
func Decode(eep EEP, t RadioTelegram) ([]Attribute, error) {
	if err := checkSupported(eep); err != nil {
		return nil, err
	}
	if t.RORG != eep.RORG {
		return nil, fmt.Errorf("%w: telegram RORG %02X for profile %s", ErrInvalidTelegram, t.RORG, eep)
	}
	return decodeRocker(t)
}

// checkSupported returns ErrUnsupportedEEP for profiles without a decoder.
func checkSupported(eep EEP) error {
	switch eep {
	case EEPRockerF60201, EEPRockerF60202:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEEP, eep)
	}
}

// decodeRocker decodes F6-02-xx.
//
// N-message (NU=1), DB0:
//
//	bit 7..5  R1  first action (button index)
//	bit 4     EB  energy bow, 1 = pressed
//	bit 3..1  R2  second action
//	bit 0     SA  second action valid
//
// U-message (NU=0), DB0:
//
//	bit 7..5  number of buttons held (0 = none, 3 = 3 or 4)
//	bit 4     EB
func decodeRocker(t RadioTelegram) ([]Attribute, error) {
	if len(t.Data) != 1 {
		return nil, fmt.Errorf("%w: RPS telegram with %d data bytes", ErrInvalidTelegram, len(t.Data))
	}
	db0 := t.Data[0]

	if !t.NU() {
		return []Attribute{ButtonCount{Count: int(db0 >> 5)}}, nil
	}

	var action RockerAction
	if db0&0x10 != 0 {
		if r1 := int(db0 >> 5); r1 < RockerButtons {
			action.Buttons[r1] = true
		}
		if db0&0x01 != 0 {
			if r2 := int(db0>>1) & 0x07; r2 < RockerButtons {
				action.Buttons[r2] = true
			}
		}
	}

	return []Attribute{action}, nil
}
