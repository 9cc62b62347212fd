package enocean

import (
	"errors"
	"testing"
)

func TestDeviceID_Hex(t *testing.T) {
	tests := []struct {
		id   DeviceID
		want string
	}{
		{0x0029E5B1, "0029E5B1"},
		{0x00A1B2C3, "00A1B2C3"},
		{0xFFFFFFFF, "FFFFFFFF"},
		{0, "00000000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.id.Hex(); got != tt.want {
				t.Errorf("Hex() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		input   string
		want    DeviceID
		wantErr bool
	}{
		{input: "0029E5B1", want: 0x0029E5B1},
		{input: "0029e5b1", want: 0x0029E5B1},
		{input: "0x0029E5B1", want: 0x0029E5B1},
		{input: "A1B2C3", want: 0x00A1B2C3},
		{input: " FFFFFFFF ", want: 0xFFFFFFFF},
		{input: "", wantErr: true},
		{input: "0x", wantErr: true},
		{input: "123456789", wantErr: true},
		{input: "XYZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDeviceID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDeviceID) {
					t.Errorf("ParseDeviceID(%q) error = %v, want ErrInvalidDeviceID", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeviceID(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDeviceID(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEEP(t *testing.T) {
	got, err := ParseEEP("f6-02-01")
	if err != nil {
		t.Fatalf("ParseEEP() error = %v", err)
	}
	if got != EEPRockerF60201 {
		t.Errorf("ParseEEP() = %s, want F6-02-01", got)
	}
	if got.String() != "F6-02-01" {
		t.Errorf("String() = %q, want F6-02-01", got.String())
	}

	for _, bad := range []string{"", "F6-02", "F6-02-1", "G6-02-01", "F6-02-01-00"} {
		if _, err := ParseEEP(bad); !errors.Is(err, ErrUnsupportedEEP) {
			t.Errorf("ParseEEP(%q) error = %v, want ErrUnsupportedEEP", bad, err)
		}
	}
}
