package models

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrInvalidMAC = errors.New("invalid MAC address")

// MACAddress is a 48-bit IEEE 802 hardware address. It is comparable and is
// used directly as a hash key by the registry indices.
type MACAddress [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MACAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC accepts the colon, dash and dotted forms understood by
// net.ParseMAC, but only 48-bit addresses.
func ParseMAC(s string) (MACAddress, error) {
	var mac MACAddress

	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return mac, fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}

	if len(hw) != len(mac) {
		return mac, fmt.Errorf("%w: %q is not a 48-bit address", ErrInvalidMAC, s)
	}

	copy(mac[:], hw)

	return mac, nil
}

// MustParseMAC is ParseMAC for constants and tests.
func MustParseMAC(s string) MACAddress {
	mac, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return mac
}

// String renders the canonical upper-case colon form, e.g. AA:BB:CC:00:01:02.
func (m MACAddress) String() string {
	return strings.ToUpper(net.HardwareAddr(m[:]).String())
}

func (m MACAddress) IsZero() bool {
	return m == MACAddress{}
}

func (m MACAddress) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast reports whether the group bit is set.
func (m MACAddress) IsMulticast() bool {
	return m[0]&0x01 != 0
}

func (m MACAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MACAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}
