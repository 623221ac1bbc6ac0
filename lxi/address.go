package lxi

import (
	"fmt"
	"strings"
)

// DefaultSubAddress is the device name of an instrument's primary interface.
const DefaultSubAddress = "inst0"

// Address identifies one device of an instrument.
type Address struct {
	// Host is a host name or a literal IP address.
	Host string
	// SubAddress is the VXI-11 device name, such as "inst0" or "gpib0,5".
	SubAddress string
}

// String returns the address in VISA resource form.
func (a Address) String() string {
	return fmt.Sprintf("TCPIP::%s::%s::INSTR", a.Host, a.SubAddress)
}

// ParseResource parses a VISA style VXI-11 resource string:
//
//	TCPIP[board]::host[::device][::INSTR]
//
// The device defaults to inst0. HiSLIP and raw socket resources are rejected.
func ParseResource(resource string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(resource), "::")
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}

	board := strings.ToUpper(parts[0])
	if !strings.HasPrefix(board, "TCPIP") || strings.TrimLeft(board[len("TCPIP"):], "0123456789") != "" {
		return Address{}, fmt.Errorf("%w: %q is not a TCPIP resource", ErrInvalidResource, resource)
	}

	parts = parts[1:]
	switch last := strings.ToUpper(parts[len(parts)-1]); last {
	case "INSTR":
		parts = parts[:len(parts)-1]
	case "SOCKET":
		return Address{}, fmt.Errorf("%w: %q is a raw socket resource", ErrInvalidResource, resource)
	}

	addr := Address{SubAddress: DefaultSubAddress}
	switch len(parts) {
	case 1:
		addr.Host = parts[0]
	case 2:
		addr.Host = parts[0]
		addr.SubAddress = parts[1]
	default:
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}

	if addr.Host == "" || addr.SubAddress == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	if strings.HasPrefix(strings.ToLower(addr.SubAddress), "hislip") {
		return Address{}, fmt.Errorf("%w: %q is a HiSLIP resource", ErrInvalidResource, resource)
	}

	return addr, nil
}
