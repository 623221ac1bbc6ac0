package lxi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	tests := []struct {
		resource string
		want     Address
		wantErr  bool
	}{
		{resource: "TCPIP::192.168.1.10::INSTR", want: Address{Host: "192.168.1.10", SubAddress: "inst0"}},
		{resource: "TCPIP0::scope.local::inst1::INSTR", want: Address{Host: "scope.local", SubAddress: "inst1"}},
		{resource: "tcpip::10.0.0.2::gpib0,5", want: Address{Host: "10.0.0.2", SubAddress: "gpib0,5"}},
		{resource: "TCPIP::10.0.0.2", want: Address{Host: "10.0.0.2", SubAddress: "inst0"}},
		{resource: "TCPIP::10.0.0.2::hislip0::INSTR", wantErr: true},
		{resource: "TCPIP::10.0.0.2::5025::SOCKET", wantErr: true},
		{resource: "GPIB0::5::INSTR", wantErr: true},
		{resource: "TCPIPX::10.0.0.2::INSTR", wantErr: true},
		{resource: "TCPIP::::INSTR", wantErr: true},
		{resource: "10.0.0.2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			got, err := ParseResource(tt.resource)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidResource)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAddress_String(t *testing.T) {
	addr := Address{Host: "192.168.1.10", SubAddress: "inst0"}
	require.Equal(t, "TCPIP::192.168.1.10::inst0::INSTR", addr.String())

	parsed, err := ParseResource(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}
