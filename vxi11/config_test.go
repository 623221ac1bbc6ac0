package vxi11

import (
	"testing"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/stretchr/testify/require"
)

func TestNewSessionConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewSessionConfig()
	require.NoError(err)
	require.Zero(cfg.ClientID())
	require.False(cfg.LockDevice())
	require.False(cfg.WaitLock())
	require.Zero(cfg.Port())
	require.Equal(111, cfg.PortmapperPort())
	require.Equal(5*time.Second, cfg.DefaultTimeout())
	require.NotNil(cfg.Logger())

	_, set := cfg.TermChar()
	require.False(set)
}

func TestNewSessionConfig_Options(t *testing.T) {
	require := require.New(t)

	l := logger.NewMockLogger()
	cfg, err := NewSessionConfig(
		WithClientID(42),
		WithLockDevice(true, 2*time.Second),
		WithWaitLock(true),
		WithTermChar('\n'),
		WithPort(1024),
		WithPortmapperPort(10111),
		WithDefaultTimeout(100*time.Millisecond),
		WithMaxRecordSize(1<<20),
		WithLogger(l),
		nil,
	)
	require.NoError(err)

	require.Equal(int32(42), cfg.ClientID())
	require.True(cfg.LockDevice())
	require.Equal(2*time.Second, cfg.LockTimeout())
	require.True(cfg.WaitLock())
	require.Equal(1024, cfg.Port())
	require.Equal(10111, cfg.PortmapperPort())
	require.Equal(100*time.Millisecond, cfg.DefaultTimeout())
	require.Equal(1<<20, cfg.maxRecordSize)
	require.Same(l, cfg.Logger())

	c, set := cfg.TermChar()
	require.True(set)
	require.Equal(byte('\n'), c)
}

func TestNewSessionConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  SessionOption
	}{
		{"Port Too Large", WithPort(65536)},
		{"Negative Port", WithPort(-1)},
		{"Portmapper Port Zero", WithPortmapperPort(0)},
		{"Lock Timeout Negative", WithLockDevice(true, -time.Second)},
		{"Lock Timeout Too Long", WithLockDevice(true, 2*time.Hour)},
		{"Default Timeout Too Short", WithDefaultTimeout(time.Millisecond)},
		{"Default Timeout Too Long", WithDefaultTimeout(time.Hour)},
		{"Record Size Too Small", WithMaxRecordSize(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionConfig(tt.opt)
			require.Error(t, err)
		})
	}

	require.ErrorIs(t, WithPort(1).apply(nil), ErrSessionConfigNil)
}

func TestAtomicState(t *testing.T) {
	require := require.New(t)

	var st atomicState
	require.True(st.IsUnconnected())
	require.Equal("Unconnected", st.String())

	require.True(st.ToLinked())
	require.True(st.IsLinked())
	require.False(st.ToLinked())

	require.True(st.ToClosed())
	require.True(st.IsClosed())
	require.False(st.ToClosed())
	require.False(st.ToLinked())
	require.Equal("Closed", st.Get().String())
	require.Equal("Unknown", State(9).String())
}
