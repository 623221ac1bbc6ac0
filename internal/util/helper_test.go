package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloneSlice(t *testing.T) {
	src := []byte("ACME")
	clone := CloneSlice(src, 0)
	require.Equal(t, src, clone)

	clone[0] = 'X'
	require.Equal(t, byte('A'), src[0])

	padded := CloneSlice(src, 6)
	require.Equal(t, []byte{'A', 'C', 'M', 'E', 0, 0}, padded)
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		n, d, expected int
	}{
		{n: 0, d: 32768, expected: 0},
		{n: 1, d: 32768, expected: 1},
		{n: 32768, d: 32768, expected: 1},
		{n: 32769, d: 32768, expected: 2},
		{n: 40000, d: 32768, expected: 2},
		{n: 100000, d: 1000, expected: 100},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, CeilDiv(tt.n, tt.d), "n=%d d=%d", tt.n, tt.d)
	}
}

func TestRemainingMillis(t *testing.T) {
	require := require.New(t)

	require.Equal(uint32(math.MaxUint32), RemainingMillis(time.Time{}))
	require.Zero(RemainingMillis(time.Now().Add(-time.Second)))

	ms := RemainingMillis(time.Now().Add(1500 * time.Millisecond))
	require.LessOrEqual(ms, uint32(1500))
	require.Greater(ms, uint32(1400))

	require.Equal(uint32(1), RemainingMillis(time.Now().Add(100*time.Microsecond)))
}

func TestDeadlineFromMillis(t *testing.T) {
	now := time.Now()

	d := DeadlineFromMillis(1000, time.Minute)
	require.WithinDuration(t, now.Add(time.Second), d, 50*time.Millisecond)

	d = DeadlineFromMillis(0, 2*time.Second)
	require.WithinDuration(t, now.Add(2*time.Second), d, 50*time.Millisecond)
}
