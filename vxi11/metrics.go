package vxi11

import "sync/atomic"

// SessionMetrics contains atomic metrics for a session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// WriteCallCount indicates the number of device_write calls sent.
	WriteCallCount atomic.Uint64
	// WriteByteCount indicates the number of payload bytes acknowledged by the instrument.
	WriteByteCount atomic.Uint64
	// WriteErrCount indicates the number of failed writes.
	WriteErrCount atomic.Uint64

	// ReadCallCount indicates the number of device_read calls sent.
	ReadCallCount atomic.Uint64
	// ReadByteCount indicates the number of response bytes received.
	ReadByteCount atomic.Uint64
	// ReadErrCount indicates the number of failed reads.
	ReadErrCount atomic.Uint64

	// ForcedCloseCount indicates how many times the session was closed because its stream
	// lost synchronization.
	ForcedCloseCount atomic.Uint32
}

func (m *SessionMetrics) incWriteCallCount() {
	m.WriteCallCount.Add(1)
}

func (m *SessionMetrics) addWriteByteCount(n int) {
	m.WriteByteCount.Add(uint64(n)) //nolint:gosec
}

func (m *SessionMetrics) incWriteErrCount() {
	m.WriteErrCount.Add(1)
}

func (m *SessionMetrics) incReadCallCount() {
	m.ReadCallCount.Add(1)
}

func (m *SessionMetrics) addReadByteCount(n int) {
	m.ReadByteCount.Add(uint64(n)) //nolint:gosec
}

func (m *SessionMetrics) incReadErrCount() {
	m.ReadErrCount.Add(1)
}

func (m *SessionMetrics) incForcedCloseCount() {
	m.ForcedCloseCount.Add(1)
}
