package vxi11

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferTooSmall indicates a response longer than the receive capacity. No partial
	// response is returned.
	ErrBufferTooSmall = errors.New("vxi11: response exceeds receive buffer capacity")

	// ErrNotConnected indicates an operation on a session that is not linked.
	ErrNotConnected = errors.New("vxi11: session is not linked")

	// ErrAlreadyConnected indicates a link attempt on a session that is linked or closed.
	ErrAlreadyConnected = errors.New("vxi11: session is already linked or closed")

	// ErrAlreadyClosed reports teardown of a link that is already gone. Callers treat it as a no-op.
	ErrAlreadyClosed = errors.New("vxi11: link already closed")

	// ErrBudgetExhausted is wrapped by the timeout error of an operation whose deadline
	// elapsed between two chunks.
	ErrBudgetExhausted = errors.New("vxi11: timeout budget exhausted")

	// ErrWriteStalled indicates a device_write acknowledged with zero bytes for a non-empty chunk.
	ErrWriteStalled = errors.New("vxi11: instrument accepted no data")

	// ErrSessionConfigNil indicates that a nil SessionConfig was provided.
	ErrSessionConfigNil = errors.New("vxi11: session config is nil")
)

// LinkError reports a create_link call rejected by the instrument.
type LinkError struct {
	Device string
	Code   ErrorCode
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("vxi11: create link to %q: %s (%d)", e.Device, e.Code, uint32(e.Code))
}

// DeviceError reports a non-zero error code in the reply of a core or abort channel call.
type DeviceError struct {
	Op   string
	Code ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("vxi11: %s: %s (%d)", e.Op, e.Code, uint32(e.Code))
}

// SendError wraps a failed Write. Written is the number of payload bytes the instrument
// acknowledged before the failure.
type SendError struct {
	Written int
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("vxi11: send failed after %d bytes: %v", e.Written, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError wraps a failed Read.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("vxi11: receive failed: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err wraps a DeviceError or LinkError with the given code.
func IsDeviceError(err error, code ErrorCode) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Code == code
	}

	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Code == code
	}

	return false
}
