package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is matched by every *TimeoutError through errors.Is.
	ErrTimeout = errors.New("transport: timeout")

	// ErrConnClosed indicates an operation on a connection that has already been closed.
	ErrConnClosed = errors.New("transport: connection closed")
)

// ConnectError reports a failure to establish the stream connection,
// for example an unreachable address or a refused connection.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports that a deadline elapsed before an operation completed.
//
// N is the number of bytes transferred before the deadline hit. A TimeoutError with N > 0
// on a framed stream means the framing is no longer aligned.
type TimeoutError struct {
	Op  string
	N   int
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s timeout after %d bytes", e.Op, e.N)
	}

	return fmt.Sprintf("transport: %s timeout after %d bytes: %v", e.Op, e.N, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is reports ErrTimeout as a match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Timeout implements the net.Error style timeout check.
func (e *TimeoutError) Timeout() bool { return true }

// IOError reports any stream failure other than a timeout: short writes, resets, EOF.
type IOError struct {
	Op  string
	N   int
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport: %s failed after %d bytes: %v", e.Op, e.N, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsIOError reports whether err is, or wraps, an IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
