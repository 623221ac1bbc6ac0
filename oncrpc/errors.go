package oncrpc

import (
	"errors"
	"fmt"
)

var (
	// ErrClientBroken is returned by calls on a Client whose stream lost synchronization.
	ErrClientBroken = errors.New("oncrpc: stream is not synchronized, client unusable")

	// ErrRecordTooLarge indicates an incoming record that exceeds the configured maximum.
	ErrRecordTooLarge = errors.New("oncrpc: record exceeds maximum size")

	// ErrProgramNotRegistered is returned by GetPort when the port mapper has no mapping.
	ErrProgramNotRegistered = errors.New("oncrpc: program not registered with port mapper")
)

// ErrorKind classifies an RPCError.
type ErrorKind int

const (
	// MalformedReply indicates that a reply record could not be decoded.
	MalformedReply ErrorKind = iota + 1
	// ProcedureMismatch indicates a reply that does not belong to the outstanding call.
	// The stream is unsynchronized and must not be reused.
	ProcedureMismatch
	// RemoteFailure indicates that the server rejected or failed the call.
	RemoteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedReply:
		return "malformed reply"
	case ProcedureMismatch:
		return "procedure mismatch"
	case RemoteFailure:
		return "remote failure"
	default:
		return "unknown"
	}
}

// RPCError is returned by Client.Call for protocol-level failures.
type RPCError struct {
	Kind ErrorKind

	// Code holds the accept_stat of an accepted reply, or the reject_stat when Denied is set.
	Code   uint32
	Denied bool

	// XID is the transaction id received; ExpectedXID the one of the outstanding call.
	XID         uint32
	ExpectedXID uint32

	Err error
}

func (e *RPCError) Error() string {
	switch e.Kind {
	case ProcedureMismatch:
		return fmt.Sprintf("oncrpc: %s: reply xid 0x%08x, expected 0x%08x", e.Kind, e.XID, e.ExpectedXID)
	case RemoteFailure:
		if e.Denied {
			return fmt.Sprintf("oncrpc: %s: call denied: %s", e.Kind, RejectStat(e.Code))
		}
		return fmt.Sprintf("oncrpc: %s: %s", e.Kind, AcceptStat(e.Code))
	default:
		if e.Err != nil {
			return fmt.Sprintf("oncrpc: %s: %v", e.Kind, e.Err)
		}
		return "oncrpc: " + e.Kind.String()
	}
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsFatal reports whether the error leaves the stream unsynchronized.
func (e *RPCError) IsFatal() bool {
	return e.Kind == MalformedReply || e.Kind == ProcedureMismatch
}

// IsRPCError reports whether err wraps an RPCError of the given kind.
func IsRPCError(err error, kind ErrorKind) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Kind == kind
}
