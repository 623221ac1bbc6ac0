package vxi11

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-lxi/internal/util"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/oncrpc"
	"github.com/arloliu/go-lxi/transport"
)

// Session is a VXI-11 link to one device of an instrument.
//
// A Session owns exactly one core channel connection and the remote link created on it.
// Its methods are safe for concurrent use but are serialized: at most one operation is
// in flight at a time. Abort is the exception, it runs on the abort channel and may be
// called while a Write or Read is blocked.
type Session struct {
	mu sync.Mutex

	host   string
	device string
	cfg    *SessionConfig
	logger logger.Logger

	state atomicState

	conn *transport.Conn
	rpc  *oncrpc.Client

	linkID      atomic.Int32
	abortPort   atomic.Uint32
	maxRecvSize uint32

	metrics SessionMetrics
}

// NewSession creates an unconnected session for device on host. device is the
// instrument sub-address, such as "inst0" or "gpib0,5".
func NewSession(host string, device string, opts ...SessionOption) (*Session, error) {
	if host == "" {
		return nil, errors.New("vxi11: host is empty")
	}
	if device == "" {
		return nil, errors.New("vxi11: device name is empty")
	}
	if len(device) > maxDeviceNameLen {
		return nil, errors.New("vxi11: device name is too long")
	}

	cfg, err := NewSessionConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		host:   host,
		device: device,
		cfg:    cfg,
		logger: cfg.logger.With("host", host, "device", device),
	}, nil
}

// Host returns the instrument host.
func (s *Session) Host() string { return s.host }

// Device returns the instrument sub-address.
func (s *Session) Device() string { return s.device }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state.Get() }

// LinkID returns the link identifier assigned by the instrument. It is only meaningful while linked.
func (s *Session) LinkID() int32 { return s.linkID.Load() }

// AbortPort returns the TCP port of the abort channel advertised by the instrument.
func (s *Session) AbortPort() uint16 { return uint16(s.abortPort.Load()) } //nolint:gosec

// MaxRecvSize returns the largest write chunk the instrument accepts.
func (s *Session) MaxRecvSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maxRecvSize
}

// Metrics returns the session metrics.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// Config returns the session configuration.
func (s *Session) Config() *SessionConfig { return s.cfg }

// Link connects to the core channel and creates the remote link.
//
// A timeout of 0 or less selects the configured default timeout; the earlier of the timeout
// and the ctx deadline bounds the port mapper lookup, the dial and create_link together.
//
// Link fails with ErrAlreadyConnected unless the session is Unconnected. When Link fails the
// session stays Unconnected with no connection held, so Link may be retried.
func (s *Session) Link(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsUnconnected() {
		return ErrAlreadyConnected
	}

	deadline := s.deadline(ctx, timeout)

	port := s.cfg.port
	if port == 0 {
		remaining, err := remainingTime("portmap", deadline)
		if err != nil {
			return err
		}

		port, err = oncrpc.GetPort(ctx, s.host, s.cfg.portmapperPort, CoreProgram, CoreVersion, remaining, s.logger)
		if err != nil {
			return err
		}
	}

	remaining, err := remainingTime("dial", deadline)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, s.host, port, remaining, s.logger)
	if err != nil {
		return err
	}

	s.conn = conn
	s.rpc = oncrpc.NewClient(conn,
		oncrpc.WithLogger(s.logger),
		oncrpc.WithMaxRecordSize(s.cfg.maxRecordSize),
	)

	if err := s.createLink(deadline); err != nil {
		s.releaseTransport()
		return err
	}

	s.state.ToLinked()
	s.logger.Info("link established",
		"method", "Link",
		"port", port,
		"link_id", s.linkID.Load(),
		"max_recv_size", s.maxRecvSize,
		"abort_port", s.abortPort.Load(),
	)

	return nil
}

// Close destroys the remote link and releases the connection.
//
// The connection is released even when destroy_link fails; that failure is logged and
// returned as a report, the session is Closed either way. Closing an unconnected session
// moves it to Closed. Closing a session without a link, unconnected or already closed,
// returns ErrAlreadyClosed.
func (s *Session) Close(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Get() {
	case ClosedState:
		return ErrAlreadyClosed
	case UnconnectedState:
		// no link was ever created
		s.state.ToClosed()
		return ErrAlreadyClosed
	}

	s.state.ToClosed()

	deadline := s.deadline(context.Background(), timeout)
	err := s.destroyLink(deadline)
	s.releaseTransport()

	s.logger.Info("link closed", "method", "Close", "link_id", s.linkID.Load())

	return err
}

// call invokes a core channel procedure and decodes its result.
//
// A failure that leaves the RPC stream unsynchronized closes a linked session.
func (s *Session) call(op string, proc uint32, args Message, result Message, deadline time.Time) error {
	if s.rpc == nil {
		return ErrNotConnected
	}

	results, err := s.rpc.Call(CoreProgram, CoreVersion, proc, Marshal(args), deadline)
	if err != nil {
		if s.rpc.Broken() {
			s.forceClose(op, err)
		}

		return err
	}

	if err := Unmarshal(results, result); err != nil {
		rpcErr := &oncrpc.RPCError{Kind: oncrpc.MalformedReply, Err: err}
		s.forceClose(op, rpcErr)

		return rpcErr
	}

	return nil
}

// forceClose closes a linked session without a destroy_link round trip.
func (s *Session) forceClose(op string, cause error) {
	if !s.state.IsLinked() {
		return
	}

	s.state.ToClosed()
	s.releaseTransport()
	s.metrics.incForcedCloseCount()

	s.logger.Warn("session closed, rpc stream is not synchronized",
		"method", op,
		"link_id", s.linkID.Load(),
		"error", cause,
	)
}

func (s *Session) releaseTransport() {
	if s.rpc != nil {
		_ = s.rpc.Close()
	} else if s.conn != nil {
		_ = s.conn.Close()
	}

	s.rpc = nil
	s.conn = nil
}

func (s *Session) checkLinked() error {
	if !s.state.IsLinked() {
		return ErrNotConnected
	}

	return nil
}

// deadline returns now + timeout, or now + the default timeout when timeout is not
// positive, whichever is earlier than the ctx deadline.
func (s *Session) deadline(ctx context.Context, timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = s.cfg.defaultTimeout
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	return deadline
}

// budget returns the time left before deadline in milliseconds for the io_timeout and
// lock_timeout fields, or a timeout error when the deadline has passed.
func budget(op string, deadline time.Time) (uint32, error) {
	ms := util.RemainingMillis(deadline)
	if ms == 0 {
		return 0, &transport.TimeoutError{Op: op, Err: ErrBudgetExhausted}
	}

	return ms, nil
}

func remainingTime(op string, deadline time.Time) (time.Duration, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, &transport.TimeoutError{Op: op, Err: ErrBudgetExhausted}
	}

	return remaining, nil
}

// deviceErr converts a non-zero error code into an error. An instrument I/O timeout is
// reported as a timeout error.
func deviceErr(op string, code ErrorCode) error {
	if code == ErrCodeNone {
		return nil
	}

	devErr := &DeviceError{Op: op, Code: code}
	if code == ErrCodeIOTimeout {
		return &transport.TimeoutError{Op: op, Err: devErr}
	}

	return devErr
}
