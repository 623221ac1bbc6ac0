package vxi11

import (
	"context"
	"time"

	"github.com/arloliu/go-lxi/oncrpc"
	"github.com/arloliu/go-lxi/transport"
)

// ReadStatusByte returns the IEEE 488.2 status byte of the device.
func (s *Session) ReadStatusByte(deadline time.Time) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return 0, err
	}

	params, err := s.genericParms("device_readstb", deadline)
	if err != nil {
		return 0, err
	}

	var resp ReadSTBResp
	if err := s.call("device_readstb", ProcDeviceReadSTB, params, &resp, deadline); err != nil {
		return 0, err
	}
	if err := deviceErr("device_readstb", resp.Error); err != nil {
		return 0, err
	}

	return resp.STB, nil
}

// Trigger sends a group execute trigger to the device.
func (s *Session) Trigger(deadline time.Time) error {
	return s.generic("device_trigger", ProcDeviceTrigger, deadline)
}

// Clear sends a selected device clear to the device.
func (s *Session) Clear(deadline time.Time) error {
	return s.generic("device_clear", ProcDeviceClear, deadline)
}

// Remote places the device in the remote state.
func (s *Session) Remote(deadline time.Time) error {
	return s.generic("device_remote", ProcDeviceRemote, deadline)
}

// Local places the device in the local state.
func (s *Session) Local(deadline time.Time) error {
	return s.generic("device_local", ProcDeviceLocal, deadline)
}

// Lock acquires the exclusive device lock. With WithWaitLock the instrument waits for a
// lock held by another link until deadline, otherwise it fails immediately with
// ErrCodeLockedByAnother.
func (s *Session) Lock(deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return err
	}

	remaining, err := budget("device_lock", deadline)
	if err != nil {
		return err
	}

	params := &LockParms{LinkID: s.linkID.Load()}
	if s.cfg.waitLock {
		params.Flags = FlagWaitLock
		params.LockTimeout = remaining
	}

	var resp ErrorResp
	if err := s.call("device_lock", ProcDeviceLock, params, &resp, deadline); err != nil {
		return err
	}

	return deviceErr("device_lock", resp.Error)
}

// Unlock releases the device lock held by this link.
func (s *Session) Unlock(deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return err
	}

	var resp ErrorResp
	if err := s.call("device_unlock", ProcDeviceUnlock, &LinkParms{LinkID: s.linkID.Load()}, &resp, deadline); err != nil {
		return err
	}

	return deviceErr("device_unlock", resp.Error)
}

// Abort asks the instrument to abort the operation in progress on this link, typically a
// Write or Read blocked in another goroutine.
//
// Abort runs on a separate connection to the abort channel and does not wait for the
// session's operation in progress.
func (s *Session) Abort(ctx context.Context, timeout time.Duration) error {
	if !s.state.IsLinked() {
		return ErrNotConnected
	}

	port := int(s.abortPort.Load())
	if port == 0 {
		return &DeviceError{Op: "device_abort", Code: ErrCodeChannelNotEstab}
	}

	deadline := s.deadline(ctx, timeout)
	remaining, err := remainingTime("dial", deadline)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, s.host, port, remaining, s.logger)
	if err != nil {
		return err
	}

	client := oncrpc.NewClient(conn, oncrpc.WithLogger(s.logger))
	defer client.Close()

	results, err := client.Call(AbortProgram, AbortVersion, ProcDeviceAbort, Marshal(&LinkParms{LinkID: s.linkID.Load()}), deadline)
	if err != nil {
		return err
	}

	var resp ErrorResp
	if err := Unmarshal(results, &resp); err != nil {
		return &oncrpc.RPCError{Kind: oncrpc.MalformedReply, Err: err}
	}

	s.logger.Info("abort requested", "method", "Abort", "link_id", s.linkID.Load(), "error_code", uint32(resp.Error))

	return deviceErr("device_abort", resp.Error)
}

func (s *Session) generic(op string, proc uint32, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return err
	}

	params, err := s.genericParms(op, deadline)
	if err != nil {
		return err
	}

	var resp ErrorResp
	if err := s.call(op, proc, params, &resp, deadline); err != nil {
		return err
	}

	return deviceErr(op, resp.Error)
}

func (s *Session) genericParms(op string, deadline time.Time) (*GenericParms, error) {
	remaining, err := budget(op, deadline)
	if err != nil {
		return nil, err
	}

	params := &GenericParms{LinkID: s.linkID.Load(), IOTimeout: remaining}
	if s.cfg.waitLock {
		params.Flags = FlagWaitLock
		params.LockTimeout = remaining
	}

	return params, nil
}
