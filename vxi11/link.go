package vxi11

import (
	"time"

	"github.com/arloliu/go-lxi/internal/util"
)

// createLink sends create_link and records the link parameters returned by the instrument.
func (s *Session) createLink(deadline time.Time) error {
	params := &CreateLinkParms{
		ClientID:   s.cfg.clientID,
		LockDevice: s.cfg.lockDevice,
		Device:     s.device,
	}
	if s.cfg.lockDevice {
		params.LockTimeout = min(uint32(s.cfg.lockTimeout/time.Millisecond), util.RemainingMillis(deadline)) //nolint:gosec
	}

	var resp CreateLinkResp
	if err := s.call("create_link", ProcCreateLink, params, &resp, deadline); err != nil {
		return err
	}

	if resp.Error != ErrCodeNone {
		s.logger.Warn("create link rejected", "method", "createLink", "error_code", uint32(resp.Error), "error", resp.Error)
		return &LinkError{Device: s.device, Code: resp.Error}
	}

	maxRecvSize := resp.MaxRecvSize
	if maxRecvSize == 0 {
		maxRecvSize = defaultMaxRecvSize
	}

	s.linkID.Store(resp.LinkID)
	s.abortPort.Store(uint32(resp.AbortPort))
	s.maxRecvSize = maxRecvSize

	return nil
}

// destroyLink sends destroy_link for the current link.
//
// It returns ErrAlreadyClosed when there is no link to destroy. Other failures are
// logged and returned; they never prevent the caller from releasing the connection.
func (s *Session) destroyLink(deadline time.Time) error {
	if s.rpc == nil || s.rpc.Broken() {
		return ErrAlreadyClosed
	}

	var resp ErrorResp
	err := s.call("destroy_link", ProcDestroyLink, &LinkParms{LinkID: s.linkID.Load()}, &resp, deadline)
	if err == nil {
		err = deviceErr("destroy_link", resp.Error)
	}

	if err != nil {
		s.logger.Warn("destroy link failed", "method", "destroyLink", "link_id", s.linkID.Load(), "error", err)
	}

	return err
}
