package instsim

import (
	"bytes"
	"slices"
	"time"

	"github.com/arloliu/go-lxi/internal/util"
	"github.com/arloliu/go-lxi/vxi11"
)

func (s *Server) createLink(args []byte) (vxi11.Message, error) {
	var params vxi11.CreateLinkParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	if len(s.cfg.Devices) > 0 && !slices.Contains(s.cfg.Devices, params.Device) {
		return &vxi11.CreateLinkResp{Error: vxi11.ErrCodeInvalidAddress}, nil
	}

	id := s.nextLinkID.Add(1)
	if params.LockDevice && !s.acquireLock(id, true, params.LockTimeout) {
		return &vxi11.CreateLinkResp{Error: vxi11.ErrCodeLockedByAnother}, nil
	}

	s.links.Store(id, &link{id: id, device: params.Device})

	resp := &vxi11.CreateLinkResp{LinkID: id, MaxRecvSize: s.cfg.MaxRecvSize}
	if !s.cfg.NoAbortChannel {
		resp.AbortPort = uint16(s.port) //nolint:gosec
	}

	s.logger.Debug("link created", "method", "createLink", "link_id", id, "device", params.Device, "client_id", params.ClientID)

	return resp, nil
}

func (s *Server) destroyLink(args []byte) (vxi11.Message, error) {
	var params vxi11.LinkParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	if _, ok := s.links.LoadAndDelete(params.LinkID); !ok {
		return &vxi11.ErrorResp{Error: vxi11.ErrCodeInvalidLink}, nil
	}
	s.lockOwner.CompareAndSwap(params.LinkID, 0)

	s.logger.Debug("link destroyed", "method", "destroyLink", "link_id", params.LinkID)

	return &vxi11.ErrorResp{Error: vxi11.ErrorCode(s.cfg.DestroyErrorCode)}, nil
}

func (s *Server) deviceWrite(args []byte) (vxi11.Message, error) {
	var params vxi11.WriteParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	l, code := s.access(params.LinkID, params.Flags, params.LockTimeout)
	if code != vxi11.ErrCodeNone {
		return &vxi11.WriteResp{Error: code}, nil
	}

	acked := len(params.Data)
	switch {
	case s.cfg.StallWrites:
		acked = 0
	case s.cfg.WriteAckLimit > 0:
		acked = min(acked, int(s.cfg.WriteAckLimit))
	}

	s.writesMu.Lock()
	s.writes = append(s.writes, WriteCall{LinkID: params.LinkID, Flags: params.Flags, Size: len(params.Data)})
	s.writesMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.input = append(l.input, params.Data[:acked]...)
	if acked == len(params.Data) && params.Flags&vxi11.FlagEnd != 0 {
		command := l.input
		l.input = nil

		if response := s.cfg.Responder.Respond(l.device, command); len(response) > 0 {
			l.output = append(l.output, response...)
			l.readIndex = 0
		}
	}

	return &vxi11.WriteResp{Size: uint32(acked)}, nil //nolint:gosec
}

func (s *Server) deviceRead(args []byte) (vxi11.Message, error) {
	var params vxi11.ReadParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	l, code := s.access(params.LinkID, params.Flags, params.LockTimeout)
	if code != vxi11.ErrCodeNone {
		return &vxi11.ReadResp{Error: code}, nil
	}

	if l.aborted.CompareAndSwap(true, false) {
		return &vxi11.ReadResp{Error: vxi11.ErrCodeAbort}, nil
	}

	if s.cfg.NeverEnd {
		l.mu.Lock()
		n := min(int(params.RequestSize), s.cfg.chunkLimit(l.readIndex))
		l.readIndex++
		l.mu.Unlock()

		return &vxi11.ReadResp{Data: Pattern(n)}, nil
	}

	if code := s.waitOutput(l, params.IOTimeout); code != vxi11.ErrCodeNone {
		return &vxi11.ReadResp{Error: code}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	resp := &vxi11.ReadResp{}
	n := min(int(params.RequestSize), s.cfg.chunkLimit(l.readIndex), len(l.output))
	if params.Flags&vxi11.FlagTermCharSet != 0 {
		if idx := bytes.IndexByte(l.output[:n], params.TermChar); idx >= 0 {
			n = idx + 1
			resp.Reason |= vxi11.ReasonChr
		}
	}

	resp.Data = util.CloneSlice(l.output[:n], 0)
	l.output = l.output[n:]
	l.readIndex++

	switch {
	case len(l.output) == 0:
		resp.Reason |= vxi11.ReasonEnd
		l.output = nil
		l.readIndex = 0
	case n == int(params.RequestSize):
		resp.Reason |= vxi11.ReasonRequestCount
	}

	return resp, nil
}

func (s *Server) deviceReadSTB(args []byte) (vxi11.Message, error) {
	var params vxi11.GenericParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	if _, ok := s.links.Load(params.LinkID); !ok {
		return &vxi11.ReadSTBResp{Error: vxi11.ErrCodeInvalidLink}, nil
	}

	return &vxi11.ReadSTBResp{STB: s.cfg.StatusByte}, nil
}

func (s *Server) deviceGeneric(args []byte, fn func(l *link)) (vxi11.Message, error) {
	var params vxi11.GenericParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	l, code := s.access(params.LinkID, params.Flags, params.LockTimeout)
	if code != vxi11.ErrCodeNone {
		return &vxi11.ErrorResp{Error: code}, nil
	}

	if fn != nil {
		l.mu.Lock()
		fn(l)
		l.mu.Unlock()
	}

	return &vxi11.ErrorResp{}, nil
}

func (s *Server) deviceLock(args []byte) (vxi11.Message, error) {
	var params vxi11.LockParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	if _, ok := s.links.Load(params.LinkID); !ok {
		return &vxi11.ErrorResp{Error: vxi11.ErrCodeInvalidLink}, nil
	}

	if !s.acquireLock(params.LinkID, params.Flags&vxi11.FlagWaitLock != 0, params.LockTimeout) {
		return &vxi11.ErrorResp{Error: vxi11.ErrCodeLockedByAnother}, nil
	}

	return &vxi11.ErrorResp{}, nil
}

func (s *Server) deviceUnlock(args []byte) (vxi11.Message, error) {
	var params vxi11.LinkParms
	if err := vxi11.Unmarshal(args, &params); err != nil {
		return nil, err
	}

	if _, ok := s.links.Load(params.LinkID); !ok {
		return &vxi11.ErrorResp{Error: vxi11.ErrCodeInvalidLink}, nil
	}

	if !s.lockOwner.CompareAndSwap(params.LinkID, 0) {
		return &vxi11.ErrorResp{Error: vxi11.ErrCodeNoLockHeld}, nil
	}

	return &vxi11.ErrorResp{}, nil
}

// access resolves a link and checks that no other link holds the device lock.
func (s *Server) access(linkID int32, flags uint32, lockTimeout uint32) (*link, vxi11.ErrorCode) {
	l, ok := s.links.Load(linkID)
	if !ok {
		return nil, vxi11.ErrCodeInvalidLink
	}

	owner := s.lockOwner.Load()
	if owner == 0 || owner == linkID {
		return l, vxi11.ErrCodeNone
	}

	if flags&vxi11.FlagWaitLock == 0 || !s.waitUnlocked(lockTimeout) {
		return nil, vxi11.ErrCodeLockedByAnother
	}

	return l, vxi11.ErrCodeNone
}

func (s *Server) acquireLock(linkID int32, wait bool, timeoutMillis uint32) bool {
	deadline := time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	for {
		if s.lockOwner.CompareAndSwap(0, linkID) || s.lockOwner.Load() == linkID {
			return true
		}
		if !wait || !time.Now().Before(deadline) || s.closed.Load() {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}

func (s *Server) waitUnlocked(timeoutMillis uint32) bool {
	deadline := time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	for s.lockOwner.Load() != 0 {
		if !time.Now().Before(deadline) || s.closed.Load() {
			return false
		}
		time.Sleep(lockPollInterval)
	}

	return true
}

// waitOutput waits up to timeoutMillis for response data on l. It returns
// ErrCodeAbort when the link is aborted and ErrCodeIOTimeout when no data arrives.
func (s *Server) waitOutput(l *link, timeoutMillis uint32) vxi11.ErrorCode {
	deadline := time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	for {
		l.mu.Lock()
		ready := len(l.output) > 0
		l.mu.Unlock()

		if ready {
			return vxi11.ErrCodeNone
		}
		if l.aborted.CompareAndSwap(true, false) {
			return vxi11.ErrCodeAbort
		}
		if !time.Now().Before(deadline) || s.closed.Load() {
			return vxi11.ErrCodeIOTimeout
		}
		time.Sleep(lockPollInterval)
	}
}
