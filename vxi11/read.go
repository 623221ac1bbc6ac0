package vxi11

import (
	"time"

	"github.com/arloliu/go-lxi/logger"
)

const (
	// initialReadBufferSize caps the capacity preallocated for a response.
	initialReadBufferSize = 4096

	// readReplyOverhead is the accepted reply header plus the fixed fields and the
	// largest padding of a device_read result.
	readReplyOverhead = 24 + 12 + 3
)

// Read receives one response of at most maxBytes bytes from the device.
//
// Chunks returned by repeated device_read calls are concatenated in arrival order until a
// chunk carries the END reason, or the termination character reason when WithTermChar is
// set. All calls share one budget that ends at deadline; a zero deadline disables it.
//
// A failed read returns a *ReceiveError and never a partial response. A response longer
// than maxBytes fails with ErrBufferTooSmall. A device that never ends its response
// exhausts the budget and fails with a *transport.TimeoutError.
func (s *Session) Read(maxBytes int, deadline time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return nil, &ReceiveError{Err: err}
	}

	data, err := s.read(max(maxBytes, 0), deadline)
	if err != nil {
		s.metrics.incReadErrCount()
		return nil, &ReceiveError{Err: err}
	}

	return data, nil
}

func (s *Session) read(maxBytes int, deadline time.Time) ([]byte, error) {
	termChar, termCharSet := s.cfg.TermChar()
	buf := make([]byte, 0, min(maxBytes, initialReadBufferSize))
	maxChunk := min(maxReadRequest, s.cfg.maxRecordSize-readReplyOverhead)

	for {
		remaining, err := budget("device_read", deadline)
		if err != nil {
			return nil, err
		}

		// one byte over the capacity tells an exact fit from an overflow; a chunk must
		// also fit in one reply record
		requestSize := min(maxBytes-len(buf)+1, maxChunk)

		params := &ReadParms{
			LinkID:      s.linkID.Load(),
			RequestSize: uint32(requestSize), //nolint:gosec
			IOTimeout:   remaining,
		}
		if termCharSet {
			params.Flags |= FlagTermCharSet
			params.TermChar = termChar
		}
		if s.cfg.waitLock {
			params.Flags |= FlagWaitLock
			params.LockTimeout = remaining
		}

		s.metrics.incReadCallCount()

		var resp ReadResp
		if err := s.call("device_read", ProcDeviceRead, params, &resp, deadline); err != nil {
			return nil, err
		}
		if err := deviceErr("device_read", resp.Error); err != nil {
			return nil, err
		}

		if s.logger.Level() == logger.DebugLevel {
			s.logger.Debug("read chunk", "method", "Read", "size", len(resp.Data), "reason", resp.Reason)
		}

		s.metrics.addReadByteCount(len(resp.Data))

		if len(buf)+len(resp.Data) > maxBytes {
			return nil, ErrBufferTooSmall
		}
		buf = append(buf, resp.Data...)

		if resp.Reason&ReasonEnd != 0 || (termCharSet && resp.Reason&ReasonChr != 0) {
			return buf, nil
		}
	}
}
