package vxi11

import (
	"time"

	"github.com/arloliu/go-lxi/internal/util"
	"github.com/arloliu/go-lxi/logger"
)

// Write sends payload to the device with device_write calls.
//
// A payload larger than the instrument's maximum receive size is split into chunks; only
// the last chunk carries the END flag. A zero-length payload is sent as one empty chunk
// with END. All chunks share one budget that ends at deadline; a zero deadline disables it.
// When the instrument acknowledges fewer bytes than sent, the rest is sent again within the
// same budget. An acknowledgement of zero bytes fails with ErrWriteStalled.
//
// A failed write returns a *SendError. When the budget runs out between chunks the error
// wraps a *transport.TimeoutError and the session stays Linked; the bytes already written
// are not sent again.
func (s *Session) Write(payload []byte, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinked(); err != nil {
		return &SendError{Err: err}
	}

	written, err := s.write(payload, deadline)
	if err != nil {
		s.metrics.incWriteErrCount()
		return &SendError{Written: written, Err: err}
	}

	return nil
}

func (s *Session) write(payload []byte, deadline time.Time) (int, error) {
	maxChunk := int(s.maxRecvSize)
	offset := 0

	if s.logger.Level() == logger.DebugLevel {
		s.logger.Debug("write payload", "method", "Write", "size", len(payload), "chunks", max(util.CeilDiv(len(payload), maxChunk), 1))
	}

	for {
		remaining, err := budget("device_write", deadline)
		if err != nil {
			return offset, err
		}

		end := min(offset+maxChunk, len(payload))
		params := &WriteParms{
			LinkID:    s.linkID.Load(),
			IOTimeout: remaining,
			Data:      payload[offset:end],
		}
		if end == len(payload) {
			params.Flags |= FlagEnd
		}
		if s.cfg.waitLock {
			params.Flags |= FlagWaitLock
			params.LockTimeout = remaining
		}

		if s.logger.Level() == logger.DebugLevel {
			s.logger.Debug("write chunk", "method", "Write", "offset", offset, "size", end-offset, "flags", params.Flags)
		}

		s.metrics.incWriteCallCount()

		var resp WriteResp
		if err := s.call("device_write", ProcDeviceWrite, params, &resp, deadline); err != nil {
			return offset, err
		}
		if err := deviceErr("device_write", resp.Error); err != nil {
			return offset, err
		}

		acked := min(int(resp.Size), end-offset)
		if acked == 0 && end > offset {
			return offset, ErrWriteStalled
		}
		offset += acked
		s.metrics.addWriteByteCount(acked)

		if offset >= len(payload) {
			return offset, nil
		}
	}
}
