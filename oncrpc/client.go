package oncrpc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-lxi/internal/pool"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// maxAbandonedCalls bounds the number of remembered abandoned xids.
const maxAbandonedCalls = 64

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger of the client. The default is the global logger.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRecordSize sets the largest reply record accepted by the client.
func WithMaxRecordSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.maxRecordSize = size
		}
	}
}

// WithMaxFragmentSize sets the largest fragment used for call records.
func WithMaxFragmentSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.maxFragmentSize = size
		}
	}
}

// pendingCall is the call currently awaiting its reply.
type pendingCall struct {
	xid       uint32
	program   uint32
	version   uint32
	procedure uint32
	deadline  time.Time
}

// Client issues ONC-RPC calls over a Stream, one call at a time.
type Client struct {
	mu     sync.Mutex
	stream Stream
	logger logger.Logger
	xids   *xidGenerator

	// abandoned holds xids of calls that timed out before any reply byte was read,
	// mapped to the time they were abandoned.
	abandoned *xsync.MapOf[uint32, time.Time]
	broken    atomic.Bool

	maxRecordSize   int
	maxFragmentSize int
}

// NewClient creates a Client on stream. The client takes ownership of the stream.
func NewClient(stream Stream, opts ...ClientOption) *Client {
	c := &Client{
		stream:          stream,
		logger:          logger.GetLogger(),
		xids:            newXIDGenerator(),
		abandoned:       xsync.NewMapOf[uint32, time.Time](),
		maxRecordSize:   DefaultMaxRecordSize,
		maxFragmentSize: DefaultMaxFragmentSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Broken reports whether the stream lost synchronization. A broken client rejects calls.
func (c *Client) Broken() bool {
	return c.broken.Load()
}

// Close closes the underlying stream.
func (c *Client) Close() error {
	return c.stream.Close()
}

// Call invokes procedure proc of program prog, version vers with XDR-encoded args and
// returns the XDR-encoded results. Both the request write and the reply read must finish
// before deadline; a zero deadline disables the timeout.
//
// Errors:
//   - *transport.TimeoutError when the deadline elapsed. If no reply byte was read, the
//     client stays usable and a late reply is discarded; otherwise the client is broken.
//   - *transport.IOError for stream failures; the client is broken.
//   - *RPCError with MalformedReply or ProcedureMismatch; the client is broken.
//   - *RPCError with RemoteFailure; the client stays usable.
func (c *Client) Call(prog uint32, vers uint32, proc uint32, args []byte, deadline time.Time) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return nil, ErrClientBroken
	}

	call := pendingCall{
		xid:       c.xids.next(),
		program:   prog,
		version:   vers,
		procedure: proc,
		deadline:  deadline,
	}

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("send rpc call", c.callInfo(call, "method", "Call", "args_len", len(args))...)
	}

	if err := c.writeCall(call, args); err != nil {
		return nil, err
	}

	for {
		record, consumed, err := ReadRecord(c.stream, deadline, c.maxRecordSize)
		if err != nil {
			if transport.IsTimeout(err) && consumed == 0 {
				c.abandon(call)
				return nil, err
			}

			if errors.Is(err, ErrRecordTooLarge) {
				err = &RPCError{Kind: MalformedReply, ExpectedXID: call.xid, Err: err}
			}
			c.markBroken(call, err)

			return nil, err
		}

		reply, err := DecodeReply(record)
		if err != nil {
			rpcErr := &RPCError{Kind: MalformedReply, ExpectedXID: call.xid, Err: err}
			c.markBroken(call, rpcErr)

			return nil, rpcErr
		}

		if reply.XID != call.xid {
			if _, ok := c.abandoned.LoadAndDelete(reply.XID); ok {
				c.logger.Debug("discard reply of abandoned call", c.callInfo(call, "method", "Call", "stale_xid", reply.XID)...)
				continue
			}

			rpcErr := &RPCError{Kind: ProcedureMismatch, XID: reply.XID, ExpectedXID: call.xid}
			c.markBroken(call, rpcErr)

			return nil, rpcErr
		}

		if err := reply.Err(); err != nil {
			c.logger.Debug("rpc call failed remotely", c.callInfo(call, "method", "Call", "error", err)...)
			return nil, err
		}

		return reply.Results, nil
	}
}

func (c *Client) writeCall(call pendingCall, args []byte) error {
	buf := pool.GetBuffer(callHeaderSize + len(args))
	buf = EncodeCall(buf, CallHeader{
		XID:       call.xid,
		Program:   call.program,
		Version:   call.version,
		Procedure: call.procedure,
	}, args)

	err := WriteRecord(c.stream, buf, call.deadline, c.maxFragmentSize)
	pool.PutBuffer(buf)

	if err == nil {
		return nil
	}

	// a timeout before the first byte left leaves the stream aligned
	var timeoutErr *transport.TimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.N == 0 {
		return err
	}

	c.markBroken(call, err)

	return err
}

func (c *Client) abandon(call pendingCall) {
	if c.abandoned.Size() >= maxAbandonedCalls {
		// the oldest replies are the least likely to still arrive
		var oldestXID uint32
		var oldest time.Time
		c.abandoned.Range(func(xid uint32, at time.Time) bool {
			if oldest.IsZero() || at.Before(oldest) {
				oldestXID, oldest = xid, at
			}
			return true
		})
		c.abandoned.Delete(oldestXID)
	}

	c.abandoned.Store(call.xid, time.Now())
	c.logger.Debug("rpc call abandoned after timeout", c.callInfo(call, "method", "Call")...)
}

func (c *Client) markBroken(call pendingCall, err error) {
	if c.broken.CompareAndSwap(false, true) {
		c.logger.Warn("rpc stream lost synchronization", c.callInfo(call, "method", "Call", "error", err)...)
	}
}

func (c *Client) callInfo(call pendingCall, keyValues ...any) []any {
	return append(keyValues,
		"xid", call.xid,
		"program", call.program,
		"version", call.version,
		"procedure", call.procedure,
	)
}
