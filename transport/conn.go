// Package transport owns the single reliable byte-stream connection between a client
// and an instrument's control port.
//
// It provides blocking send and receive primitives with absolute deadlines and classifies
// failures into ConnectError, TimeoutError and IOError.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-lxi/logger"
)

// Conn wraps a net.Conn with deadline-aware full reads and writes.
//
// A Conn is owned by exactly one protocol client; it does not serialize concurrent reads
// or concurrent writes.
type Conn struct {
	raw    net.Conn
	logger logger.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConn wraps an established net.Conn. A nil logger selects the default logger.
func NewConn(raw net.Conn, l logger.Logger) *Conn {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Conn{raw: raw, logger: l}
}

// Dial opens a TCP connection to host:port within timeout.
//
// The dial is also bounded by ctx. Any failure is reported as *ConnectError.
func Dial(ctx context.Context, host string, port int, timeout time.Duration, l logger.Logger) (*Conn, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	if port <= 0 || port > 65535 {
		return nil, &ConnectError{Address: address, Err: errors.New("port is out of range [1, 65535]")}
	}

	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c := NewConn(raw, l)
	c.logger.Debug("transport connected",
		"method", "Dial",
		"local_addr", raw.LocalAddr().String(),
		"remote_addr", raw.RemoteAddr().String(),
	)

	return c, nil
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// WriteAll writes all of p before deadline. A zero deadline disables the timeout.
func (c *Conn) WriteAll(p []byte, deadline time.Time) error {
	if c.closed.Load() {
		return &IOError{Op: "write", Err: ErrConnClosed}
	}

	if err := c.raw.SetWriteDeadline(deadline); err != nil {
		return classify("write", 0, err)
	}

	written := 0
	for written < len(p) {
		n, err := c.raw.Write(p[written:])
		written += n
		if err != nil {
			return classify("write", written, err)
		}
		if n == 0 {
			return &IOError{Op: "write", N: written, Err: io.ErrShortWrite}
		}
	}

	return nil
}

// ReadFull reads exactly len(p) bytes before deadline. A zero deadline disables the timeout.
//
// On failure the returned count is the number of bytes read into p.
func (c *Conn) ReadFull(p []byte, deadline time.Time) (int, error) {
	if c.closed.Load() {
		return 0, &IOError{Op: "read", Err: ErrConnClosed}
	}

	if err := c.raw.SetReadDeadline(deadline); err != nil {
		return 0, classify("read", 0, err)
	}

	n, err := io.ReadFull(c.raw, p)
	if err != nil {
		return n, classify("read", n, err)
	}

	return n, nil
}

// Close releases the socket. It is idempotent and never fails; the underlying close
// error, if any, is logged.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if tcpConn, ok := c.raw.(*net.TCPConn); ok {
			_ = tcpConn.SetLinger(0)
		}

		if err := c.raw.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn("failed to close transport", "method", "Close", "error", err)
		}
	})

	return nil
}

// classify maps a net/io error to a TimeoutError or IOError.
func classify(op string, n int, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &TimeoutError{Op: op, N: n, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, N: n, Err: err}
	}

	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return &IOError{Op: op, N: n, Err: errors.Join(ErrConnClosed, err)}
	}

	return &IOError{Op: op, N: n, Err: err}
}
