package lxi

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-lxi/internal/util"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/vxi11"
)

// Client owns a set of instrument sessions addressed by handles.
//
// Operations on different handles run concurrently; operations on one handle are serialized.
type Client struct {
	cfg        clientConfig
	logger     logger.Logger
	nextHandle atomic.Uint64
	closed     atomic.Bool
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		logger:         logger.GetLogger(),
		defaultTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	// the client logger goes last so it wins over raw session options
	cfg.sessionOpts = append(cfg.sessionOpts, vxi11.WithLogger(cfg.logger))

	// validate session options once, up front
	if _, err := vxi11.NewSessionConfig(cfg.sessionOpts...); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg, logger: cfg.logger}, nil
}

// Registry returns the registry holding the client's sessions.
func (c *Client) Registry() Registry { return c.cfg.registry }

// NewHandle registers an unconnected session for addr and returns its handle.
func (c *Client) NewHandle(addr Address) (Handle, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	if addr.SubAddress == "" {
		addr.SubAddress = DefaultSubAddress
	}

	sess, err := vxi11.NewSession(addr.Host, addr.SubAddress, c.cfg.sessionOpts...)
	if err != nil {
		return 0, err
	}

	h := Handle(c.nextHandle.Add(1))
	c.cfg.registry.Put(h, sess)

	return h, nil
}

// Link links the session of an unconnected handle within timeoutMillis.
// It fails with ErrAlreadyConnected if the handle is linked or closed.
func (c *Client) Link(ctx context.Context, h Handle, timeoutMillis int) error {
	sess, err := c.session(h)
	if err != nil {
		return err
	}

	return sess.Link(ctx, c.timeout(timeoutMillis))
}

// Connect creates a session for subAddress on host and links it within timeoutMillis.
// On failure no handle is retained.
func (c *Client) Connect(ctx context.Context, host string, subAddress string, timeoutMillis int) (Handle, error) {
	h, err := c.NewHandle(Address{Host: host, SubAddress: subAddress})
	if err != nil {
		return 0, err
	}

	if err := c.Link(ctx, h, timeoutMillis); err != nil {
		c.cfg.registry.Delete(h)
		c.logger.Warn("connect failed", "method", "Connect", "host", host, "device", subAddress, "error", err)

		return 0, err
	}

	return h, nil
}

// ConnectResource connects to a VISA style resource such as "TCPIP::192.168.1.10::inst0::INSTR".
func (c *Client) ConnectResource(ctx context.Context, resource string, timeoutMillis int) (Handle, error) {
	addr, err := ParseResource(resource)
	if err != nil {
		return 0, err
	}

	return c.Connect(ctx, addr.Host, addr.SubAddress, timeoutMillis)
}

// Send writes payload to the instrument within timeoutMillis.
func (c *Client) Send(h Handle, payload []byte, timeoutMillis int) error {
	sess, err := c.session(h)
	if err != nil {
		return err
	}

	return sess.Write(payload, c.deadline(timeoutMillis))
}

// Receive reads one response of at most maxBytes bytes within timeoutMillis.
func (c *Client) Receive(h Handle, maxBytes int, timeoutMillis int) ([]byte, error) {
	sess, err := c.session(h)
	if err != nil {
		return nil, err
	}

	return sess.Read(maxBytes, c.deadline(timeoutMillis))
}

// Disconnect closes the session of h. It is idempotent: the connection is released once
// and later calls do nothing. Remote teardown failures are logged, not returned.
//
// The handle stays registered in the Closed state until Release.
func (c *Client) Disconnect(h Handle) error {
	sess, err := c.session(h)
	if err != nil {
		return err
	}

	c.disconnect(h, sess)

	return nil
}

// Release disconnects h and forgets it. Later use of h fails with ErrInvalidHandle.
func (c *Client) Release(h Handle) error {
	sess, ok := c.cfg.registry.Delete(h)
	if !ok {
		return ErrInvalidHandle
	}

	c.disconnect(h, sess)

	return nil
}

// Close releases every handle of the client. Later calls return nil.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var handles []Handle
	c.cfg.registry.Range(func(h Handle, _ *vxi11.Session) bool {
		handles = append(handles, h)
		return true
	})

	for _, h := range handles {
		_ = c.Release(h)
	}

	return nil
}

// State returns the lifecycle state of the session of h.
func (c *Client) State(h Handle) (vxi11.State, error) {
	sess, err := c.session(h)
	if err != nil {
		return vxi11.ClosedState, err
	}

	return sess.State(), nil
}

// Session returns the session of h.
func (c *Client) Session(h Handle) (*vxi11.Session, error) {
	return c.session(h)
}

// ReadStatusByte returns the status byte of the instrument.
func (c *Client) ReadStatusByte(h Handle, timeoutMillis int) (byte, error) {
	sess, err := c.session(h)
	if err != nil {
		return 0, err
	}

	return sess.ReadStatusByte(c.deadline(timeoutMillis))
}

// Trigger sends a device trigger.
func (c *Client) Trigger(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Trigger)
}

// Clear sends a device clear.
func (c *Client) Clear(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Clear)
}

// Remote places the instrument in the remote state.
func (c *Client) Remote(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Remote)
}

// Local places the instrument in the local state.
func (c *Client) Local(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Local)
}

// Lock acquires the exclusive device lock.
func (c *Client) Lock(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Lock)
}

// Unlock releases the device lock.
func (c *Client) Unlock(h Handle, timeoutMillis int) error {
	return c.deviceOp(h, timeoutMillis, (*vxi11.Session).Unlock)
}

// Abort aborts the operation in progress on h through the abort channel.
func (c *Client) Abort(ctx context.Context, h Handle, timeoutMillis int) error {
	sess, err := c.session(h)
	if err != nil {
		return err
	}

	return sess.Abort(ctx, c.timeout(timeoutMillis))
}

func (c *Client) deviceOp(h Handle, timeoutMillis int, op func(*vxi11.Session, time.Time) error) error {
	sess, err := c.session(h)
	if err != nil {
		return err
	}

	return op(sess, c.deadline(timeoutMillis))
}

func (c *Client) disconnect(h Handle, sess *vxi11.Session) {
	err := sess.Close(c.cfg.defaultTimeout)
	switch {
	case err == nil, errors.Is(err, vxi11.ErrAlreadyClosed):
	default:
		c.logger.Warn("remote teardown failed, connection released",
			"method", "Disconnect",
			"handle", uint64(h),
			"host", sess.Host(),
			"error", err,
		)
	}
}

func (c *Client) session(h Handle) (*vxi11.Session, error) {
	sess, ok := c.cfg.registry.Get(h)
	if !ok {
		return nil, ErrInvalidHandle
	}

	return sess, nil
}

func (c *Client) deadline(timeoutMillis int) time.Time {
	return util.DeadlineFromMillis(timeoutMillis, c.cfg.defaultTimeout)
}

func (c *Client) timeout(timeoutMillis int) time.Duration {
	if timeoutMillis <= 0 {
		return c.cfg.defaultTimeout
	}

	return time.Duration(timeoutMillis) * time.Millisecond
}
