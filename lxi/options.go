package lxi

import (
	"errors"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/vxi11"
)

// clientConfig is the process-wide configuration shared by all sessions of a Client.
type clientConfig struct {
	logger         logger.Logger
	registry       Registry
	defaultTimeout time.Duration
	sessionOpts    []vxi11.SessionOption
}

// Option represents a functional option for configuring a Client.
type Option interface {
	apply(*clientConfig) error
}

type optFunc struct {
	name      string
	applyFunc func(*clientConfig) error
}

func (o *optFunc) apply(cfg *clientConfig) error { return o.applyFunc(cfg) }

func (o *optFunc) String() string { return o.name }

func newOptFunc(name string, f func(*clientConfig) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// sessionOpt forwards a session option to every session created by the client.
func sessionOpt(name string, opt vxi11.SessionOption) Option {
	return newOptFunc(name, func(cfg *clientConfig) error {
		cfg.sessionOpts = append(cfg.sessionOpts, opt)
		return nil
	})
}

// WithLogger sets the logger of the client and its sessions. A nil logger is ignored.
//
// The default is the global logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *clientConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// WithRegistry sets the registry holding the sessions of the client.
//
// The default is a registry created by NewRegistry.
func WithRegistry(r Registry) Option {
	return newOptFunc("WithRegistry", func(cfg *clientConfig) error {
		if r == nil {
			return errors.New("registry is nil")
		}
		cfg.registry = r

		return nil
	})
}

// WithDefaultTimeout sets the timeout used when an operation is called with a timeout of
// 0 or less. It should be between 10 milliseconds and 10 minutes.
//
// The default value is 5 seconds.
func WithDefaultTimeout(val time.Duration) Option {
	return newOptFunc("WithDefaultTimeout", func(cfg *clientConfig) error {
		if val < 10*time.Millisecond || val > 10*time.Minute {
			return errors.New("default timeout out of range [10ms, 10m]")
		}
		cfg.defaultTimeout = val
		cfg.sessionOpts = append(cfg.sessionOpts, vxi11.WithDefaultTimeout(val))

		return nil
	})
}

// WithClientID sets the client id sent when a link is created.
func WithClientID(id int32) Option {
	return sessionOpt("WithClientID", vxi11.WithClientID(id))
}

// WithLockDevice requests an exclusive device lock on connect, waiting up to lockTimeout
// for a lock held by another client.
func WithLockDevice(lock bool, lockTimeout time.Duration) Option {
	return sessionOpt("WithLockDevice", vxi11.WithLockDevice(lock, lockTimeout))
}

// WithWaitLock makes operations wait for a lock held by another client within their timeout.
func WithWaitLock(wait bool) Option {
	return sessionOpt("WithWaitLock", vxi11.WithWaitLock(wait))
}

// WithTermChar ends every receive on the character c in addition to the END indicator.
func WithTermChar(c byte) Option {
	return sessionOpt("WithTermChar", vxi11.WithTermChar(c))
}

// WithPort connects to a fixed core channel port instead of asking the port mapper.
func WithPort(port int) Option {
	return sessionOpt("WithPort", vxi11.WithPort(port))
}

// WithPortmapperPort sets the port of the instrument's port mapper. The default is 111.
func WithPortmapperPort(port int) Option {
	return sessionOpt("WithPortmapperPort", vxi11.WithPortmapperPort(port))
}

// WithSessionOptions appends raw session options applied to every session.
func WithSessionOptions(opts ...vxi11.SessionOption) Option {
	return newOptFunc("WithSessionOptions", func(cfg *clientConfig) error {
		cfg.sessionOpts = append(cfg.sessionOpts, opts...)
		return nil
	})
}
