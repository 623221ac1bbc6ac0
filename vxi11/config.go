package vxi11

import (
	"errors"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/oncrpc"
)

// SessionConfig holds the configuration of a Session. It is immutable once the session is created.
type SessionConfig struct {
	// clientID is sent in create_link; instruments use it only for bookkeeping.
	// Defaults to 0.
	clientID int32

	// lockDevice requests an exclusive lock when the link is created.
	// Defaults to false.
	lockDevice bool

	// lockTimeout bounds how long create_link waits for a lock held by another link.
	// Defaults to 0, fail immediately.
	lockTimeout time.Duration

	// waitLock sets the waitlock flag on write, read, lock and generic operations, so the
	// instrument waits for a lock held by another link within the operation's budget.
	// Defaults to false.
	waitLock bool

	// termChar, when termCharSet is true, ends a read on the given character.
	termChar    byte
	termCharSet bool

	// port is the TCP port of the core channel. 0 asks the port mapper.
	// Defaults to 0.
	port int

	// portmapperPort is the TCP port of the port mapper. Defaults to 111.
	portmapperPort int

	// defaultTimeout applies to Link, Close and device operations called without a timeout.
	// It should be between 10 milliseconds and 10 minutes.
	// Defaults to 5 seconds.
	defaultTimeout time.Duration

	// maxRecordSize bounds an RPC reply record. Defaults to oncrpc.DefaultMaxRecordSize.
	maxRecordSize int

	logger logger.Logger
}

// NewSessionConfig creates a session configuration with default values and applies opts.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		portmapperPort: oncrpc.PortmapPort,
		defaultTimeout: 5 * time.Second,
		maxRecordSize:  oncrpc.DefaultMaxRecordSize,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *SessionConfig) ClientID() int32 { return cfg.clientID }

func (cfg *SessionConfig) LockDevice() bool { return cfg.lockDevice }

func (cfg *SessionConfig) LockTimeout() time.Duration { return cfg.lockTimeout }

func (cfg *SessionConfig) WaitLock() bool { return cfg.waitLock }

// TermChar returns the termination character and whether it is enabled.
func (cfg *SessionConfig) TermChar() (byte, bool) { return cfg.termChar, cfg.termCharSet }

func (cfg *SessionConfig) Port() int { return cfg.port }

func (cfg *SessionConfig) PortmapperPort() int { return cfg.portmapperPort }

func (cfg *SessionConfig) DefaultTimeout() time.Duration { return cfg.defaultTimeout }

func (cfg *SessionConfig) Logger() logger.Logger { return cfg.logger }

// SessionOption represents a functional option for configuring a SessionConfig.
type SessionOption interface {
	apply(*SessionConfig) error
}

type sessionOptFunc struct {
	name      string
	applyFunc func(*SessionConfig) error
}

func (o *sessionOptFunc) apply(cfg *SessionConfig) error {
	if cfg == nil {
		return ErrSessionConfigNil
	}

	return o.applyFunc(cfg)
}

func (o *sessionOptFunc) String() string { return o.name }

func newSessionOptFunc(name string, f func(*SessionConfig) error) *sessionOptFunc {
	return &sessionOptFunc{name: name, applyFunc: f}
}

// WithClientID sets the client id sent in create_link.
//
// The default value is 0.
func WithClientID(id int32) SessionOption {
	return newSessionOptFunc("WithClientID", func(cfg *SessionConfig) error {
		cfg.clientID = id
		return nil
	})
}

// WithLockDevice requests an exclusive device lock when the link is created.
// lockTimeout bounds the wait for a lock held by another link and should be between 0 and 1 hour.
//
// The default is no lock.
func WithLockDevice(lock bool, lockTimeout time.Duration) SessionOption {
	return newSessionOptFunc("WithLockDevice", func(cfg *SessionConfig) error {
		if lockTimeout < 0 || lockTimeout > time.Hour {
			return errors.New("lock timeout out of range [0, 1h]")
		}

		cfg.lockDevice = lock
		cfg.lockTimeout = lockTimeout

		return nil
	})
}

// WithWaitLock makes operations wait, within their budget, for a lock held by another link
// instead of failing with "device locked by another link".
//
// The default value is false.
func WithWaitLock(wait bool) SessionOption {
	return newSessionOptFunc("WithWaitLock", func(cfg *SessionConfig) error {
		cfg.waitLock = wait
		return nil
	})
}

// WithTermChar ends every read when the instrument sends the character c.
//
// By default reads end on the END indicator only.
func WithTermChar(c byte) SessionOption {
	return newSessionOptFunc("WithTermChar", func(cfg *SessionConfig) error {
		cfg.termChar = c
		cfg.termCharSet = true

		return nil
	})
}

// WithPort sets a fixed TCP port for the core channel, bypassing the port mapper.
// An error is returned if the port is out of range [0, 65535]; 0 selects the port mapper.
//
// The default value is 0.
func WithPort(port int) SessionOption {
	return newSessionOptFunc("WithPort", func(cfg *SessionConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port is out of range [0, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithPortmapperPort sets the TCP port of the port mapper.
// An error is returned if the port is out of range [1, 65535].
//
// The default value is 111.
func WithPortmapperPort(port int) SessionOption {
	return newSessionOptFunc("WithPortmapperPort", func(cfg *SessionConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port mapper port is out of range [1, 65535]")
		}
		cfg.portmapperPort = port

		return nil
	})
}

// WithDefaultTimeout sets the timeout used by Link, Close and device operations when the
// caller passes no timeout. It should be between 10 milliseconds and 10 minutes.
//
// The default value is 5 seconds.
func WithDefaultTimeout(val time.Duration) SessionOption {
	return newSessionOptFunc("WithDefaultTimeout", func(cfg *SessionConfig) error {
		if val < 10*time.Millisecond || val > 10*time.Minute {
			return errors.New("default timeout out of range [10ms, 10m]")
		}
		cfg.defaultTimeout = val

		return nil
	})
}

// WithMaxRecordSize bounds the size of an RPC reply record accepted from the instrument.
// It should be between 4 KiB and 1 GiB.
//
// The default value is 64 MiB.
func WithMaxRecordSize(size int) SessionOption {
	return newSessionOptFunc("WithMaxRecordSize", func(cfg *SessionConfig) error {
		if size < 4<<10 || size > 1<<30 {
			return errors.New("max record size out of range [4KiB, 1GiB]")
		}
		cfg.maxRecordSize = size

		return nil
	})
}

// WithLogger sets the logger of the session. A nil logger is ignored.
//
// The default is the global logger.
func WithLogger(l logger.Logger) SessionOption {
	return newSessionOptFunc("WithLogger", func(cfg *SessionConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
