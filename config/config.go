// Package config loads instrument profiles from TOML or YAML files and turns them into
// lxi client options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/lxi"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format int

const (
	FormatTOML Format = iota + 1
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat indicates a file extension other than .toml, .yaml or .yml.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Config is the content of a configuration file.
type Config struct {
	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// ClientID is sent in create_link by every session.
	ClientID int32 `toml:"client_id" yaml:"client_id"`

	// PortmapperPort is the port of the instruments' port mapper.
	PortmapperPort int `toml:"portmapper_port" yaml:"portmapper_port"`

	// TimeoutMillis is the default operation timeout.
	TimeoutMillis int `toml:"timeout_ms" yaml:"timeout_ms"`

	Instruments []Instrument `toml:"instrument" yaml:"instruments"`
}

// Instrument is a named instrument profile.
type Instrument struct {
	Name string `toml:"name" yaml:"name"`

	// Resource is a VISA resource string. It takes precedence over Host and Device.
	Resource string `toml:"resource,omitempty" yaml:"resource,omitempty"`
	Host     string `toml:"host,omitempty" yaml:"host,omitempty"`
	Device   string `toml:"device,omitempty" yaml:"device,omitempty"`

	// Port is a fixed core channel port; 0 uses the port mapper.
	Port int `toml:"port,omitempty" yaml:"port,omitempty"`

	LockDevice        bool `toml:"lock_device,omitempty" yaml:"lock_device,omitempty"`
	LockTimeoutMillis int  `toml:"lock_timeout_ms,omitempty" yaml:"lock_timeout_ms,omitempty"`
	WaitLock          bool `toml:"wait_lock,omitempty" yaml:"wait_lock,omitempty"`

	// TermChar is a single character, or an escape such as "\n", that ends every read.
	TermChar string `toml:"term_char,omitempty" yaml:"term_char,omitempty"`

	// MaxBytes is the receive capacity used for this instrument.
	MaxBytes int `toml:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
}

// DefaultConfig returns the configuration used for settings absent from a file.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		PortmapperPort: 111,
		TimeoutMillis:  5000,
	}
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Load reads a configuration file. The format follows the file extension.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes configuration data over the defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := DefaultConfig()

	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
		}

	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

	default:
		return nil, ErrUnknownFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		err = toml.NewEncoder(&buf).Encode(cfg)
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// Validate checks value ranges and instrument names.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PortmapperPort < 1 || c.PortmapperPort > 65535 {
		return fmt.Errorf("portmapper_port %d out of range [1, 65535]", c.PortmapperPort)
	}
	if c.TimeoutMillis < 10 || c.TimeoutMillis > 600_000 {
		return fmt.Errorf("timeout_ms %d out of range [10, 600000]", c.TimeoutMillis)
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		if inst.Name == "" {
			return fmt.Errorf("instrument #%d has no name", i+1)
		}
		if _, dup := seen[inst.Name]; dup {
			return fmt.Errorf("duplicate instrument %q", inst.Name)
		}
		seen[inst.Name] = struct{}{}

		if err := inst.validate(); err != nil {
			return fmt.Errorf("instrument %q: %w", inst.Name, err)
		}
	}

	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Timeout returns the default operation timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Instrument returns the profile called name.
func (c *Config) Instrument(name string) (*Instrument, bool) {
	for i := range c.Instruments {
		if c.Instruments[i].Name == name {
			return &c.Instruments[i], true
		}
	}

	return nil, false
}

// ClientOptions returns the client options of the file-wide settings followed by the
// settings of inst. inst may be nil.
func (c *Config) ClientOptions(inst *Instrument) []lxi.Option {
	opts := []lxi.Option{
		lxi.WithClientID(c.ClientID),
		lxi.WithPortmapperPort(c.PortmapperPort),
		lxi.WithDefaultTimeout(c.Timeout()),
	}

	if inst == nil {
		return opts
	}

	if inst.Port != 0 {
		opts = append(opts, lxi.WithPort(inst.Port))
	}
	if inst.LockDevice {
		opts = append(opts, lxi.WithLockDevice(true, time.Duration(inst.LockTimeoutMillis)*time.Millisecond))
	}
	if inst.WaitLock {
		opts = append(opts, lxi.WithWaitLock(true))
	}
	if ch, ok, _ := inst.termChar(); ok {
		opts = append(opts, lxi.WithTermChar(ch))
	}

	return opts
}

// Address returns the instrument address, from Resource when set.
func (i *Instrument) Address() (lxi.Address, error) {
	if i.Resource != "" {
		return lxi.ParseResource(i.Resource)
	}

	device := i.Device
	if device == "" {
		device = lxi.DefaultSubAddress
	}

	return lxi.Address{Host: i.Host, SubAddress: device}, nil
}

func (i *Instrument) validate() error {
	if i.Resource == "" && i.Host == "" {
		return errors.New("either resource or host is required")
	}
	if _, err := i.Address(); err != nil {
		return err
	}
	if i.Port < 0 || i.Port > 65535 {
		return fmt.Errorf("port %d out of range [0, 65535]", i.Port)
	}
	if i.LockTimeoutMillis < 0 {
		return fmt.Errorf("lock_timeout_ms %d is negative", i.LockTimeoutMillis)
	}
	if i.MaxBytes < 0 {
		return fmt.Errorf("max_bytes %d is negative", i.MaxBytes)
	}
	if _, _, err := i.termChar(); err != nil {
		return err
	}

	return nil
}

// termChar decodes TermChar. ok is false when no termination character is configured.
func (i *Instrument) termChar() (c byte, ok bool, err error) {
	if i.TermChar == "" {
		return 0, false, nil
	}

	s := i.TermChar
	if strings.HasPrefix(s, `\`) {
		if s, err = strconv.Unquote(`"` + s + `"`); err != nil {
			return 0, false, fmt.Errorf("term_char %q: %w", i.TermChar, err)
		}
	}
	if len(s) != 1 {
		return 0, false, fmt.Errorf("term_char %q is not a single byte", i.TermChar)
	}

	return s[0], true, nil
}
