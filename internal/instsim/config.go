package instsim

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-lxi/logger"
)

// IDNResponse is the reply of the default responder to "*IDN?".
const IDNResponse = "ACME,MODEL1,SN123,1.0\n"

// Responder produces the response of the instrument to one complete command.
// A nil or empty response leaves the output queue unchanged.
type Responder interface {
	Respond(device string, command []byte) []byte
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(device string, command []byte) []byte

func (f ResponderFunc) Respond(device string, command []byte) []byte { return f(device, command) }

// Config controls the behavior of a simulated instrument. The zero value is a well-behaved
// instrument answering the default command set.
type Config struct {
	// MaxRecvSize is the maximum write chunk advertised in create_link. Defaults to 4096.
	MaxRecvSize uint32

	// ChunkSizes limits the size of successive read chunks of one response. The last entry
	// repeats; zero entries produce empty, non-final chunks. Defaults to MaxRecvSize.
	ChunkSizes []int

	// NeverEnd makes reads return filler data without the END reason until the link is
	// aborted through the abort channel.
	NeverEnd bool

	// WriteAckLimit, when positive, caps the size acknowledged by one device_write.
	WriteAckLimit uint32

	// StallWrites acknowledges zero bytes of every device_write.
	StallWrites bool

	// ReplyDelay delays every device_write and device_read reply.
	ReplyDelay time.Duration

	// WrongXIDProc answers the given core procedure with a mismatched transaction id.
	WrongXIDProc uint32

	// Devices lists the accepted device names. Empty accepts any name.
	Devices []string

	// DestroyErrorCode is returned by destroy_link when non-zero.
	DestroyErrorCode uint32

	// StatusByte is returned by device_readstb.
	StatusByte byte

	// NoAbortChannel advertises abort port 0 in create_link.
	NoAbortChannel bool

	// Responder answers commands. Defaults to DefaultResponder.
	Responder Responder

	Logger logger.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MaxRecvSize == 0 {
		cfg.MaxRecvSize = 4096
	}
	if cfg.Responder == nil {
		cfg.Responder = ResponderFunc(DefaultResponder)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
}

func (cfg *Config) chunkLimit(index int) int {
	if len(cfg.ChunkSizes) == 0 {
		return int(cfg.MaxRecvSize)
	}
	if index >= len(cfg.ChunkSizes) {
		index = len(cfg.ChunkSizes) - 1
	}

	return cfg.ChunkSizes[index]
}

// DefaultResponder answers a small SCPI-like command set:
//
//	*IDN?        identification string
//	*OPC?        "1\n"
//	BLOB? <n>    n bytes of a repeating pattern
//	ECHO? <text> text followed by a newline
//
// Other commands produce no output.
func DefaultResponder(_ string, command []byte) []byte {
	cmd := strings.TrimSpace(string(command))
	upper := strings.ToUpper(cmd)

	switch {
	case upper == "*IDN?":
		return []byte(IDNResponse)
	case upper == "*OPC?":
		return []byte("1\n")
	case strings.HasPrefix(upper, "BLOB? "):
		n, err := strconv.Atoi(strings.TrimSpace(cmd[len("BLOB? "):]))
		if err != nil || n < 0 {
			return nil
		}
		return Pattern(n)
	case strings.HasPrefix(upper, "ECHO? "):
		return append([]byte(cmd[len("ECHO? "):]), '\n')
	default:
		return nil
	}
}

// Pattern returns n bytes of the repeating pattern produced by "BLOB? n".
func Pattern(n int) []byte {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	return bytes.Repeat([]byte(alphabet), n/len(alphabet)+1)[:n]
}
