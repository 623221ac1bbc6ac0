package oncrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/transport"
	"github.com/arloliu/go-lxi/xdr"
)

// Port mapper program constants (RFC 1833, version 2).
const (
	PortmapProgram = 100000
	PortmapVersion = 2
	PortmapPort    = 111

	PortmapProcNull    = 0
	PortmapProcGetPort = 3

	// ProtoTCP is the protocol number of TCP in a port mapping.
	ProtoTCP = 6
)

// Mapping is a port mapper mapping entry.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

// Encode appends the XDR form of m.
func (m Mapping) Encode(e *xdr.Encoder) {
	e.PutUint32(m.Program)
	e.PutUint32(m.Version)
	e.PutUint32(m.Protocol)
	e.PutUint32(m.Port)
}

// DecodeMapping decodes a mapping entry.
func DecodeMapping(d *xdr.Decoder) (Mapping, error) {
	var m Mapping
	var err error
	if m.Program, err = d.Uint32(); err != nil {
		return m, err
	}
	if m.Version, err = d.Uint32(); err != nil {
		return m, err
	}
	if m.Protocol, err = d.Uint32(); err != nil {
		return m, err
	}
	m.Port, err = d.Uint32()

	return m, err
}

// GetPort asks the port mapper at host:pmapPort for the TCP port of program prog, version vers.
// A pmapPort of 0 selects the standard port 111.
//
// The whole exchange, including the dial, must finish within timeout.
func GetPort(ctx context.Context, host string, pmapPort int, prog uint32, vers uint32, timeout time.Duration, l logger.Logger) (int, error) {
	if pmapPort == 0 {
		pmapPort = PortmapPort
	}
	if l == nil {
		l = logger.GetLogger()
	}

	deadline := time.Now().Add(timeout)

	conn, err := transport.Dial(ctx, host, pmapPort, timeout, l)
	if err != nil {
		return 0, err
	}

	client := NewClient(conn, WithLogger(l))
	defer client.Close()

	e := xdr.NewEncoder(nil)
	Mapping{Program: prog, Version: vers, Protocol: ProtoTCP}.Encode(e)

	results, err := client.Call(PortmapProgram, PortmapVersion, PortmapProcGetPort, e.Bytes(), deadline)
	if err != nil {
		return 0, fmt.Errorf("portmap getport: %w", err)
	}

	port, err := xdr.NewDecoder(results).Uint32()
	if err != nil {
		return 0, &RPCError{Kind: MalformedReply, Err: err}
	}
	if port == 0 || port > 65535 {
		return 0, fmt.Errorf("%w: program %d version %d", ErrProgramNotRegistered, prog, vers)
	}

	l.Debug("port mapper lookup", "method", "GetPort", "host", host, "program", prog, "version", vers, "port", port)

	return int(port), nil
}
