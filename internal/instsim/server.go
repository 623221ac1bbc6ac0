// Package instsim is an in-process VXI-11 instrument used by tests and examples.
//
// One TCP listener serves the port mapper, the core channel and the abort channel.
// The simulated instrument keeps a command input buffer and a response output queue per
// link, and counts every call it receives.
package instsim

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-lxi/internal/util"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/oncrpc"
	"github.com/arloliu/go-lxi/transport"
	"github.com/arloliu/go-lxi/vxi11"
	"github.com/arloliu/go-lxi/xdr"
	"github.com/puzpuzpuz/xsync/v3"
)

// lockPollInterval is how often a waiting lock request retries.
const lockPollInterval = 5 * time.Millisecond

// CallKey identifies a procedure of a program.
type CallKey struct {
	Program   uint32
	Procedure uint32
}

// WriteCall records one device_write received by the instrument.
type WriteCall struct {
	LinkID int32
	Flags  uint32
	Size   int
}

type link struct {
	mu        sync.Mutex
	id        int32
	device    string
	input     []byte
	output    []byte
	readIndex int

	// aborted is set by device_abort and consumed by the next device_read.
	aborted atomic.Bool
}

// Server is a simulated VXI-11 instrument.
type Server struct {
	cfg    Config
	ln     net.Listener
	port   int
	logger logger.Logger

	links      *xsync.MapOf[int32, *link]
	nextLinkID atomic.Int32
	lockOwner  atomic.Int32

	calls  *xsync.MapOf[CallKey, uint64]
	conns  *xsync.MapOf[*transport.Conn, struct{}]
	closed atomic.Bool
	wg     sync.WaitGroup

	writesMu sync.Mutex
	writes   []WriteCall
}

// Start listens on a free loopback port and serves until Close.
func Start(cfg Config) (*Server, error) {
	return Listen("127.0.0.1:0", cfg)
}

// Listen serves on address until Close.
func Listen(address string, cfg Config) (*Server, error) {
	cfg.setDefaults()

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)

	s := &Server{
		cfg:    cfg,
		ln:     ln,
		port:   port,
		logger: cfg.Logger.With("component", "instsim"),
		links:  xsync.NewMapOf[int32, *link](),
		calls:  xsync.NewMapOf[CallKey, uint64](),
		conns:  xsync.NewMapOf[*transport.Conn, struct{}](),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("simulated instrument listening", "address", ln.Addr().String())

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Port returns the listening port. It serves the port mapper, core and abort programs.
func (s *Server) Port() int { return s.port }

// Close stops the listener, closes all connections and waits for them to finish.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.ln.Close()
	s.conns.Range(func(conn *transport.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	s.wg.Wait()

	return err
}

// Calls returns the number of calls received for procedure proc of program prog.
func (s *Server) Calls(prog uint32, proc uint32) uint64 {
	n, _ := s.calls.Load(CallKey{Program: prog, Procedure: proc})
	return n
}

// LinkCount returns the number of open links.
func (s *Server) LinkCount() int { return s.links.Size() }

// LockOwner returns the link holding the device lock, or 0.
func (s *Server) LockOwner() int32 { return s.lockOwner.Load() }

// Writes returns a copy of the device_write calls received so far.
func (s *Server) Writes() []WriteCall {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()

	return util.CloneSlice(s.writes, 0)
}

// Input returns the buffered, not yet terminated command bytes of a link.
func (s *Server) Input(linkID int32) []byte {
	l, ok := s.links.Load(linkID)
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return util.CloneSlice(l.input, 0)
}

// Enqueue appends data to the response queue of a link.
func (s *Server) Enqueue(linkID int32, data []byte) bool {
	l, ok := s.links.Load(linkID)
	if !ok {
		return false
	}

	l.mu.Lock()
	l.output = append(l.output, data...)
	l.mu.Unlock()

	return true
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Error("accept failed", "method", "acceptLoop", "error", err)
			}
			return
		}

		conn := transport.NewConn(raw, s.logger)
		s.conns.Store(conn, struct{}{})

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn *transport.Conn) {
	defer s.wg.Done()
	defer func() {
		s.conns.Delete(conn)
		_ = conn.Close()
	}()

	for {
		record, _, err := oncrpc.ReadRecord(conn, time.Time{}, 0)
		if err != nil {
			if !errors.Is(err, transport.ErrConnClosed) && !s.closed.Load() {
				s.logger.Debug("connection finished", "method", "serveConn", "error", err)
			}
			return
		}

		hdr, args, err := oncrpc.DecodeCall(record)
		if err != nil {
			s.logger.Warn("invalid call record", "method", "serveConn", "error", err)
			return
		}

		s.calls.Compute(CallKey{Program: hdr.Program, Procedure: hdr.Procedure}, func(old uint64, _ bool) (uint64, bool) {
			return old + 1, false
		})

		reply := s.dispatch(hdr, args)
		if err := oncrpc.WriteRecord(conn, reply, time.Time{}, 0); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(hdr oncrpc.CallHeader, args []byte) []byte {
	switch hdr.Program {
	case oncrpc.PortmapProgram:
		if hdr.Version != oncrpc.PortmapVersion {
			return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProgMismatch, oncrpc.PortmapVersion, oncrpc.PortmapVersion)
		}
		return s.portmap(hdr, args)

	case vxi11.CoreProgram:
		if hdr.Version != vxi11.CoreVersion {
			return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProgMismatch, vxi11.CoreVersion, vxi11.CoreVersion)
		}
		return s.core(hdr, args)

	case vxi11.AbortProgram:
		if hdr.Procedure != vxi11.ProcDeviceAbort {
			return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProcUnavail, 0, 0)
		}
		var params vxi11.LinkParms
		if err := vxi11.Unmarshal(args, &params); err != nil {
			return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.GarbageArgs, 0, 0)
		}
		resp := &vxi11.ErrorResp{}
		if l, ok := s.links.Load(params.LinkID); ok {
			l.aborted.Store(true)
		} else {
			resp.Error = vxi11.ErrCodeInvalidLink
		}
		return oncrpc.EncodeSuccessReply(nil, hdr.XID, vxi11.Marshal(resp))

	default:
		return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProgUnavail, 0, 0)
	}
}

func (s *Server) portmap(hdr oncrpc.CallHeader, args []byte) []byte {
	switch hdr.Procedure {
	case oncrpc.PortmapProcNull:
		return oncrpc.EncodeSuccessReply(nil, hdr.XID, nil)

	case oncrpc.PortmapProcGetPort:
		m, err := oncrpc.DecodeMapping(xdr.NewDecoder(args))
		if err != nil {
			return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.GarbageArgs, 0, 0)
		}

		port := uint32(0)
		if m.Protocol == oncrpc.ProtoTCP &&
			((m.Program == vxi11.CoreProgram && m.Version == vxi11.CoreVersion) ||
				(m.Program == vxi11.AbortProgram && m.Version == vxi11.AbortVersion)) {
			port = uint32(s.port) //nolint:gosec
		}

		e := xdr.NewEncoder(nil)
		e.PutUint32(port)

		return oncrpc.EncodeSuccessReply(nil, hdr.XID, e.Bytes())

	default:
		return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProcUnavail, 0, 0)
	}
}

func (s *Server) core(hdr oncrpc.CallHeader, args []byte) []byte {
	var (
		result vxi11.Message
		err    error
	)

	switch hdr.Procedure {
	case vxi11.ProcCreateLink:
		result, err = s.createLink(args)
	case vxi11.ProcDeviceWrite:
		s.delay()
		result, err = s.deviceWrite(args)
	case vxi11.ProcDeviceRead:
		s.delay()
		result, err = s.deviceRead(args)
	case vxi11.ProcDeviceReadSTB:
		result, err = s.deviceReadSTB(args)
	case vxi11.ProcDeviceTrigger, vxi11.ProcDeviceRemote, vxi11.ProcDeviceLocal:
		result, err = s.deviceGeneric(args, nil)
	case vxi11.ProcDeviceClear:
		result, err = s.deviceGeneric(args, func(l *link) {
			l.input = nil
			l.output = nil
			l.readIndex = 0
		})
	case vxi11.ProcDeviceLock:
		result, err = s.deviceLock(args)
	case vxi11.ProcDeviceUnlock:
		result, err = s.deviceUnlock(args)
	case vxi11.ProcDestroyLink:
		result, err = s.destroyLink(args)
	default:
		return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.ProcUnavail, 0, 0)
	}

	if err != nil {
		return oncrpc.EncodeErrorReply(nil, hdr.XID, oncrpc.GarbageArgs, 0, 0)
	}

	xid := hdr.XID
	if s.cfg.WrongXIDProc != 0 && hdr.Procedure == s.cfg.WrongXIDProc {
		xid ^= 0x5A5A
	}

	return oncrpc.EncodeSuccessReply(nil, xid, vxi11.Marshal(result))
}

func (s *Server) delay() {
	if s.cfg.ReplyDelay > 0 {
		time.Sleep(s.cfg.ReplyDelay)
	}
}
