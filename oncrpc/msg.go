package oncrpc

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-lxi/xdr"
)

// RPCVersion is the only ONC-RPC protocol version supported.
const RPCVersion = 2

const (
	msgTypeCall  = 0
	msgTypeReply = 1

	replyAccepted = 0
	replyDenied   = 1

	// AuthNone is the AUTH_NONE authentication flavor.
	AuthNone = 0

	// maxAuthBody is the largest opaque_auth body allowed by RFC 5531.
	maxAuthBody = 400

	// callHeaderSize is the encoded size of a call header with AUTH_NONE credentials.
	callHeaderSize = 40
)

// AcceptStat is the status of an accepted reply.
type AcceptStat uint32

const (
	Success      AcceptStat = 0
	ProgUnavail  AcceptStat = 1
	ProgMismatch AcceptStat = 2
	ProcUnavail  AcceptStat = 3
	GarbageArgs  AcceptStat = 4
	SystemErr    AcceptStat = 5
)

func (s AcceptStat) String() string {
	switch s {
	case Success:
		return "success"
	case ProgUnavail:
		return "program unavailable"
	case ProgMismatch:
		return "program version mismatch"
	case ProcUnavail:
		return "procedure unavailable"
	case GarbageArgs:
		return "garbage arguments"
	case SystemErr:
		return "system error"
	default:
		return fmt.Sprintf("accept_stat(%d)", uint32(s))
	}
}

// RejectStat is the status of a denied reply.
type RejectStat uint32

const (
	RPCMismatch RejectStat = 0
	AuthError   RejectStat = 1
)

func (s RejectStat) String() string {
	switch s {
	case RPCMismatch:
		return "rpc version mismatch"
	case AuthError:
		return "authentication error"
	default:
		return fmt.Sprintf("reject_stat(%d)", uint32(s))
	}
}

var errNotReply = errors.New("message is not a reply")

// CallHeader identifies a remote procedure call.
type CallHeader struct {
	XID       uint32
	Program   uint32
	Version   uint32
	Procedure uint32
}

// EncodeCall appends a call message with AUTH_NONE credentials and args to buf.
func EncodeCall(buf []byte, hdr CallHeader, args []byte) []byte {
	e := xdr.NewEncoder(buf)
	e.PutUint32(hdr.XID)
	e.PutUint32(msgTypeCall)
	e.PutUint32(RPCVersion)
	e.PutUint32(hdr.Program)
	e.PutUint32(hdr.Version)
	e.PutUint32(hdr.Procedure)
	// credentials and verifier
	e.PutUint32(AuthNone)
	e.PutUint32(0)
	e.PutUint32(AuthNone)
	e.PutUint32(0)

	return append(e.Bytes(), args...)
}

// DecodeCall decodes a call message and returns its header and raw arguments.
// Credentials and verifier are skipped.
func DecodeCall(record []byte) (CallHeader, []byte, error) {
	var hdr CallHeader

	d := xdr.NewDecoder(record)
	var err error
	if hdr.XID, err = d.Uint32(); err != nil {
		return hdr, nil, err
	}

	mtype, err := d.Uint32()
	if err != nil {
		return hdr, nil, err
	}
	if mtype != msgTypeCall {
		return hdr, nil, fmt.Errorf("message type %d is not a call", mtype)
	}

	rpcvers, err := d.Uint32()
	if err != nil {
		return hdr, nil, err
	}
	if rpcvers != RPCVersion {
		return hdr, nil, fmt.Errorf("unsupported rpc version %d", rpcvers)
	}

	if hdr.Program, err = d.Uint32(); err != nil {
		return hdr, nil, err
	}
	if hdr.Version, err = d.Uint32(); err != nil {
		return hdr, nil, err
	}
	if hdr.Procedure, err = d.Uint32(); err != nil {
		return hdr, nil, err
	}

	for range 2 {
		if err := skipAuth(d); err != nil {
			return hdr, nil, err
		}
	}

	return hdr, d.Rest(), nil
}

// Reply is a decoded reply message.
type Reply struct {
	XID uint32

	Accepted   bool
	AcceptStat AcceptStat
	RejectStat RejectStat

	// Low and High carry the supported version range of a PROG_MISMATCH or RPC_MISMATCH reply.
	Low  uint32
	High uint32

	// Results holds the procedure results of a successful reply. It aliases the record.
	Results []byte
}

// Err converts an unsuccessful reply into an RPCError with kind RemoteFailure.
func (r *Reply) Err() error {
	if !r.Accepted {
		return &RPCError{Kind: RemoteFailure, Denied: true, Code: uint32(r.RejectStat), XID: r.XID}
	}
	if r.AcceptStat != Success {
		return &RPCError{Kind: RemoteFailure, Code: uint32(r.AcceptStat), XID: r.XID}
	}

	return nil
}

// DecodeReply decodes a reply message.
func DecodeReply(record []byte) (*Reply, error) {
	d := xdr.NewDecoder(record)
	reply := &Reply{}

	var err error
	if reply.XID, err = d.Uint32(); err != nil {
		return nil, err
	}

	mtype, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if mtype != msgTypeReply {
		return nil, fmt.Errorf("%w: message type %d", errNotReply, mtype)
	}

	stat, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	switch stat {
	case replyAccepted:
		reply.Accepted = true
		if err := skipAuth(d); err != nil {
			return nil, err
		}

		acceptStat, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		reply.AcceptStat = AcceptStat(acceptStat)

		switch reply.AcceptStat {
		case Success:
			reply.Results = d.Rest()
		case ProgMismatch:
			if reply.Low, err = d.Uint32(); err != nil {
				return nil, err
			}
			if reply.High, err = d.Uint32(); err != nil {
				return nil, err
			}
		}

	case replyDenied:
		rejectStat, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		reply.RejectStat = RejectStat(rejectStat)

		switch reply.RejectStat {
		case RPCMismatch:
			if reply.Low, err = d.Uint32(); err != nil {
				return nil, err
			}
			if reply.High, err = d.Uint32(); err != nil {
				return nil, err
			}
		case AuthError:
			if _, err := d.Uint32(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown reject status %d", rejectStat)
		}

	default:
		return nil, fmt.Errorf("unknown reply status %d", stat)
	}

	return reply, nil
}

// EncodeSuccessReply appends an accepted reply with SUCCESS status and results to buf.
func EncodeSuccessReply(buf []byte, xid uint32, results []byte) []byte {
	e := acceptedReplyHeader(buf, xid, Success)
	return append(e.Bytes(), results...)
}

// EncodeErrorReply appends an accepted reply with an unsuccessful status to buf.
// For ProgMismatch the supported version range low..high is included.
func EncodeErrorReply(buf []byte, xid uint32, stat AcceptStat, low uint32, high uint32) []byte {
	e := acceptedReplyHeader(buf, xid, stat)
	if stat == ProgMismatch {
		e.PutUint32(low)
		e.PutUint32(high)
	}

	return e.Bytes()
}

// EncodeDeniedReply appends an RPC_MISMATCH denied reply to buf.
func EncodeDeniedReply(buf []byte, xid uint32) []byte {
	e := xdr.NewEncoder(buf)
	e.PutUint32(xid)
	e.PutUint32(msgTypeReply)
	e.PutUint32(replyDenied)
	e.PutUint32(uint32(RPCMismatch))
	e.PutUint32(RPCVersion)
	e.PutUint32(RPCVersion)

	return e.Bytes()
}

func acceptedReplyHeader(buf []byte, xid uint32, stat AcceptStat) *xdr.Encoder {
	e := xdr.NewEncoder(buf)
	e.PutUint32(xid)
	e.PutUint32(msgTypeReply)
	e.PutUint32(replyAccepted)
	e.PutUint32(AuthNone)
	e.PutUint32(0)
	e.PutUint32(uint32(stat))

	return e
}

func skipAuth(d *xdr.Decoder) error {
	if _, err := d.Uint32(); err != nil {
		return err
	}
	_, err := d.Opaque(maxAuthBody)

	return err
}
