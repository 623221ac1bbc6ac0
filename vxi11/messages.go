package vxi11

import (
	"github.com/arloliu/go-lxi/xdr"
)

// maxDeviceNameLen bounds the device name accepted in a create_link call.
const maxDeviceNameLen = 256

// CreateLinkParms is the argument of create_link.
type CreateLinkParms struct {
	ClientID    int32
	LockDevice  bool
	LockTimeout uint32
	Device      string
}

func (p *CreateLinkParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.ClientID)
	e.PutBool(p.LockDevice)
	e.PutUint32(p.LockTimeout)
	e.PutString(p.Device)
}

func (p *CreateLinkParms) Decode(d *xdr.Decoder) error {
	var err error
	if p.ClientID, err = d.Int32(); err != nil {
		return err
	}
	if p.LockDevice, err = d.Bool(); err != nil {
		return err
	}
	if p.LockTimeout, err = d.Uint32(); err != nil {
		return err
	}
	p.Device, err = d.String(maxDeviceNameLen)

	return err
}

// CreateLinkResp is the result of create_link.
type CreateLinkResp struct {
	Error       ErrorCode
	LinkID      int32
	AbortPort   uint16
	MaxRecvSize uint32
}

func (r *CreateLinkResp) Encode(e *xdr.Encoder) {
	e.PutUint32(uint32(r.Error))
	e.PutInt32(r.LinkID)
	e.PutUint32(uint32(r.AbortPort))
	e.PutUint32(r.MaxRecvSize)
}

func (r *CreateLinkResp) Decode(d *xdr.Decoder) error {
	code, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Error = ErrorCode(code)

	if r.LinkID, err = d.Int32(); err != nil {
		return err
	}

	port, err := d.Uint32()
	if err != nil {
		return err
	}
	r.AbortPort = uint16(port) //nolint:gosec

	r.MaxRecvSize, err = d.Uint32()

	return err
}

// WriteParms is the argument of device_write.
type WriteParms struct {
	LinkID      int32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	Data        []byte
}

func (p *WriteParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.LinkID)
	e.PutUint32(p.IOTimeout)
	e.PutUint32(p.LockTimeout)
	e.PutUint32(p.Flags)
	e.PutOpaque(p.Data)
}

func (p *WriteParms) Decode(d *xdr.Decoder) error {
	var err error
	if p.LinkID, err = d.Int32(); err != nil {
		return err
	}
	if p.IOTimeout, err = d.Uint32(); err != nil {
		return err
	}
	if p.LockTimeout, err = d.Uint32(); err != nil {
		return err
	}
	if p.Flags, err = d.Uint32(); err != nil {
		return err
	}
	p.Data, err = d.Opaque(0)

	return err
}

// WriteResp is the result of device_write. Size is the number of bytes accepted.
type WriteResp struct {
	Error ErrorCode
	Size  uint32
}

func (r *WriteResp) Encode(e *xdr.Encoder) {
	e.PutUint32(uint32(r.Error))
	e.PutUint32(r.Size)
}

func (r *WriteResp) Decode(d *xdr.Decoder) error {
	code, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Error = ErrorCode(code)
	r.Size, err = d.Uint32()

	return err
}

// ReadParms is the argument of device_read.
type ReadParms struct {
	LinkID      int32
	RequestSize uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	TermChar    byte
}

func (p *ReadParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.LinkID)
	e.PutUint32(p.RequestSize)
	e.PutUint32(p.IOTimeout)
	e.PutUint32(p.LockTimeout)
	e.PutUint32(p.Flags)
	e.PutUint32(uint32(p.TermChar))
}

func (p *ReadParms) Decode(d *xdr.Decoder) error {
	var err error
	if p.LinkID, err = d.Int32(); err != nil {
		return err
	}
	if p.RequestSize, err = d.Uint32(); err != nil {
		return err
	}
	if p.IOTimeout, err = d.Uint32(); err != nil {
		return err
	}
	if p.LockTimeout, err = d.Uint32(); err != nil {
		return err
	}
	if p.Flags, err = d.Uint32(); err != nil {
		return err
	}

	termChar, err := d.Uint32()
	p.TermChar = byte(termChar) //nolint:gosec

	return err
}

// ReadResp is the result of device_read. Data aliases the decoded record.
type ReadResp struct {
	Error  ErrorCode
	Reason uint32
	Data   []byte
}

func (r *ReadResp) Encode(e *xdr.Encoder) {
	e.PutUint32(uint32(r.Error))
	e.PutUint32(r.Reason)
	e.PutOpaque(r.Data)
}

func (r *ReadResp) Decode(d *xdr.Decoder) error {
	code, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Error = ErrorCode(code)

	if r.Reason, err = d.Uint32(); err != nil {
		return err
	}
	r.Data, err = d.Opaque(0)

	return err
}

// GenericParms is the argument of device_trigger, device_clear, device_remote and device_local.
type GenericParms struct {
	LinkID      int32
	Flags       uint32
	LockTimeout uint32
	IOTimeout   uint32
}

func (p *GenericParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.LinkID)
	e.PutUint32(p.Flags)
	e.PutUint32(p.LockTimeout)
	e.PutUint32(p.IOTimeout)
}

func (p *GenericParms) Decode(d *xdr.Decoder) error {
	var err error
	if p.LinkID, err = d.Int32(); err != nil {
		return err
	}
	if p.Flags, err = d.Uint32(); err != nil {
		return err
	}
	if p.LockTimeout, err = d.Uint32(); err != nil {
		return err
	}
	p.IOTimeout, err = d.Uint32()

	return err
}

// LockParms is the argument of device_lock.
type LockParms struct {
	LinkID      int32
	Flags       uint32
	LockTimeout uint32
}

func (p *LockParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.LinkID)
	e.PutUint32(p.Flags)
	e.PutUint32(p.LockTimeout)
}

func (p *LockParms) Decode(d *xdr.Decoder) error {
	var err error
	if p.LinkID, err = d.Int32(); err != nil {
		return err
	}
	if p.Flags, err = d.Uint32(); err != nil {
		return err
	}
	p.LockTimeout, err = d.Uint32()

	return err
}

// ReadSTBResp is the result of device_readstb.
type ReadSTBResp struct {
	Error ErrorCode
	STB   byte
}

func (r *ReadSTBResp) Encode(e *xdr.Encoder) {
	e.PutUint32(uint32(r.Error))
	e.PutUint32(uint32(r.STB))
}

func (r *ReadSTBResp) Decode(d *xdr.Decoder) error {
	code, err := d.Uint32()
	if err != nil {
		return err
	}
	r.Error = ErrorCode(code)

	stb, err := d.Uint32()
	r.STB = byte(stb) //nolint:gosec

	return err
}

// ErrorResp is the Device_Error result shared by most procedures.
type ErrorResp struct {
	Error ErrorCode
}

func (r *ErrorResp) Encode(e *xdr.Encoder) {
	e.PutUint32(uint32(r.Error))
}

func (r *ErrorResp) Decode(d *xdr.Decoder) error {
	code, err := d.Uint32()
	r.Error = ErrorCode(code)

	return err
}

// LinkParms is the argument of destroy_link and device_abort.
type LinkParms struct {
	LinkID int32
}

func (p *LinkParms) Encode(e *xdr.Encoder) {
	e.PutInt32(p.LinkID)
}

func (p *LinkParms) Decode(d *xdr.Decoder) error {
	var err error
	p.LinkID, err = d.Int32()

	return err
}

// Message is implemented by every VXI-11 argument and result type.
type Message interface {
	Encode(e *xdr.Encoder)
	Decode(d *xdr.Decoder) error
}

// Marshal returns the XDR encoding of m.
func Marshal(m Message) []byte {
	e := xdr.NewEncoder(nil)
	m.Encode(e)

	return e.Bytes()
}

// Unmarshal decodes data into m. Trailing bytes are ignored.
func Unmarshal(data []byte, m Message) error {
	return m.Decode(xdr.NewDecoder(data))
}
