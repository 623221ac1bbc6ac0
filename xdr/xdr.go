// Package xdr implements the subset of the External Data Representation standard (RFC 4506)
// needed by ONC-RPC and the VXI-11 protocol: unsigned and signed 32-bit integers, booleans,
// fixed and variable-length opaque data and strings.
//
// All quantities are big-endian and every item is padded to a multiple of four bytes.
package xdr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// UnitSize is the XDR basic block size in bytes.
const UnitSize = 4

var (
	// ErrUnexpectedEOF indicates that the input ended in the middle of an item.
	ErrUnexpectedEOF = errors.New("xdr: unexpected end of data")

	// ErrInvalidBool indicates that a boolean item was neither 0 nor 1.
	ErrInvalidBool = errors.New("xdr: invalid boolean value")

	// ErrTooLong indicates that a variable-length item exceeds the caller supplied limit.
	ErrTooLong = errors.New("xdr: variable-length item exceeds limit")
)

// Padding returns the number of zero bytes needed to align n bytes to UnitSize.
func Padding(n int) int {
	return (UnitSize - n%UnitSize) % UnitSize
}

// Encoder appends XDR-encoded items to a byte slice.
//
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an Encoder that appends to buf.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// PutUint32 encodes an unsigned integer.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// PutInt32 encodes a signed integer.
func (e *Encoder) PutInt32(v int32) {
	e.PutUint32(uint32(v)) //nolint:gosec
}

// PutBool encodes a boolean as 0 or 1.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint32(1)
	} else {
		e.PutUint32(0)
	}
}

// PutFixedOpaque encodes p without a length prefix, padded to UnitSize.
func (e *Encoder) PutFixedOpaque(p []byte) {
	e.buf = append(e.buf, p...)
	for i := Padding(len(p)); i > 0; i-- {
		e.buf = append(e.buf, 0)
	}
}

// PutOpaque encodes variable-length opaque data: a length prefix followed by padded data.
func (e *Encoder) PutOpaque(p []byte) {
	e.PutUint32(uint32(len(p))) //nolint:gosec
	e.PutFixedOpaque(p)
}

// PutString encodes a string with the same layout as variable-length opaque data.
func (e *Encoder) PutString(s string) {
	e.PutUint32(uint32(len(s))) //nolint:gosec
	e.buf = append(e.buf, s...)
	for i := Padding(len(s)); i > 0; i-- {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads XDR-encoded items from a byte slice.
type Decoder struct {
	input []byte
	pos   int
}

// NewDecoder creates a Decoder reading from input.
func NewDecoder(input []byte) *Decoder {
	return &Decoder{input: input}
}

// Remaining returns the number of bytes not yet consumed.
func (d *Decoder) Remaining() int {
	return len(d.input) - d.pos
}

// Rest returns the unconsumed bytes without advancing the decoder.
func (d *Decoder) Rest() []byte {
	return d.input[d.pos:]
}

func (d *Decoder) read(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.input) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrUnexpectedEOF, n, d.Remaining())
	}
	result := d.input[d.pos : d.pos+n]
	d.pos += n

	return result, nil
}

// Uint32 decodes an unsigned integer.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.read(UnitSize)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// Int32 decodes a signed integer.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err //nolint:gosec
}

// Bool decodes a boolean. Values other than 0 and 1 are rejected.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}

	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidBool, v)
	}
}

// FixedOpaque decodes n bytes of fixed-length opaque data and skips its padding.
//
// The returned slice aliases the decoder input.
func (d *Decoder) FixedOpaque(n int) ([]byte, error) {
	b, err := d.read(n)
	if err != nil {
		return nil, err
	}
	if _, err := d.read(Padding(n)); err != nil {
		return nil, err
	}

	return b, nil
}

// Opaque decodes variable-length opaque data of at most maxLen bytes.
// A maxLen of 0 or less disables the limit.
//
// The returned slice aliases the decoder input.
func (d *Decoder) Opaque(maxLen int) ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && int64(n) > int64(maxLen) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLong, n, maxLen)
	}
	if int64(n) > int64(d.Remaining()) {
		return nil, fmt.Errorf("%w: opaque length %d, have %d", ErrUnexpectedEOF, n, d.Remaining())
	}

	return d.FixedOpaque(int(n))
}

// String decodes a string of at most maxLen bytes. A maxLen of 0 or less disables the limit.
func (d *Decoder) String(maxLen int) (string, error) {
	b, err := d.Opaque(maxLen)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
