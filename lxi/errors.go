package lxi

import (
	"errors"

	"github.com/arloliu/go-lxi/transport"
	"github.com/arloliu/go-lxi/vxi11"
)

var (
	// ErrInvalidHandle indicates a handle that was never issued or has been released.
	ErrInvalidHandle = errors.New("lxi: invalid handle")

	// ErrClientClosed indicates an operation on a closed Client.
	ErrClientClosed = errors.New("lxi: client closed")

	// ErrInvalidResource indicates a resource string that is not a VXI-11 instrument resource.
	ErrInvalidResource = errors.New("lxi: invalid resource string")

	// ErrNotConnected and the following are re-exported session state errors.
	ErrNotConnected     = vxi11.ErrNotConnected
	ErrAlreadyConnected = vxi11.ErrAlreadyConnected
	ErrBufferTooSmall   = vxi11.ErrBufferTooSmall
)

// IsTimeout reports whether err is caused by an elapsed deadline, at any layer.
func IsTimeout(err error) bool {
	return transport.IsTimeout(err)
}
