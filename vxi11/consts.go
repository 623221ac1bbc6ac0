package vxi11

import "fmt"

// RPC program numbers and versions of the VXI-11 channels.
const (
	CoreProgram  uint32 = 0x0607AF
	CoreVersion  uint32 = 1
	AbortProgram uint32 = 0x0607B0
	AbortVersion uint32 = 1
)

// Core channel procedures.
const (
	ProcCreateLink    uint32 = 10
	ProcDeviceWrite   uint32 = 11
	ProcDeviceRead    uint32 = 12
	ProcDeviceReadSTB uint32 = 13
	ProcDeviceTrigger uint32 = 14
	ProcDeviceClear   uint32 = 15
	ProcDeviceRemote  uint32 = 16
	ProcDeviceLocal   uint32 = 17
	ProcDeviceLock    uint32 = 18
	ProcDeviceUnlock  uint32 = 19
	ProcDestroyLink   uint32 = 23
)

// ProcDeviceAbort is the only procedure of the abort channel.
const ProcDeviceAbort uint32 = 1

// Operation flags.
const (
	FlagWaitLock    uint32 = 0x01
	FlagEnd         uint32 = 0x08
	FlagTermCharSet uint32 = 0x80
)

// Read termination reasons.
const (
	ReasonRequestCount uint32 = 0x01
	ReasonChr          uint32 = 0x02
	ReasonEnd          uint32 = 0x04
)

// ErrorCode is a Device_ErrorCode returned by the instrument.
type ErrorCode uint32

const (
	ErrCodeNone                ErrorCode = 0
	ErrCodeSyntax              ErrorCode = 1
	ErrCodeNotAccessible       ErrorCode = 3
	ErrCodeInvalidLink         ErrorCode = 4
	ErrCodeParameter           ErrorCode = 5
	ErrCodeChannelNotEstab     ErrorCode = 6
	ErrCodeUnsupported         ErrorCode = 8
	ErrCodeOutOfResources      ErrorCode = 9
	ErrCodeLockedByAnother     ErrorCode = 11
	ErrCodeNoLockHeld          ErrorCode = 12
	ErrCodeIOTimeout           ErrorCode = 15
	ErrCodeIOError             ErrorCode = 17
	ErrCodeInvalidAddress      ErrorCode = 21
	ErrCodeAbort               ErrorCode = 23
	ErrCodeChannelAlreadyEstab ErrorCode = 29
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:                "no error",
	ErrCodeSyntax:              "syntax error",
	ErrCodeNotAccessible:       "device not accessible",
	ErrCodeInvalidLink:         "invalid link identifier",
	ErrCodeParameter:           "parameter error",
	ErrCodeChannelNotEstab:     "channel not established",
	ErrCodeUnsupported:         "operation not supported",
	ErrCodeOutOfResources:      "out of resources",
	ErrCodeLockedByAnother:     "device locked by another link",
	ErrCodeNoLockHeld:          "no lock held by this link",
	ErrCodeIOTimeout:           "I/O timeout",
	ErrCodeIOError:             "I/O error",
	ErrCodeInvalidAddress:      "invalid address",
	ErrCodeAbort:               "abort",
	ErrCodeChannelAlreadyEstab: "channel already established",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("device error %d", uint32(c))
}

const (
	// defaultMaxRecvSize is used when an instrument advertises a maximum receive size of zero.
	// VXI-11 requires instruments to accept at least this many bytes per write.
	defaultMaxRecvSize = 1024

	// maxReadRequest bounds the requestSize of a single device_read call.
	maxReadRequest = 1 << 30
)
