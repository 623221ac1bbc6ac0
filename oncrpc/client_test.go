package oncrpc

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/transport"
	"github.com/arloliu/go-lxi/xdr"
	"github.com/stretchr/testify/require"
)

const (
	testProgram = 0x0607AF
	testVersion = 1
	testProc    = 11
)

// replyFunc builds the reply record for a received call. A nil result sends nothing.
type replyFunc func(hdr CallHeader, args []byte) []byte

// serveCalls answers calls arriving on conn until it is closed.
func serveCalls(conn net.Conn, fn replyFunc) {
	stream := transport.NewConn(conn, logger.NewMockLogger().AllowAll())
	defer stream.Close()

	for {
		record, _, err := ReadRecord(stream, time.Time{}, 0)
		if err != nil {
			return
		}

		hdr, args, err := DecodeCall(record)
		if err != nil {
			return
		}

		if reply := fn(hdr, args); reply != nil {
			if err := WriteRecord(stream, reply, time.Time{}, 0); err != nil {
				return
			}
		}
	}
}

func echoReply(hdr CallHeader, args []byte) []byte {
	return EncodeSuccessReply(nil, hdr.XID, args)
}

// silentStream accepts every write and never delivers a reply.
type silentStream struct{}

func (silentStream) ReadFull(_ []byte, _ time.Time) (int, error) {
	return 0, &transport.TimeoutError{Op: "read"}
}

func (silentStream) WriteAll(_ []byte, _ time.Time) error { return nil }

func (silentStream) Close() error { return nil }

// newLoopbackClient starts a server answering with fn and returns a client connected to it.
func newLoopbackClient(t *testing.T, fn replyFunc) *Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serveCalls(conn, fn)
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	client := NewClient(transport.NewConn(raw, nil), WithLogger(logger.NewMockLogger().AllowAll()))
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func encodeUint32(v uint32) []byte {
	e := xdr.NewEncoder(nil)
	e.PutUint32(v)

	return e.Bytes()
}

func TestEncodeDecodeCall(t *testing.T) {
	require := require.New(t)

	hdr := CallHeader{XID: 0xDEADBEEF, Program: testProgram, Version: testVersion, Procedure: testProc}
	record := EncodeCall(nil, hdr, []byte{1, 2, 3, 4})
	require.Len(record, callHeaderSize+4)

	decoded, args, err := DecodeCall(record)
	require.NoError(err)
	require.Equal(hdr, decoded)
	require.Equal([]byte{1, 2, 3, 4}, args)

	_, _, err = DecodeCall(EncodeSuccessReply(nil, 1, nil))
	require.Error(err)
}

func TestDecodeReply(t *testing.T) {
	require := require.New(t)

	t.Run("Success", func(t *testing.T) {
		reply, err := DecodeReply(EncodeSuccessReply(nil, 7, []byte{0, 0, 0, 9}))
		require.NoError(err)
		require.Equal(uint32(7), reply.XID)
		require.True(reply.Accepted)
		require.NoError(reply.Err())
		require.Equal([]byte{0, 0, 0, 9}, reply.Results)
	})

	t.Run("Program Mismatch", func(t *testing.T) {
		reply, err := DecodeReply(EncodeErrorReply(nil, 7, ProgMismatch, 1, 1))
		require.NoError(err)
		require.Equal(ProgMismatch, reply.AcceptStat)
		require.Equal(uint32(1), reply.Low)
		require.True(IsRPCError(reply.Err(), RemoteFailure))
	})

	t.Run("Denied", func(t *testing.T) {
		reply, err := DecodeReply(EncodeDeniedReply(nil, 7))
		require.NoError(err)
		require.False(reply.Accepted)
		require.Equal(RPCMismatch, reply.RejectStat)

		var rpcErr *RPCError
		require.ErrorAs(reply.Err(), &rpcErr)
		require.True(rpcErr.Denied)
		require.Contains(rpcErr.Error(), "rpc version mismatch")
	})

	t.Run("Not A Reply", func(t *testing.T) {
		_, err := DecodeReply(EncodeCall(nil, CallHeader{XID: 1}, nil))
		require.ErrorIs(err, errNotReply)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := DecodeReply([]byte{0, 0, 0, 1, 0, 0})
		require.ErrorIs(err, xdr.ErrUnexpectedEOF)
	})
}

func TestClient_Call(t *testing.T) {
	require := require.New(t)

	t.Run("Success", func(t *testing.T) {
		client := newLoopbackClient(t, echoReply)

		for i := range uint32(3) {
			results, err := client.Call(testProgram, testVersion, testProc, encodeUint32(i), time.Now().Add(time.Second))
			require.NoError(err)
			require.Equal(encodeUint32(i), results)
		}
		require.False(client.Broken())
	})

	t.Run("Remote Failure Keeps Client Usable", func(t *testing.T) {
		client := newLoopbackClient(t, func(hdr CallHeader, args []byte) []byte {
			if hdr.Procedure == 99 {
				return EncodeErrorReply(nil, hdr.XID, ProcUnavail, 0, 0)
			}
			return echoReply(hdr, args)
		})

		_, err := client.Call(testProgram, testVersion, 99, nil, time.Now().Add(time.Second))
		require.True(IsRPCError(err, RemoteFailure))

		var rpcErr *RPCError
		require.ErrorAs(err, &rpcErr)
		require.Equal(uint32(ProcUnavail), rpcErr.Code)
		require.False(rpcErr.IsFatal())
		require.False(client.Broken())

		_, err = client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Second))
		require.NoError(err)
	})

	t.Run("Procedure Mismatch Breaks Client", func(t *testing.T) {
		client := newLoopbackClient(t, func(hdr CallHeader, args []byte) []byte {
			return EncodeSuccessReply(nil, hdr.XID+100, args)
		})

		_, err := client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Second))
		require.True(IsRPCError(err, ProcedureMismatch))

		var rpcErr *RPCError
		require.ErrorAs(err, &rpcErr)
		require.True(rpcErr.IsFatal())
		require.Equal(rpcErr.ExpectedXID+100, rpcErr.XID)
		require.True(client.Broken())

		_, err = client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Second))
		require.ErrorIs(err, ErrClientBroken)
	})

	t.Run("Malformed Reply Breaks Client", func(t *testing.T) {
		client := newLoopbackClient(t, func(hdr CallHeader, _ []byte) []byte {
			return encodeUint32(hdr.XID)
		})

		_, err := client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Second))
		require.True(IsRPCError(err, MalformedReply))
		require.True(client.Broken())
	})

	t.Run("Oversized Reply Breaks Client", func(t *testing.T) {
		client := newLoopbackClient(t, echoReply)
		WithMaxRecordSize(32)(client)

		_, err := client.Call(testProgram, testVersion, testProc, make([]byte, 64), time.Now().Add(time.Second))
		require.True(IsRPCError(err, MalformedReply))
		require.ErrorIs(err, ErrRecordTooLarge)
		require.True(client.Broken())
	})

	t.Run("Stale Reply Discarded", func(t *testing.T) {
		var mu sync.Mutex
		calls := 0
		client := newLoopbackClient(t, func(hdr CallHeader, args []byte) []byte {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()

			if first {
				time.Sleep(150 * time.Millisecond)
			}
			return echoReply(hdr, args)
		})

		_, err := client.Call(testProgram, testVersion, testProc, encodeUint32(1), time.Now().Add(50*time.Millisecond))
		require.True(transport.IsTimeout(err))
		require.False(client.Broken())

		results, err := client.Call(testProgram, testVersion, testProc, encodeUint32(2), time.Now().Add(time.Second))
		require.NoError(err)
		require.Equal(encodeUint32(2), results)
		require.False(client.Broken())
	})

	t.Run("Stream Closed Breaks Client", func(t *testing.T) {
		client := newLoopbackClient(t, func(CallHeader, []byte) []byte { return nil })
		require.NoError(client.Close())

		_, err := client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Second))
		require.True(transport.IsIOError(err))
		require.True(client.Broken())
	})
}

func TestClient_AbandonedBound(t *testing.T) {
	client := NewClient(silentStream{}, WithLogger(logger.NewMockLogger().AllowAll()))

	for range maxAbandonedCalls + 10 {
		_, err := client.Call(testProgram, testVersion, testProc, nil, time.Now().Add(time.Millisecond))
		require.True(t, transport.IsTimeout(err))
	}

	require.Equal(t, maxAbandonedCalls, client.abandoned.Size())
}

func TestGetPort(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveCalls(conn, func(hdr CallHeader, args []byte) []byte {
				if hdr.Program != PortmapProgram || hdr.Procedure != PortmapProcGetPort {
					return EncodeErrorReply(nil, hdr.XID, ProgUnavail, 0, 0)
				}
				m, err := DecodeMapping(xdr.NewDecoder(args))
				if err != nil {
					return EncodeErrorReply(nil, hdr.XID, GarbageArgs, 0, 0)
				}
				port := uint32(0)
				if m.Program == testProgram && m.Version == testVersion && m.Protocol == ProtoTCP {
					port = 1024
				}
				return EncodeSuccessReply(nil, hdr.XID, encodeUint32(port))
			})
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(err)
	pmapPort, err := strconv.Atoi(portStr)
	require.NoError(err)

	l := logger.NewMockLogger().AllowAll()

	port, err := GetPort(context.Background(), "127.0.0.1", pmapPort, testProgram, testVersion, time.Second, l)
	require.NoError(err)
	require.Equal(1024, port)

	_, err = GetPort(context.Background(), "127.0.0.1", pmapPort, testProgram, 2, time.Second, l)
	require.ErrorIs(err, ErrProgramNotRegistered)
}
