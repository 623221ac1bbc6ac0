package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/arloliu/go-lxi/logger"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return ln, port
}

// acceptOne accepts a single connection and hands it to fn in a goroutine.
func acceptOne(t *testing.T, ln net.Listener, fn func(net.Conn)) {
	t.Helper()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fn(conn)
	}()
}

func TestDial(t *testing.T) {
	require := require.New(t)

	t.Run("Connected", func(t *testing.T) {
		ln, port := listen(t)
		acceptOne(t, ln, func(c net.Conn) {
			_, _ = c.Write([]byte("ok"))
		})

		conn, err := Dial(context.Background(), "127.0.0.1", port, time.Second, logger.NewMockLogger().AllowAll())
		require.NoError(err)
		defer conn.Close()

		buf := make([]byte, 2)
		n, err := conn.ReadFull(buf, time.Now().Add(time.Second))
		require.NoError(err)
		require.Equal(2, n)
		require.Equal("ok", string(buf))
	})

	t.Run("Refused", func(t *testing.T) {
		ln, port := listen(t)
		_ = ln.Close()

		_, err := Dial(context.Background(), "127.0.0.1", port, time.Second, nil)
		require.Error(err)

		var connErr *ConnectError
		require.ErrorAs(err, &connErr)
		require.Equal("127.0.0.1:"+strconv.Itoa(port), connErr.Address)
		require.False(IsTimeout(err))
	})

	t.Run("Invalid Port", func(t *testing.T) {
		_, err := Dial(context.Background(), "127.0.0.1", 0, time.Second, nil)
		var connErr *ConnectError
		require.ErrorAs(err, &connErr)
	})

	t.Run("Canceled Context", func(t *testing.T) {
		_, port := listen(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Dial(ctx, "127.0.0.1", port, time.Second, nil)
		var connErr *ConnectError
		require.ErrorAs(err, &connErr)
	})
}

func TestConn_ReadTimeout(t *testing.T) {
	require := require.New(t)

	t.Run("No Progress", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		conn := NewConn(client, nil)
		defer conn.Close()

		begin := time.Now()
		n, err := conn.ReadFull(make([]byte, 4), time.Now().Add(50*time.Millisecond))
		require.GreaterOrEqual(time.Since(begin), 45*time.Millisecond)
		require.Zero(n)
		require.True(IsTimeout(err))

		var timeoutErr *TimeoutError
		require.ErrorAs(err, &timeoutErr)
		require.Zero(timeoutErr.N)
		require.True(timeoutErr.Timeout())
	})

	t.Run("Partial Progress", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		conn := NewConn(client, nil)
		defer conn.Close()

		go func() { _, _ = server.Write([]byte{0x80, 0x00}) }()

		n, err := conn.ReadFull(make([]byte, 4), time.Now().Add(100*time.Millisecond))
		require.Equal(2, n)

		var timeoutErr *TimeoutError
		require.ErrorAs(err, &timeoutErr)
		require.Equal(2, timeoutErr.N)
	})
}

func TestConn_ReadEOF(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(client, nil)
	defer conn.Close()

	go func() {
		_, _ = server.Write([]byte{1})
		_ = server.Close()
	}()

	_, err := conn.ReadFull(make([]byte, 4), time.Now().Add(time.Second))
	require.Error(t, err)
	require.True(t, IsIOError(err))
	require.False(t, IsTimeout(err))
}

func TestConn_WriteAll(t *testing.T) {
	require := require.New(t)

	t.Run("Success", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		conn := NewConn(client, nil)
		defer conn.Close()

		received := make(chan []byte, 1)
		go func() {
			buf := make([]byte, 5)
			_, _ = server.Read(buf)
			received <- buf
		}()

		require.NoError(conn.WriteAll([]byte("*IDN?"), time.Now().Add(time.Second)))
		require.Equal("*IDN?", string(<-received))
	})

	t.Run("Timeout", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		conn := NewConn(client, nil)
		defer conn.Close()

		err := conn.WriteAll([]byte("*IDN?"), time.Now().Add(50*time.Millisecond))
		require.True(IsTimeout(err))
	})
}

func TestConn_Close(t *testing.T) {
	require := require.New(t)

	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, nil)

	require.False(conn.IsClosed())
	require.NoError(conn.Close())
	require.NoError(conn.Close())
	require.True(conn.IsClosed())

	err := conn.WriteAll([]byte{1}, time.Time{})
	require.ErrorIs(err, ErrConnClosed)

	_, err = conn.ReadFull(make([]byte, 1), time.Time{})
	require.ErrorIs(err, ErrConnClosed)
}
