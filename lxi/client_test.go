package lxi

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-lxi/internal/instsim"
	"github.com/arloliu/go-lxi/logger"
	"github.com/arloliu/go-lxi/vxi11"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

func newTestClient(t *testing.T, cfg instsim.Config, opts ...Option) (*Client, *instsim.Server) {
	t.Helper()

	srv, err := instsim.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	opts = append([]Option{WithPort(srv.Port()), WithDefaultTimeout(2 * time.Second)}, opts...)
	client, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, srv
}

func TestClient_IDNScenario(t *testing.T) {
	require := require.New(t)

	client, srv := newTestClient(t, instsim.Config{})
	ctx := context.Background()

	h, err := client.NewHandle(Address{Host: "127.0.0.1", SubAddress: "inst0"})
	require.NoError(err)
	state, err := client.State(h)
	require.NoError(err)
	require.Equal(vxi11.UnconnectedState, state)

	require.NoError(client.Link(ctx, h, 1000))
	state, _ = client.State(h)
	require.Equal(vxi11.LinkedState, state)

	require.NoError(client.Send(h, []byte("*IDN?"), 1000))
	reply, err := client.Receive(h, 65536, 1000)
	require.NoError(err)
	require.Equal("ACME,MODEL1,SN123,1.0\n", string(reply))

	require.NoError(client.Disconnect(h))
	state, _ = client.State(h)
	require.Equal(vxi11.ClosedState, state)

	require.Equal(uint64(1), srv.Calls(vxi11.CoreProgram, vxi11.ProcDeviceWrite))
	require.Equal(uint64(1), srv.Calls(vxi11.CoreProgram, vxi11.ProcDeviceRead))
	require.Zero(srv.LinkCount())
}

func TestClient_LargeResponse(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient(t, instsim.Config{MaxRecvSize: 32768})

	h, err := client.Connect(context.Background(), "127.0.0.1", "inst0", 1000)
	require.NoError(err)

	require.NoError(client.Send(h, []byte("BLOB? 40000"), 1000))
	reply, err := client.Receive(h, 65536, 1000)
	require.NoError(err)
	require.Equal(instsim.Pattern(40000), reply)

	require.NoError(client.Send(h, []byte("BLOB? 40000"), 1000))
	reply, err = client.Receive(h, 30000, 1000)
	require.ErrorIs(err, ErrBufferTooSmall)
	require.Nil(reply)
}

func TestClient_StateMachine(t *testing.T) {
	require := require.New(t)

	client, srv := newTestClient(t, instsim.Config{})
	ctx := context.Background()

	h, err := client.NewHandle(Address{Host: "127.0.0.1"})
	require.NoError(err)

	// unconnected
	require.ErrorIs(client.Send(h, []byte("*IDN?"), 100), ErrNotConnected)
	_, err = client.Receive(h, 100, 100)
	require.ErrorIs(err, ErrNotConnected)

	// linked
	require.NoError(client.Link(ctx, h, 1000))
	require.ErrorIs(client.Link(ctx, h, 1000), ErrAlreadyConnected)

	// closed, twice
	require.NoError(client.Disconnect(h))
	require.NoError(client.Disconnect(h))
	require.Equal(uint64(1), srv.Calls(vxi11.CoreProgram, vxi11.ProcDestroyLink))

	require.ErrorIs(client.Send(h, []byte("*IDN?"), 100), ErrNotConnected)
	require.ErrorIs(client.Link(ctx, h, 1000), ErrAlreadyConnected)

	// released
	require.NoError(client.Release(h))
	require.ErrorIs(client.Release(h), ErrInvalidHandle)
	require.ErrorIs(client.Disconnect(h), ErrInvalidHandle)
	require.ErrorIs(client.Send(h, nil, 100), ErrInvalidHandle)
	_, err = client.State(h)
	require.ErrorIs(err, ErrInvalidHandle)
}

func TestClient_DisconnectLogsTeardownFailure(t *testing.T) {
	require := require.New(t)

	mockLogger := logger.NewMockLogger().AllowAll()
	client, srv := newTestClient(t, instsim.Config{DestroyErrorCode: uint32(vxi11.ErrCodeIOError)}, WithLogger(mockLogger))

	h, err := client.Connect(context.Background(), "127.0.0.1", "inst0", 1000)
	require.NoError(err)

	require.NoError(client.Disconnect(h))
	require.Zero(srv.LinkCount())
	mockLogger.AssertCalled(t, "Warn", "remote teardown failed, connection released", mock.Anything)

	state, _ := client.State(h)
	require.Equal(vxi11.ClosedState, state)
}

func TestClient_ConnectFailure(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient(t, instsim.Config{Devices: []string{"inst0"}})

	_, err := client.Connect(context.Background(), "127.0.0.1", "inst1", 1000)
	require.True(vxi11.IsDeviceError(err, vxi11.ErrCodeInvalidAddress))
	require.Zero(client.Registry().Len())
}

func TestClient_Timeout(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient(t, instsim.Config{NeverEnd: true, ReplyDelay: 5 * time.Millisecond})

	h, err := client.Connect(context.Background(), "127.0.0.1", "inst0", 1000)
	require.NoError(err)

	start := time.Now()
	reply, err := client.Receive(h, 1<<20, 150)
	require.True(IsTimeout(err))
	require.Nil(reply)
	require.GreaterOrEqual(time.Since(start), 150*time.Millisecond)

	state, _ := client.State(h)
	require.Equal(vxi11.LinkedState, state)
}

func TestClient_TransportFailureForcesClose(t *testing.T) {
	require := require.New(t)

	client, srv := newTestClient(t, instsim.Config{})

	h, err := client.Connect(context.Background(), "127.0.0.1", "inst0", 1000)
	require.NoError(err)
	require.NoError(srv.Close())

	require.Error(client.Send(h, []byte("*IDN?"), 1000))
	state, err := client.State(h)
	require.NoError(err)
	require.Equal(vxi11.ClosedState, state)

	_, err = client.Receive(h, 64, 1000)
	require.ErrorIs(err, ErrNotConnected)
	require.NoError(client.Disconnect(h))
}

func TestClient_DeviceOperations(t *testing.T) {
	require := require.New(t)

	client, srv := newTestClient(t, instsim.Config{StatusByte: 0x10})
	ctx := context.Background()

	h, err := client.ConnectResource(ctx, "TCPIP0::127.0.0.1::inst0::INSTR", 1000)
	require.NoError(err)

	stb, err := client.ReadStatusByte(h, 1000)
	require.NoError(err)
	require.Equal(byte(0x10), stb)

	require.NoError(client.Trigger(h, 1000))
	require.NoError(client.Clear(h, 1000))
	require.NoError(client.Remote(h, 1000))
	require.NoError(client.Local(h, 1000))
	require.NoError(client.Lock(h, 1000))
	require.NoError(client.Unlock(h, 1000))
	require.NoError(client.Abort(ctx, h, 1000))

	require.Equal(uint64(1), srv.Calls(vxi11.AbortProgram, vxi11.ProcDeviceAbort))
	require.Equal(uint64(1), srv.Calls(vxi11.CoreProgram, vxi11.ProcDeviceLock))
}

func TestClient_Close(t *testing.T) {
	require := require.New(t)

	client, srv := newTestClient(t, instsim.Config{})
	ctx := context.Background()

	for range 3 {
		_, err := client.Connect(ctx, "127.0.0.1", "inst0", 1000)
		require.NoError(err)
	}
	require.Equal(3, srv.LinkCount())
	require.Equal(3, client.Registry().Len())

	require.NoError(client.Close())
	require.Zero(srv.LinkCount())
	require.Zero(client.Registry().Len())
	require.NoError(client.Close())

	_, err := client.NewHandle(Address{Host: "127.0.0.1"})
	require.ErrorIs(err, ErrClientClosed)
}

func TestClient_InjectedRegistry(t *testing.T) {
	require := require.New(t)

	registry := NewRegistry()
	client, _ := newTestClient(t, instsim.Config{}, WithRegistry(registry))

	h, err := client.Connect(context.Background(), "127.0.0.1", "inst0", 1000)
	require.NoError(err)

	sess, ok := registry.Get(h)
	require.True(ok)
	require.Equal(vxi11.LinkedState, sess.State())

	_, err = New(WithRegistry(nil))
	require.Error(err)

	_, err = New(WithPort(-1))
	require.Error(err)
}
