package grpc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-stream/executor"
	"github.com/go-pantheon/fabrica-stream/stream"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	echoMethod = "/test.Echo/Stream"
	failMethod = "/test.Echo/Fail"
)

// handler echoes raw payloads back; the Fail method rejects the stream after
// the headers have been sent.
func handler(_ any, ss googlegrpc.ServerStream) error {
	if err := ss.SendHeader(metadata.Pairs("x-echo", "1")); err != nil {
		return err
	}

	method, _ := googlegrpc.MethodFromServerStream(ss)
	if method == failMethod {
		return status.Error(codes.Internal, "boom")
	}

	for {
		var p []byte
		if err := ss.RecvMsg(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if err := ss.SendMsg(p); err != nil {
			return err
		}
	}
}

func startServer(t *testing.T) *bufconn.Listener {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := googlegrpc.NewServer(
		googlegrpc.ForceServerCodec(rawCodec{}),
		googlegrpc.UnknownServiceHandler(handler),
	)

	go func() {
		_ = srv.Serve(lis)
	}()

	t.Cleanup(srv.Stop)

	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *googlegrpc.ClientConn {
	t.Helper()

	conn, err := googlegrpc.NewClient("passthrough:///bufnet",
		googlegrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		googlegrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

type chanListener struct {
	opened chan struct{}
	reads  chan []byte
	errs   chan error
}

var _ xstream.Listener = (*chanListener)(nil)

func newChanListener() *chanListener {
	return &chanListener{
		opened: make(chan struct{}, 1),
		reads:  make(chan []byte, 16),
		errs:   make(chan error, 1),
	}
}

func (l *chanListener) OnOpen() {
	l.opened <- struct{}{}
}

func (l *chanListener) OnRead(p xstream.Payload) {
	l.reads <- p
}

func (l *chanListener) OnError(err error) {
	l.errs <- err
}

func waitSignal[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second * 5):
		t.Fatalf("timeout waiting for %s", what)
		panic("unreachable")
	}
}

func TestCallEchoRoundTrip(t *testing.T) {
	t.Parallel()

	lis := startServer(t)
	conn := dial(t, lis)

	call, err := NewCall(context.Background(), conn, echoMethod, metadata.Pairs("authorization", "test"))
	require.NoError(t, err)

	exec := executor.New(conf.Default().Executor)

	t.Cleanup(func() {
		_ = exec.Stop(context.Background())
	})

	l := newChanListener()
	s := stream.New(call, l, exec)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	var headers xstream.HeaderCarrier

	require.NoError(t, exec.Dispatch(func() {
		headers = s.GetResponseHeaders()
	}))
	assert.Equal(t, "1", headers.Get("x-echo"))

	require.NoError(t, exec.Dispatch(func() {
		s.Write([]byte("ping"))
		s.Write([]byte("pong"))
	}))

	assert.Equal(t, []byte("ping"), waitSignal(t, l.reads, "first echo"))
	assert.Equal(t, []byte("pong"), waitSignal(t, l.reads, "second echo"))

	require.NoError(t, exec.Dispatch(s.Finish))

	var finished bool

	require.NoError(t, exec.Dispatch(func() {
		finished = s.IsFinished()
	}))
	assert.True(t, finished)

	select {
	case err := <-l.errs:
		t.Fatalf("unexpected error notification: %v", err)
	default:
	}
}

func TestCallServerFailureNotifiesError(t *testing.T) {
	t.Parallel()

	lis := startServer(t)
	conn := dial(t, lis)

	call, err := NewCall(context.Background(), conn, failMethod, nil)
	require.NoError(t, err)

	exec := executor.New(conf.Default().Executor)

	t.Cleanup(func() {
		_ = exec.Stop(context.Background())
	})

	l := newChanListener()
	s := stream.New(call, l, exec)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	streamErr := waitSignal(t, l.errs, "terminal error")
	assert.Equal(t, codes.Internal, status.Code(streamErr))

	// release the failed call
	require.NoError(t, exec.Dispatch(s.Finish))
}

func TestCallWriteAndFinish(t *testing.T) {
	t.Parallel()

	lis := startServer(t)
	conn := dial(t, lis)

	call, err := NewCall(context.Background(), conn, echoMethod, nil)
	require.NoError(t, err)

	exec := executor.New(conf.Default().Executor)

	t.Cleanup(func() {
		_ = exec.Stop(context.Background())
	})

	l := newChanListener()
	s := stream.New(call, l, exec)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	var did bool

	require.NoError(t, exec.Dispatch(func() {
		did = s.WriteAndFinish([]byte("bye"))
	}))

	assert.True(t, did)

	select {
	case err := <-l.errs:
		t.Fatalf("unexpected error notification: %v", err)
	default:
	}
}
