package kcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-stream/executor"
	"github.com/go-pantheon/fabrica-stream/kcp/frame"
	"github.com/go-pantheon/fabrica-stream/stream"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtaci/smux"
)

// startEchoPeer runs a smux server over an in-memory pipe that echoes
// length-prefixed frames, empty ones included. The end-of-stream marker
// frame makes the peer close the stream. If dropSession is true, the whole
// session is torn down after the first message instead.
func startEchoPeer(t *testing.T, dropSession bool) *smux.Stream {
	t.Helper()

	cliConn, srvConn := net.Pipe()

	srvSess, err := smux.Server(srvConn, smux.DefaultConfig())
	require.NoError(t, err)

	cliSess, err := smux.Client(cliConn, smux.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cliSess.Close()
		_ = srvSess.Close()
	})

	go func() {
		st, err := srvSess.AcceptStream()
		if err != nil {
			return
		}

		codec := frame.New(st)

		for n := 0; ; n++ {
			p, err := codec.Decode()
			if err != nil {
				if errors.Is(err, io.EOF) {
					_ = st.Close()
				}

				return
			}

			if err := codec.Encode(p); err != nil {
				return
			}

			if dropSession && n == 0 {
				_ = srvSess.Close()
				return
			}
		}
	}()

	st, err := cliSess.OpenStream()
	require.NoError(t, err)

	return st
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

func newTestStream(t *testing.T, st *smux.Stream) (*stream.Stream, *chanListener, *executor.Executor) {
	t.Helper()

	call := NewCall(nil, nil, st)
	exec := executor.New(conf.Default().Executor)

	t.Cleanup(func() {
		_ = exec.Stop(context.Background())
	})

	l := newChanListener()

	return stream.New(call, l, exec), l, exec
}

func TestCallEchoRoundTrip(t *testing.T) {
	t.Parallel()

	st := startEchoPeer(t, false)
	s, l, exec := newTestStream(t, st)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	var headers xstream.HeaderCarrier

	require.NoError(t, exec.Dispatch(func() {
		headers = s.GetResponseHeaders()
	}))
	assert.NotEmpty(t, headers.Get(streamIDHeader))

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

func TestCallEmptyPayloadDelivered(t *testing.T) {
	t.Parallel()

	st := startEchoPeer(t, false)
	s, l, exec := newTestStream(t, st)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	// an empty payload is a regular message, not an end-of-stream marker
	require.NoError(t, exec.Dispatch(func() {
		s.Write([]byte{})
		s.Write([]byte("ping"))
	}))

	assert.Empty(t, waitSignal(t, l.reads, "empty echo"))
	assert.Equal(t, []byte("ping"), waitSignal(t, l.reads, "echo after empty"))

	require.NoError(t, exec.Dispatch(s.Finish))

	select {
	case err := <-l.errs:
		t.Fatalf("unexpected error notification: %v", err)
	default:
	}
}

func TestCallDroppedSessionNotifiesError(t *testing.T) {
	t.Parallel()

	st := startEchoPeer(t, true)
	s, l, exec := newTestStream(t, st)

	require.NoError(t, exec.Dispatch(s.Start))
	waitSignal(t, l.opened, "open")

	require.NoError(t, exec.Dispatch(func() {
		s.Write([]byte("ping"))
	}))
	assert.Equal(t, []byte("ping"), waitSignal(t, l.reads, "echo"))

	streamErr := waitSignal(t, l.errs, "terminal error")
	assert.Error(t, streamErr)

	require.NoError(t, exec.Dispatch(s.Finish))
}
