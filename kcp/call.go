// Package kcp adapts a smux stream on a kcp session to the asynchronous call
// model consumed by the stream core. Messages are length-prefix framed.
package kcp

import (
	"io"
	"strconv"
	"sync"

	"github.com/go-pantheon/fabrica-stream/internal/completion"
	"github.com/go-pantheon/fabrica-stream/kcp/frame"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

// streamIDHeader carries the smux stream id in the open completion headers.
const streamIDHeader = "smux-stream-id"

var _ xstream.Call = (*Call)(nil)

// Call is one smux stream viewed as a bidirectional call. The smux session
// owns the stream's resources; release order is stream, then session, then
// the kcp connection.
type Call struct {
	conn    *kcpgo.UDPSession
	session *smux.Session
	stream  *smux.Stream
	codec   *frame.Codec

	readMu  sync.Mutex
	writeMu sync.Mutex

	streamCloseOnce sync.Once
	streamCloseErr  error

	closeOnce sync.Once
	closeErr  error

	completions *completion.Queue
}

// NewCall wraps an established smux stream. conn and session may be nil when
// their lifecycle is managed elsewhere; when set, Close releases them after
// the stream.
func NewCall(conn *kcpgo.UDPSession, session *smux.Session, stream *smux.Stream) *Call {
	return &Call{
		conn:        conn,
		session:     session,
		stream:      stream,
		codec:       frame.New(stream),
		completions: completion.NewQueue(16),
	}
}

// Open completes immediately: the smux stream is already established.
func (c *Call) Open(done xstream.CompletionFunc) {
	go func() {
		headers := xstream.NewHeaderCarrier()
		headers.Set(streamIDHeader, strconv.FormatUint(uint64(c.stream.ID()), 10))

		c.completions.Post(done, xstream.Completion{Headers: headers})
	}()
}

func (c *Call) Read(done xstream.CompletionFunc) {
	go func() {
		c.readMu.Lock()
		p, err := c.codec.Decode()
		c.readMu.Unlock()

		if err != nil {
			c.completions.Post(done, xstream.Completion{Err: err})
			return
		}

		c.completions.Post(done, xstream.Completion{Payload: p})
	}()
}

func (c *Call) Write(p xstream.Payload, done xstream.CompletionFunc) {
	go func() {
		c.writeMu.Lock()
		err := c.codec.Encode(p)
		c.writeMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: err})
	}()
}

// Finish sends the end-of-stream marker frame and drains the stream until
// the peer closes it. EOF maps to a clean terminal status.
func (c *Call) Finish(done xstream.CompletionFunc) {
	go func() {
		c.writeMu.Lock()
		// A failed end marker still surfaces through the drain below.
		_ = c.codec.EncodeEnd()
		c.writeMu.Unlock()

		c.readMu.Lock()

		var st error

		for {
			if _, err := c.codec.Decode(); err != nil {
				if !errors.Is(err, io.EOF) {
					st = err
				}

				break
			}
		}

		c.readMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: st})
	}()
}

// Cancel closes the stream, failing all outstanding operations promptly.
func (c *Call) Cancel() {
	_ = c.closeStream()
}

// Close releases the stream, then the owning session, then the kcp
// connection. Must only be called once no operations are outstanding.
func (c *Call) Close() error {
	c.completions.Close()

	c.closeOnce.Do(func() {
		err := c.closeStream()

		if c.session != nil {
			if sessErr := c.session.Close(); sessErr != nil {
				err = errors.Join(err, sessErr)
			}
		}

		if c.conn != nil {
			if connErr := c.conn.Close(); connErr != nil {
				err = errors.Join(err, connErr)
			}
		}

		c.closeErr = err
	})

	return c.closeErr
}

func (c *Call) closeStream() error {
	c.streamCloseOnce.Do(func() {
		c.streamCloseErr = c.stream.Close()
	})

	return c.streamCloseErr
}
