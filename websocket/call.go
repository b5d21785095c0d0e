// Package websocket adapts a gorilla websocket connection to the
// asynchronous call model consumed by the stream core. Payloads travel as
// binary messages.
package websocket

import (
	"net/http"
	"sync"

	"github.com/go-pantheon/fabrica-stream/internal/completion"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/gorilla/websocket"
)

var ErrInvalidFrameType = errors.New("invalid frame type")

var _ xstream.Call = (*Call)(nil)

// Call is an established websocket connection viewed as a bidirectional
// call. The open completion carries the HTTP response headers captured at
// dial time; closing the connection is both the cancellation mechanism and
// the resource release.
type Call struct {
	conn    *websocket.Conn
	headers xstream.HeaderCarrier

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	completions *completion.Queue
}

// NewCall wraps an established connection. respHeader is the HTTP response
// header from the opening handshake; it may be nil.
func NewCall(conn *websocket.Conn, respHeader http.Header) *Call {
	headers := xstream.NewHeaderCarrier()

	for k, vs := range respHeader {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	return &Call{
		conn:        conn,
		headers:     headers,
		completions: completion.NewQueue(16),
	}
}

// Open completes immediately: the websocket handshake already happened at
// dial time.
func (c *Call) Open(done xstream.CompletionFunc) {
	go func() {
		c.completions.Post(done, xstream.Completion{Headers: c.headers})
	}()
}

func (c *Call) Read(done xstream.CompletionFunc) {
	go func() {
		c.readMu.Lock()
		mt, data, err := c.conn.ReadMessage()
		c.readMu.Unlock()

		if err != nil {
			c.completions.Post(done, xstream.Completion{Err: err})
			return
		}

		if mt != websocket.BinaryMessage {
			c.completions.Post(done, xstream.Completion{Err: ErrInvalidFrameType})
			return
		}

		c.completions.Post(done, xstream.Completion{Payload: data})
	}()
}

func (c *Call) Write(p xstream.Payload, done xstream.CompletionFunc) {
	go func() {
		c.writeMu.Lock()
		err := c.conn.WriteMessage(websocket.BinaryMessage, p)
		c.writeMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: err})
	}()
}

// Finish performs the websocket closing handshake and drains the connection
// to its close frame. A normal closure maps to a clean terminal status.
func (c *Call) Finish(done xstream.CompletionFunc) {
	go func() {
		c.writeMu.Lock()
		// A failed close frame still surfaces through the drain below.
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.readMu.Lock()

		var st error

		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					st = err
				}

				break
			}
		}

		c.readMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: st})
	}()
}

// Cancel closes the connection, failing all outstanding operations promptly.
func (c *Call) Cancel() {
	c.close()
}

// Close releases the connection. Must only be called once no operations are
// outstanding.
func (c *Call) Close() error {
	c.completions.Close()

	return c.close()
}

func (c *Call) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
