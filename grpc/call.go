// Package grpc adapts a grpc-go client stream to the asynchronous call model
// consumed by the stream core.
package grpc

import (
	"context"
	"io"
	"sync"

	"github.com/go-pantheon/fabrica-stream/internal/completion"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/errors"
	googlegrpc "google.golang.org/grpc"
)

var _ xstream.Call = (*Call)(nil)

// Call is an established bidirectional grpc call. Each operation runs in its
// own goroutine around the blocking grpc-go stream methods; completions are
// delivered through the call's completion queue.
//
// The cancelable context owns the call resources; the client stream is a
// view into them and is abandoned before the context is released.
type Call struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream googlegrpc.ClientStream

	// grpc-go forbids concurrent RecvMsg calls on one stream, and likewise
	// concurrent SendMsg calls. The single-active-read and
	// single-active-write discipline of the core already guarantees this
	// for reads and writes; these locks additionally order the drain inside
	// Finish against a still outstanding read or write.
	recvMu sync.Mutex
	sendMu sync.Mutex

	completions *completion.Queue
}

func newCall(ctx context.Context, cancel context.CancelFunc, stream googlegrpc.ClientStream) *Call {
	return &Call{
		ctx:         ctx,
		cancel:      cancel,
		stream:      stream,
		completions: completion.NewQueue(16),
	}
}

// Open waits for the response headers from the peer. grpc-go blocks in
// Header until the server has accepted or rejected the call.
func (c *Call) Open(done xstream.CompletionFunc) {
	go func() {
		md, err := c.stream.Header()
		if err != nil {
			c.completions.Post(done, xstream.Completion{Err: err})
			return
		}

		c.completions.Post(done, xstream.Completion{Headers: xstream.FromMD(md)})
	}()
}

func (c *Call) Read(done xstream.CompletionFunc) {
	go func() {
		c.recvMu.Lock()

		var p []byte
		err := c.stream.RecvMsg(&p)

		c.recvMu.Unlock()

		if err != nil {
			c.completions.Post(done, xstream.Completion{Err: err})
			return
		}

		c.completions.Post(done, xstream.Completion{Payload: p})
	}()
}

func (c *Call) Write(p xstream.Payload, done xstream.CompletionFunc) {
	go func() {
		c.sendMu.Lock()
		err := c.stream.SendMsg([]byte(p))
		c.sendMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: err})
	}()
}

// Finish closes the sending side and drains the stream to its terminal
// status. io.EOF from grpc-go means the call ended with an OK status.
func (c *Call) Finish(done xstream.CompletionFunc) {
	go func() {
		c.sendMu.Lock()

		// CloseSend failures surface through the drain below.
		_ = c.stream.CloseSend()

		c.sendMu.Unlock()

		c.recvMu.Lock()

		var st error

		for {
			var p []byte
			if err := c.stream.RecvMsg(&p); err != nil {
				if !errors.Is(err, io.EOF) {
					st = err
				}

				break
			}
		}

		c.recvMu.Unlock()

		c.completions.Post(done, xstream.Completion{Err: st})
	}()
}

// Cancel cancels the call context. All outstanding operations complete
// promptly with a cancellation status.
func (c *Call) Cancel() {
	c.cancel()
}

// Close releases the call. Must only be called once no operations are
// outstanding.
func (c *Call) Close() error {
	c.completions.Close()

	// Abandon the stream view first, then release the owning context.
	c.stream = nil
	c.cancel()

	return nil
}
