package stream

import (
	"time"

	"github.com/go-pantheon/fabrica-stream/xstream"
)

type opKind uint8

const (
	opOpen opKind = iota
	opRead
	opWrite
	opFinish
)

func (k opKind) String() string {
	switch k {
	case opOpen:
		return "open"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// operation is one outstanding asynchronous action issued against the call.
// It is registered with the stream on issuance and deregistered on
// completion. Deregistration and the done signal happen directly on the
// transport goroutine, not through the executor, so that a Finish blocking
// the executor can still observe the in-flight set draining.
type operation struct {
	id     uint64
	kind   opKind
	stream *Stream

	// result is written once, before done is closed, and read only after.
	result xstream.Completion
	done   chan struct{}
}

// complete is the CompletionFunc handed to the call. It runs on the
// transport's completion goroutine.
func (o *operation) complete(c xstream.Completion) {
	o.result = c

	o.stream.scheduleCompletion(o, c)
	o.stream.deregister(o)
	close(o.done)
}

// await blocks until the operation completes or the timeout elapses.
func (o *operation) await(timeout time.Duration) (xstream.Completion, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-o.done:
		return o.result, true
	case <-timer.C:
		return xstream.Completion{}, false
	}
}
