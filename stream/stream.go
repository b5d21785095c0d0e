// Package stream implements the lifecycle core of a single bidirectional
// streaming RPC call: opening it, serializing outbound writes, delivering
// inbound messages and lifecycle events to a listener, and tearing the call
// down safely whether termination is initiated locally or by the peer.
package stream

import (
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-stream/xstream"
)

// Stream drives the open/read/write/finish protocol of one established call
// and notifies the given listener about stream events.
//
// The stream has to be explicitly opened (via Start) before it can be used.
// Once open it is always listening for inbound messages; outbound messages
// are queued and sent out one by one. Payloads are raw bytes in both
// directions; serialization is left to the caller.
//
// The listener is notified when the stream opens, when a message arrives,
// and when the stream is broken by the peer or the transport. All errors are
// unrecoverable; a finished stream cannot be restarted. The listener is not
// notified about a finish initiated locally.
//
// All public methods must be invoked on the stream's executor; the stream is
// not safe against concurrent calls from arbitrary goroutines. Completion
// handling is scheduled onto the same executor, so handlers never overlap
// with caller operations.
type Stream struct {
	call xstream.Call
	exec xstream.Executor

	// listener is a weak association; clearing it is the synchronization
	// point that suppresses all further notifications.
	listener xstream.Listener
	writer   *bufferedWriter
	headers  xstream.HeaderCarrier

	opts *Options

	started   bool
	opened    bool
	finishing bool
	finished  bool

	// The in-flight set is the one piece of state shared with transport
	// goroutines: operations deregister themselves on completion and the
	// drained cond is the rendezvous Finish blocks on. The stream must not
	// release the call while this set is non-empty.
	opsMu    sync.Mutex
	drained  *sync.Cond
	inflight map[uint64]*operation
	nextOpID uint64
}

// New creates a stream around an established call. The listener must not be
// nil; exec is the serial execution context all completion handling runs on.
func New(call xstream.Call, listener xstream.Listener, exec xstream.Executor, opts ...Option) *Stream {
	if listener == nil {
		panic("stream: listener must not be nil")
	}

	s := &Stream{
		call:     call,
		exec:     exec,
		listener: listener,
		opts:     NewOptions(opts...),
		inflight: make(map[uint64]*operation),
	}

	s.drained = sync.NewCond(&s.opsMu)
	s.writer = newBufferedWriter(s, s.opts.Conf().WriteQueueCapacity)

	return s
}

// Start issues the open operation. Completion is asynchronous: the stream is
// usable for writing only once the listener's OnOpen has fired.
func (s *Stream) Start() {
	if s.started {
		panic("stream: Start called twice")
	}

	s.started = true
	s.issue(opOpen, nil)
}

// Write queues the payload for transmission. Payloads are transmitted in the
// exact order Write was called. Can only be called once the stream has
// opened.
func (s *Stream) Write(p xstream.Payload) {
	s.checkOpen("Write")
	s.writer.EnqueueWrite(p)
}

// Finish tears the stream down. No notification is produced; once Finish has
// been called the stream can no longer be used. Calling Finish again is a
// no-op.
//
// This is a blocking operation: it cancels the call so that outstanding
// operations fail fast, then waits until every in-flight operation has come
// back before releasing the call. Blocking time is expected to be in the
// order of tens of milliseconds. Only after Finish returns is it safe to
// drop the stream.
func (s *Stream) Finish() {
	if s.finished {
		return
	}

	s.listener = nil

	if !s.finishing {
		s.finishing = true

		if s.started {
			s.issue(opFinish, nil)
		}
	}

	s.call.Cancel()
	s.waitDrained()

	if err := s.call.Close(); err != nil {
		log.Errorf("[stream] close call failed. %+v", err)
	}

	s.finished = true
}

// WriteAndFinish writes the given payload and finishes the stream as soon as
// the write comes back. The final write is best-effort; the return value
// indicates whether it went through. Can only be called once the stream has
// opened. Blocks like Finish.
func (s *Stream) WriteAndFinish(p xstream.Payload) bool {
	s.checkOpen("WriteAndFinish")

	didLastWrite := false

	// Wait for the final write only if it became active immediately;
	// anything still queued behind an active write is abandoned by the
	// finish below.
	if op := s.writer.EnqueueWrite(p); op != nil {
		if c, ok := op.await(s.opts.Conf().FinalWriteTimeout); ok && c.OK() {
			didLastWrite = true
		}
	}

	s.Finish()

	return didLastWrite
}

// GetResponseHeaders returns the headers received from the peer with the
// open completion. Can only be called once the stream has opened.
func (s *Stream) GetResponseHeaders() xstream.HeaderCarrier {
	if !s.opened {
		panic("stream: GetResponseHeaders called before the stream opened")
	}

	return s.headers
}

// IsFinished reports whether the stream has stopped notifying its listener,
// either because Finish was called or because a terminal error was
// delivered.
func (s *Stream) IsFinished() bool {
	return s.listener == nil
}

func (s *Stream) checkOpen(method string) {
	if !s.opened || s.finishing || s.listener == nil {
		panic("stream: " + method + " called before the stream opened or after it finished")
	}
}

// issue creates an operation, registers it in the in-flight set and starts
// it on the call.
func (s *Stream) issue(kind opKind, p xstream.Payload) *operation {
	op := &operation{
		id:     s.nextOpID,
		kind:   kind,
		stream: s,
		done:   make(chan struct{}),
	}
	s.nextOpID++

	s.opsMu.Lock()
	s.inflight[op.id] = op
	s.opsMu.Unlock()

	s.opts.Stats().OperationIssued(kind.String())

	switch kind {
	case opOpen:
		s.call.Open(op.complete)
	case opRead:
		s.call.Read(op.complete)
	case opWrite:
		s.call.Write(p, op.complete)
	case opFinish:
		s.call.Finish(op.complete)
	}

	return op
}

// deregister removes the operation from the in-flight set. It runs on the
// transport goroutine so that Finish, which blocks the executor, can still
// observe the set draining.
func (s *Stream) deregister(op *operation) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	delete(s.inflight, op.id)

	if len(s.inflight) == 0 {
		s.drained.Broadcast()
	}
}

func (s *Stream) waitDrained() {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	for len(s.inflight) > 0 {
		s.drained.Wait()
	}
}

func (s *Stream) scheduleCompletion(op *operation, c xstream.Completion) {
	s.opts.Stats().OperationCompleted(op.kind.String(), c.OK())

	if err := s.exec.Schedule(func() {
		s.onCompleted(op.kind, c)
	}); err != nil {
		log.Errorf("[stream] schedule %s completion failed. %+v", op.kind, err)
	}
}

// onCompleted runs on the executor and is the only place that moves the
// stream state machine.
func (s *Stream) onCompleted(kind opKind, c xstream.Completion) {
	if kind == opFinish {
		s.onFinishCompleted(c)
		return
	}

	if s.listener == nil || s.finishing {
		return
	}

	if !c.OK() {
		s.onOperationFailed()
		return
	}

	switch kind {
	case opOpen:
		s.onOpened(c)
	case opRead:
		s.onReadCompleted(c)
	case opWrite:
		s.writer.DequeueNextWrite()
	}
}

func (s *Stream) onOpened(c xstream.Completion) {
	s.opened = true
	s.headers = c.Headers
	s.opts.Stats().StreamOpened()

	l := s.listener

	s.issue(opRead, nil)
	l.OnOpen()
}

func (s *Stream) onReadCompleted(c xstream.Completion) {
	s.listener.OnRead(c.Payload)

	// The listener may have finished the stream from inside the callback.
	if s.listener != nil && !s.finishing {
		s.issue(opRead, nil)
	}
}

// onOperationFailed starts the uniform failure path: an internal finish is
// issued against the call to learn the definitive terminating status, and
// its completion carries the error to the listener.
func (s *Stream) onOperationFailed() {
	s.finishing = true
	s.opts.Stats().StreamFailed()
	s.issue(opFinish, nil)
}

func (s *Stream) onFinishCompleted(c xstream.Completion) {
	// A nil listener means the finish was initiated locally; no
	// notification fires.
	if s.listener == nil {
		return
	}

	l := s.listener
	s.listener = nil

	err := c.Err
	if err == nil {
		err = xstream.ErrClosedByPeer
	}

	l.OnError(err)
}
