package stream

import (
	"github.com/go-pantheon/fabrica-stream/xstream"
)

// bufferedWriter accepts serialized payloads and writes them to the call one
// by one. Only one write may be in progress at any given time.
//
// Payloads are put on the queue with EnqueueWrite; if no other write is in
// progress, a write operation is issued immediately, otherwise the payload
// stays buffered. A write is active from the moment its operation is issued
// until DequeueNextWrite is called, which makes the next write active, if
// any.
//
// bufferedWriter does not keep any of the operations it creates; tracking
// them is the stream's responsibility.
type bufferedWriter struct {
	stream *Stream

	queue  []xstream.Payload
	active bool
}

func newBufferedWriter(s *Stream, capacity int) *bufferedWriter {
	return &bufferedWriter{
		stream: s,
		queue:  make([]xstream.Payload, 0, capacity),
	}
}

// EnqueueWrite returns the newly issued write operation if the given payload
// became active, nil otherwise.
func (w *bufferedWriter) EnqueueWrite(p xstream.Payload) *operation {
	w.queue = append(w.queue, p)

	if w.active {
		return nil
	}

	return w.tryStartWrite()
}

// DequeueNextWrite returns the newly issued write operation for the next
// payload in the queue, or nil if the queue was empty.
func (w *bufferedWriter) DequeueNextWrite() *operation {
	w.active = false

	if len(w.queue) == 0 {
		return nil
	}

	return w.tryStartWrite()
}

func (w *bufferedWriter) tryStartWrite() *operation {
	p := w.queue[0]
	w.queue = w.queue[1:]
	w.active = true

	return w.stream.issue(opWrite, p)
}
