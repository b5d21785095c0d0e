// Package xstream provides the domain types for the fabrica-stream.
package xstream

// Payload is an opaque serialized message moved through a Call.
// Serialization and deserialization are left to the caller.
type Payload []byte

// Completion is the result of one asynchronous call operation.
// Err is nil on success. Payload is set only for read completions.
// Headers is set only for the open completion.
type Completion struct {
	Err     error
	Payload Payload
	Headers HeaderCarrier
}

// OK reports whether the operation completed successfully.
func (c Completion) OK() bool {
	return c.Err == nil
}

// CompletionFunc receives the completion of one asynchronous operation.
// It is invoked from the transport's completion goroutine, never from the
// goroutine that issued the operation.
type CompletionFunc func(Completion)

// Call is an established bidirectional streaming call handle. All methods
// issuing operations return immediately; the result is delivered through
// the given CompletionFunc.
//
// Completion funcs for one Call are invoked one at a time, but concurrently
// with the issuing side.
type Call interface {
	// Open starts the call on the wire. The completion carries the response
	// headers received from the peer.
	Open(done CompletionFunc)

	// Read waits for the next inbound message. At most one read may be
	// outstanding at a time.
	Read(done CompletionFunc)

	// Write sends one message. At most one write may be outstanding at
	// a time.
	Write(p Payload, done CompletionFunc)

	// Finish closes the sending side and waits for the terminal status of
	// the call. The completion's Err holds that status; nil means the call
	// ended cleanly.
	Finish(done CompletionFunc)

	// Cancel cancels the call's execution context. All outstanding
	// operations complete promptly with a cancellation error.
	Cancel()

	// Close releases the call resources. The reader-writer view is released
	// strictly before its owning context. Close must only be called once no
	// operations are outstanding.
	Close() error
}
