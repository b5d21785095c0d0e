package xstream

// Listener receives the lifecycle notifications of one stream.
//
// All notifications are delivered on the stream's executor. Once OnError has
// fired, no further notifications of any kind fire for that stream.
type Listener interface {
	// OnOpen fires exactly once, when the call has been accepted by the
	// peer. It strictly precedes any OnRead or OnError.
	OnOpen()

	// OnRead fires once per inbound message, in arrival order.
	OnRead(p Payload)

	// OnError fires at most once, with the terminal status of a stream that
	// was broken by the peer or the transport. Locally finished streams
	// produce no notification.
	OnError(err error)
}
