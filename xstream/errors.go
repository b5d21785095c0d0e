package xstream

import (
	"github.com/go-pantheon/fabrica-util/errors"
)

// ErrClosedByPeer is delivered to Listener.OnError when the peer terminated
// the stream without a transport error.
var ErrClosedByPeer = errors.New("stream closed by peer")
