package websocket

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/gorilla/websocket"
)

type Dialer struct {
	dialer *websocket.Dialer
	origin string
}

func NewDialer(origin string) *Dialer {
	return &Dialer{
		origin: origin,
		dialer: &websocket.Dialer{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial performs the opening handshake against the target URL and wraps the
// resulting connection as a call.
func (d *Dialer) Dial(ctx context.Context, target string) (call *Call, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(err, "parse url failed. url=%s", target)
	}

	header := http.Header{}
	if d.origin != "" {
		header.Set("Origin", d.origin)
	}

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, errors.Wrapf(err, "connect failed. url=%s", target)
	}

	defer func() {
		if resp != nil && resp.Body != nil {
			if bodyErr := resp.Body.Close(); bodyErr != nil {
				err = errors.Join(err, errors.Wrap(bodyErr, "close response body failed"))
			}
		}
	}()

	var respHeader http.Header
	if resp != nil {
		respHeader = resp.Header
	}

	return NewCall(conn, respHeader), nil
}
