package kcp

import (
	"context"

	"github.com/go-pantheon/fabrica-util/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

type Dialer struct {
	target string
	conf   Config
}

func NewDialer(target string, conf Config) *Dialer {
	return &Dialer{
		target: target,
		conf:   conf,
	}
}

func (d *Dialer) Target() string {
	return d.target
}

// Dial establishes a kcp connection, opens a smux session on it and wraps
// one smux stream as a call.
func (d *Dialer) Dial(ctx context.Context) (*Call, error) {
	conn, err := kcpgo.DialWithOptions(d.target, nil, d.conf.DataShards, d.conf.ParityShards)
	if err != nil {
		return nil, errors.Wrapf(err, "kcp dial failed. target=%s", d.target)
	}

	d.configureConn(conn)

	session, err := smux.Client(conn, d.conf.smuxConfig())
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close kcp connection failed"))
		}

		return nil, errors.Wrap(err, "create smux session failed")
	}

	stream, err := session.OpenStream()
	if err != nil {
		if closeErr := session.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close smux session failed"))
		}

		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close kcp connection failed"))
		}

		return nil, errors.Wrap(err, "open smux stream failed")
	}

	return NewCall(conn, session, stream), nil
}

func (d *Dialer) configureConn(conn *kcpgo.UDPSession) {
	conn.SetNoDelay(d.conf.NoDelay[0], d.conf.NoDelay[1], d.conf.NoDelay[2], d.conf.NoDelay[3])
	conn.SetWindowSize(d.conf.WindowSize[0], d.conf.WindowSize[1])
	conn.SetMtu(d.conf.MTU)
	conn.SetACKNoDelay(d.conf.ACKNoDelay)
	conn.SetWriteDelay(d.conf.WriteDelay)
}
