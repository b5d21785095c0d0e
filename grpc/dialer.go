package grpc

import (
	"context"

	"github.com/go-pantheon/fabrica-util/errors"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// bidiDesc describes a generic bidirectional streaming method; the concrete
// method name is supplied per call.
var bidiDesc = &googlegrpc.StreamDesc{
	ClientStreams: true,
	ServerStreams: true,
}

// NewCall opens a bidirectional streaming call for the given full method
// name (e.g. "/pkg.Service/Method") on an established connection. The
// returned call has not been started on the wire protocol level beyond the
// stream creation; Open completes once the peer has sent its headers.
//
// md, if non-nil, is attached to the call as outgoing metadata.
func NewCall(ctx context.Context, conn *googlegrpc.ClientConn, method string, md metadata.MD, opts ...googlegrpc.CallOption) (*Call, error) {
	cctx, cancel := context.WithCancel(ctx)

	if md != nil {
		cctx = metadata.NewOutgoingContext(cctx, md)
	}

	opts = append([]googlegrpc.CallOption{googlegrpc.ForceCodec(rawCodec{})}, opts...)

	cs, err := conn.NewStream(cctx, bidiDesc, method, opts...)
	if err != nil {
		cancel()

		return nil, errors.Wrapf(err, "create grpc stream failed. method=%s", method)
	}

	return newCall(cctx, cancel, cs), nil
}
