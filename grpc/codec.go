package grpc

import (
	"github.com/go-pantheon/fabrica-util/errors"
	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype the raw codec is negotiated under.
const Name = "raw"

// rawCodec moves opaque byte payloads through grpc-go without touching them.
// Serialization is owned by the caller of the stream, not by the transport.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("raw codec: unexpected message type %T", v)
	}

	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return errors.Errorf("raw codec: unexpected message type %T", v)
	}

	*p = data

	return nil
}

func (rawCodec) Name() string {
	return Name
}

// RawCodec exposes the passthrough codec for servers that terminate raw
// byte streams, such as echo peers in tests and examples.
func RawCodec() encoding.Codec {
	return rawCodec{}
}
