// Package frame implements the length-prefixed message framing used on kcp
// byte streams: a 4-byte big-endian payload length followed by the payload.
// A length of -1 carries no payload and marks the end of the stream, so a
// zero-length payload stays a regular message.
package frame

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/go-pantheon/fabrica-util/errors"
)

const (
	// LenSize is the size of the length prefix.
	LenSize = 4
	// MaxPayloadSize is the maximum accepted payload length.
	MaxPayloadSize = int32(1 << 20)

	// endOfStream is the length prefix of the end-of-stream marker frame.
	endOfStream = int32(-1)
)

var (
	ErrShortWrite       = errors.New("short write")
	ErrInvalidFrameSize = errors.New("invalid frame size")
)

type Codec struct {
	w *bufio.Writer
	r *bufio.Reader
}

func New(rw io.ReadWriter) *Codec {
	return &Codec{
		w: bufio.NewWriter(rw),
		r: bufio.NewReader(rw),
	}
}

func (c *Codec) Encode(p []byte) error {
	if err := binary.Write(c.w, binary.BigEndian, int32(len(p))); err != nil {
		return errors.Wrap(err, "write frame len failed")
	}

	n, err := c.w.Write(p)
	if err != nil {
		return errors.Wrap(err, "write frame failed")
	}

	if n != len(p) {
		return ErrShortWrite
	}

	if err := c.w.Flush(); err != nil {
		return errors.Wrap(err, "flush writer failed")
	}

	return nil
}

// EncodeEnd writes the end-of-stream marker frame.
func (c *Codec) EncodeEnd() error {
	if err := binary.Write(c.w, binary.BigEndian, endOfStream); err != nil {
		return errors.Wrap(err, "write end marker failed")
	}

	if err := c.w.Flush(); err != nil {
		return errors.Wrap(err, "flush writer failed")
	}

	return nil
}

// Decode reads the next frame. The end-of-stream marker is reported as
// io.EOF.
func (c *Codec) Decode() ([]byte, error) {
	var size int32
	if err := binary.Read(c.r, binary.BigEndian, &size); err != nil {
		return nil, errors.Wrap(err, "read frame len failed")
	}

	if size == endOfStream {
		return nil, io.EOF
	}

	if size < 0 || size > MaxPayloadSize {
		return nil, ErrInvalidFrameSize
	}

	p := make([]byte, size)
	if _, err := io.ReadFull(c.r, p); err != nil {
		return nil, errors.Wrap(err, "read frame failed")
	}

	return p, nil
}
