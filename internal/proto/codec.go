package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the fixed frame header: type and length, both uint32 big-endian.
	HeaderSize = 8
	// DefaultMaxPayload bounds a single frame payload when no limit is configured.
	DefaultMaxPayload = 64 << 10
)

// Framing errors. All of them desynchronize the stream, so the connection
// must be torn down.
var (
	ErrShortHeader      = errors.New("short frame header")
	ErrTruncatedPayload = errors.New("truncated frame payload")
	ErrUnknownType      = errors.New("unknown message type")
	ErrPayloadTooLarge  = errors.New("frame payload too large")
)

// FrameError describes a framing failure together with the offending header.
type FrameError struct {
	Err    error
	Type   Type
	Length uint32
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame type=%d length=%d: %v", uint32(e.Type), e.Length, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError reports whether err is a protocol framing error.
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}

// Encode serializes a frame into a single buffer.
func Encode(t Type, payload []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, &FrameError{Err: ErrUnknownType, Type: t}
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, &FrameError{Err: ErrPayloadTooLarge, Type: t}
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(t))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WriteFrame encodes env and writes it with one Write call.
func WriteFrame(w io.Writer, env Envelope) error {
	buf, err := Encode(env.Type, env.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Reader decodes frames from a byte stream. Partial reads are accumulated
// until a whole frame is available.
type Reader struct {
	r          io.Reader
	maxPayload uint32
	header     [HeaderSize]byte
}

// NewReader wraps r. A maxPayload of zero or less selects DefaultMaxPayload.
func NewReader(r io.Reader, maxPayload int) *Reader {
	if maxPayload <= 0 || uint64(maxPayload) > math.MaxUint32 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{r: r, maxPayload: uint32(maxPayload)}
}

// ReadFrame blocks until one complete frame is read.
// It returns io.EOF when the peer closed the stream on a frame boundary.
func (r *Reader) ReadFrame() (Envelope, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		switch {
		case n == 0 && errors.Is(err, io.EOF):
			return Envelope{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Envelope{}, &FrameError{Err: ErrShortHeader}
		default:
			return Envelope{}, fmt.Errorf("read frame header: %w", err)
		}
	}

	t := Type(binary.BigEndian.Uint32(r.header[0:4]))
	length := binary.BigEndian.Uint32(r.header[4:8])
	if !t.Valid() {
		return Envelope{}, &FrameError{Err: ErrUnknownType, Type: t, Length: length}
	}
	if length > r.maxPayload {
		return Envelope{}, &FrameError{Err: ErrPayloadTooLarge, Type: t, Length: length}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, &FrameError{Err: ErrTruncatedPayload, Type: t, Length: length}
		}
		return Envelope{}, fmt.Errorf("read frame payload: %w", err)
	}

	return Envelope{Type: t, Payload: payload}, nil
}

// Decode reads a single frame from r. Use a Reader for repeated reads.
func Decode(r io.Reader) (Envelope, error) {
	return NewReader(r, DefaultMaxPayload).ReadFrame()
}
