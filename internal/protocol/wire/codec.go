package wire

import (
	"encoding/binary"
	"errors"
)

// LengthPrefixLen is the size of the big-endian length field ahead of every
// frame payload.
const LengthPrefixLen = 4

// DefaultMaxFrameBytes bounds decode memory use per frame.
const DefaultMaxFrameBytes = 8 * 1024 * 1024

var (
	ErrNegativeLength = errors.New("wire: negative declared frame length")
	ErrFrameTooLarge  = errors.New("wire: declared frame length exceeds limit")
)

// Encode returns one frame ready for the socket: BE32(len(payload)) ++ payload.
func Encode(payload []byte) []byte {
	return AppendEncode(make([]byte, 0, LengthPrefixLen+len(payload)), payload)
}

// AppendEncode appends the encoded frame to dst and returns the result.
func AppendEncode(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// Decoder reassembles complete frames from an arbitrarily chunked byte
// stream. A frame may span many Feed calls and a single chunk may carry
// several frames plus the start of the next; Feed emits whatever is complete
// and buffers the rest.
//
// Decoder is not safe for concurrent use; the owning loop is its only caller.
type Decoder struct {
	max int
	buf []byte
}

// NewDecoder returns a decoder enforcing maxFrameBytes per frame.
// Non-positive limits fall back to DefaultMaxFrameBytes.
func NewDecoder(maxFrameBytes int) *Decoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Decoder{max: maxFrameBytes}
}

// Feed absorbs one chunk from the stream and returns every frame that is now
// complete, in wire order. Empty chunks are a valid transport event and emit
// nothing. A declared length that is negative or above the limit is a
// protocol violation; the decoder state is undefined after an error and the
// caller is expected to drop the connection and Reset.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for len(d.buf) >= LengthPrefixLen {
		declared := int32(binary.BigEndian.Uint32(d.buf))
		if declared < 0 {
			return frames, ErrNegativeLength
		}
		n := int(declared)
		if n > d.max {
			return frames, ErrFrameTooLarge
		}
		if len(d.buf)-LengthPrefixLen < n {
			// Partial frame; keep accumulating.
			break
		}
		payload := make([]byte, n)
		copy(payload, d.buf[LengthPrefixLen:LengthPrefixLen+n])
		frames = append(frames, payload)
		d.buf = d.buf[LengthPrefixLen+n:]
	}

	// Fewer than LengthPrefixLen bytes left is also "wait for more data",
	// never a prefix read.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if len(frames) > 0 {
		// Re-home the leftover so emitted frames do not pin the old array.
		leftover := make([]byte, len(d.buf))
		copy(leftover, d.buf)
		d.buf = leftover
	}
	return frames, nil
}

// Buffered reports how many raw bytes are held for the in-progress frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards any partially reassembled frame. Called when the connection
// drops so a fresh stream never inherits a dead stream's tail.
func (d *Decoder) Reset() {
	d.buf = nil
}
