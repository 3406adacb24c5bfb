package wire

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/danmuck/tetherctl/internal/testutil/testlog"
)

func feedAll(t *testing.T, d *Decoder, chunks ...[]byte) [][]byte {
	t.Helper()
	var out [][]byte
	for _, chunk := range chunks {
		frames, err := d.Feed(chunk)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		out = append(out, frames...)
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, payload := range [][]byte{
		[]byte("hello"),
		{},
		[]byte{0x00, 0xFF, 0x00},
		bytes.Repeat([]byte("x"), 4096),
	} {
		d := NewDecoder(0)
		frames := feedAll(t, d, Encode(payload))
		if len(frames) != 1 {
			t.Fatalf("expected one frame, got %d", len(frames))
		}
		if !bytes.Equal(frames[0], payload) {
			t.Fatalf("payload mismatch: got=%q want=%q", frames[0], payload)
		}
		if d.Buffered() != 0 {
			t.Fatalf("decoder should be drained, buffered=%d", d.Buffered())
		}
	}
}

func TestDecodeFrameSplitAcrossChunks(t *testing.T) {
	testlog.Start(t)
	// BE32(5)+"he" then "llo"+BE32(3)+"hi".
	first := Encode([]byte("hello"))[:6]
	second := append([]byte("llo"), Encode([]byte("hi"))...)

	d := NewDecoder(0)
	frames := feedAll(t, d, first, second)
	if len(frames) != 2 {
		t.Fatalf("expected two frames, got %d", len(frames))
	}
	if string(frames[0]) != "hello" || string(frames[1]) != "hi" {
		t.Fatalf("unexpected frames: %q %q", frames[0], frames[1])
	}
}

func TestDecodeZeroLengthFrame(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(0)
	frames := feedAll(t, d, Encode(nil))
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	if len(frames[0]) != 0 {
		t.Fatalf("expected empty frame, got %q", frames[0])
	}
}

func TestDecodeMultipleFramesInOneChunk(t *testing.T) {
	testlog.Start(t)
	stream := Encode([]byte("a"))
	stream = AppendEncode(stream, []byte("bb"))
	stream = AppendEncode(stream, nil)
	stream = AppendEncode(stream, []byte("cccc"))

	d := NewDecoder(0)
	frames := feedAll(t, d, stream)
	want := []string{"a", "bb", "", "cccc"}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(frames))
	}
	for i, w := range want {
		if string(frames[i]) != w {
			t.Fatalf("frame[%d]=%q want %q", i, frames[i], w)
		}
	}
}

func TestDecodeChunkingInvariance(t *testing.T) {
	testlog.Start(t)
	payloads := [][]byte{
		[]byte("alpha"),
		{},
		bytes.Repeat([]byte("beta"), 100),
		[]byte("g"),
		[]byte("delta-delta"),
	}
	var stream []byte
	for _, p := range payloads {
		stream = AppendEncode(stream, p)
	}

	check := func(frames [][]byte) {
		t.Helper()
		if len(frames) != len(payloads) {
			t.Fatalf("expected %d frames, got %d", len(payloads), len(frames))
		}
		for i, p := range payloads {
			if !bytes.Equal(frames[i], p) {
				t.Fatalf("frame[%d] mismatch", i)
			}
		}
	}

	// One byte at a time.
	d := NewDecoder(0)
	var got [][]byte
	for i := range stream {
		got = append(got, feedAll(t, d, stream[i:i+1])...)
	}
	check(got)

	// Random partitions.
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		d := NewDecoder(0)
		var frames [][]byte
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			frames = append(frames, feedAll(t, d, rest[:n])...)
			rest = rest[n:]
		}
		check(frames)
	}
}

func TestDecodeEmptyChunkIsDiscarded(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(0)
	frames := feedAll(t, d, nil, []byte{}, Encode([]byte("ok")))
	if len(frames) != 1 || string(frames[0]) != "ok" {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestDecodeShortPrefixWaits(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(0)
	// Two bytes cannot hold a length prefix yet.
	if frames := feedAll(t, d, []byte{0x00, 0x00}); len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	if d.Buffered() != 2 {
		t.Fatalf("expected 2 bytes buffered, got %d", d.Buffered())
	}
	frames := feedAll(t, d, []byte{0x00, 0x02, 'h', 'i'})
	if len(frames) != 1 || string(frames[0]) != "hi" {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestDecodeNegativeLengthIsProtocolError(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(0)
	_, err := d.Feed([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestDecodeOversizedLengthIsProtocolError(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(16)
	_, err := d.Feed([]byte{0x00, 0x00, 0x00, 0x11})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeErrorAfterCompleteFramesStillEmitsThem(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(16)
	stream := Encode([]byte("good"))
	stream = append(stream, 0x00, 0x00, 0x00, 0x11)
	frames, err := d.Feed(stream)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != "good" {
		t.Fatalf("expected the complete frame ahead of the violation, got %v", frames)
	}
}

func TestResetDropsPartialFrame(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder(0)
	if frames := feedAll(t, d, Encode([]byte("hello"))[:6]); len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	d.Reset()
	if d.Buffered() != 0 {
		t.Fatalf("reset should drop buffered bytes, got %d", d.Buffered())
	}
	frames := feedAll(t, d, Encode([]byte("fresh")))
	if len(frames) != 1 || string(frames[0]) != "fresh" {
		t.Fatalf("unexpected frames after reset: %v", frames)
	}
}
