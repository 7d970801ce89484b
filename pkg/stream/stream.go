// Package stream encodes and decodes per-universe DMX sample streams.
//
// A stream is plain text made of two-line frames:
//
//	<timestamp in nanoseconds since stream start>
//	<512 channel values as 1024 lowercase hex characters>
package stream

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/beam-cloud/pdrec/pkg/common"
	log "github.com/rs/zerolog/log"
)

const (
	ChannelCount      = 512
	ChannelLineLength = ChannelCount * 2

	// Longest line the scanner accepts before reporting a malformed frame.
	maxLineLength = 64 * 1024
)

type Frame struct {
	TimestampNs uint64
	Channels    [ChannelCount]byte
}

// Stream is a validated sample stream. It owns a private copy of its text;
// frames are decoded lazily on each iteration, so a Stream can be walked any
// number of times without holding decoded frames in memory.
type Stream struct {
	data       []byte
	frames     int
	duplicates int
}

// Parse validates data as a sample stream. It reports the first malformed
// or truncated frame it finds.
func Parse(data []byte) (*Stream, error) {
	s := &Stream{data: bytes.Clone(data)}

	it := s.Iter()
	for it.Next() {
		s.frames++
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	s.duplicates = it.duplicates

	if s.duplicates > 0 {
		log.Warn().Int("frames", s.frames).Int("duplicates", s.duplicates).Msg("stream has repeated timestamps")
	}

	return s, nil
}

// Len returns the number of frames in the stream.
func (s *Stream) Len() int {
	return s.frames
}

// DuplicateTimestamps returns how many frames repeat the previous timestamp.
func (s *Stream) DuplicateTimestamps() int {
	return s.duplicates
}

// Iter returns a new iterator positioned before the first frame.
func (s *Stream) Iter() *Iterator {
	sc := bufio.NewScanner(bytes.NewReader(s.data))
	sc.Buffer(make([]byte, 0, ChannelLineLength+2), maxLineLength)
	return &Iterator{sc: sc}
}

// Frames decodes every frame into memory.
func (s *Stream) Frames() ([]Frame, error) {
	frames := make([]Frame, 0, s.frames)
	it := s.Iter()
	for it.Next() {
		frames = append(frames, it.Frame())
	}
	return frames, it.Err()
}

// WriteTo writes the stream in canonical form (lowercase hex, "\n" line endings).
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	line := make([]byte, 0, ChannelLineLength+1)
	it := s.Iter()
	for it.Next() {
		line = appendFrame(line[:0], it.Frame())
		if _, err := bw.Write(line); err != nil {
			return cw.n, err
		}
	}
	if err := it.Err(); err != nil {
		return cw.n, err
	}
	err := bw.Flush()
	return cw.n, err
}

// Bytes returns the canonical encoding of the stream.
func (s *Stream) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(s.frames * (ChannelLineLength + 22))
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Iterator walks the frames of a Stream. Usage mirrors bufio.Scanner:
//
//	it := s.Iter()
//	for it.Next() {
//		f := it.Frame()
//	}
//	err := it.Err()
type Iterator struct {
	sc         *bufio.Scanner
	line       int
	frame      Frame
	started    bool
	duplicates int
	err        error
}

func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	tsLine, ok := it.scan()
	if !ok {
		return false
	}
	tsLineNo := it.line

	if len(tsLine) == 0 {
		// Blank lines are only tolerated as trailing whitespace.
		for {
			next, more := it.scan()
			if !more {
				return false
			}
			if len(next) > 0 {
				it.fail(tsLineNo, "empty timestamp line", common.ErrMalformedFrame)
				return false
			}
		}
	}

	ts, err := strconv.ParseUint(string(tsLine), 10, 64)
	if err != nil {
		it.fail(tsLineNo, fmt.Sprintf("timestamp %q is not a non-negative integer", truncate(tsLine)), common.ErrMalformedFrame)
		return false
	}

	if it.started {
		switch {
		case ts < it.frame.TimestampNs:
			it.fail(tsLineNo, fmt.Sprintf("timestamp %d is before previous timestamp %d", ts, it.frame.TimestampNs), common.ErrMalformedFrame)
			return false
		case ts == it.frame.TimestampNs:
			it.duplicates++
		}
	}

	dataLine, ok := it.scan()
	if !ok {
		if it.err == nil {
			it.fail(tsLineNo+1, "channel data missing after timestamp", common.ErrTruncated)
		}
		return false
	}

	if len(dataLine) != ChannelLineLength {
		it.fail(it.line, fmt.Sprintf("channel data has %d characters, want %d", len(dataLine), ChannelLineLength), common.ErrMalformedFrame)
		return false
	}

	if _, err := hex.Decode(it.frame.Channels[:], dataLine); err != nil {
		it.fail(it.line, fmt.Sprintf("channel data is not hex: %v", err), common.ErrMalformedFrame)
		return false
	}

	it.frame.TimestampNs = ts
	it.started = true
	return true
}

// Frame returns the frame decoded by the last successful call to Next.
func (it *Iterator) Frame() Frame {
	return it.frame
}

// Err returns the first error encountered while iterating.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) scan() ([]byte, bool) {
	if !it.sc.Scan() {
		if err := it.sc.Err(); err != nil {
			it.fail(it.line+1, err.Error(), common.ErrMalformedFrame)
		}
		return nil, false
	}
	it.line++
	return bytes.TrimSuffix(it.sc.Bytes(), []byte{'\r'}), true
}

func (it *Iterator) fail(line int, reason string, kind error) {
	it.err = &common.FrameError{Line: line, Reason: reason, Err: kind}
}

func truncate(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}

func appendFrame(dst []byte, f Frame) []byte {
	dst = strconv.AppendUint(dst, f.TimestampNs, 10)
	dst = append(dst, '\n')
	dst = hex.AppendEncode(dst, f.Channels[:])
	return append(dst, '\n')
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
