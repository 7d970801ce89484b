package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/beam-cloud/pdrec/pkg/common"
)

// Writer encodes frames to an underlying writer. Timestamps must be
// strictly increasing. Callers must call Flush when done.
type Writer struct {
	w      *bufio.Writer
	line   []byte
	prev   uint64
	frames int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:    bufio.NewWriterSize(w, 64*1024),
		line: make([]byte, 0, ChannelLineLength+24),
	}
}

func (w *Writer) WriteFrame(f Frame) error {
	if w.frames > 0 && f.TimestampNs <= w.prev {
		return &common.FrameError{
			Line:   2*w.frames + 1,
			Reason: fmt.Sprintf("timestamp %d does not follow previous timestamp %d", f.TimestampNs, w.prev),
			Err:    common.ErrMalformedFrame,
		}
	}

	w.line = appendFrame(w.line[:0], f)
	if _, err := w.w.Write(w.line); err != nil {
		return err
	}

	w.prev = f.TimestampNs
	w.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int {
	return w.frames
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// FromFrames encodes frames into a new Stream.
func FromFrames(frames []Frame) (*Stream, error) {
	var buf bytes.Buffer
	buf.Grow(len(frames) * (ChannelLineLength + 22))

	w := NewWriter(&buf)
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	return &Stream{data: buf.Bytes(), frames: w.Frames()}, nil
}
