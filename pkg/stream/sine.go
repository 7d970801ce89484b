package stream

import (
	"bytes"
	"fmt"
	"math"

	"github.com/beam-cloud/pdrec/pkg/common"
)

const DefaultSampleRate = 50

// SineWave generates sampleRate*lengthSeconds frames where every channel
// carries floor(128 + 128*sin(2*pi*freqHz*t)) clamped to a byte. Frame k is
// stamped floor(k * 1e9 / sampleRate) nanoseconds.
func SineWave(lengthSeconds int, freqHz float64, sampleRate int) (*Stream, error) {
	if lengthSeconds < 0 {
		return nil, &common.FieldError{Field: "length", Reason: fmt.Sprintf("must not be negative, got %d", lengthSeconds), Err: common.ErrInvalidField}
	}
	if sampleRate <= 0 {
		return nil, &common.FieldError{Field: "frame_rate", Reason: fmt.Sprintf("must be positive, got %d", sampleRate), Err: common.ErrInvalidField}
	}

	count := sampleRate * lengthSeconds

	var buf bytes.Buffer
	buf.Grow(count * (ChannelLineLength + 22))
	w := NewWriter(&buf)

	var f Frame
	for k := 0; k < count; k++ {
		t := float64(k) / float64(sampleRate)
		value := sineValue(2 * math.Pi * freqHz * t)

		f.TimestampNs = uint64(k) * 1_000_000_000 / uint64(sampleRate)
		for i := range f.Channels {
			f.Channels[i] = value
		}

		if err := w.WriteFrame(f); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	return &Stream{data: buf.Bytes(), frames: w.Frames()}, nil
}

func sineValue(angle float64) byte {
	v := math.Floor(128 + 128*math.Sin(angle))
	return byte(max(0, min(255, v)))
}
