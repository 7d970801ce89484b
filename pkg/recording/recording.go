// Package recording reads and writes .pdrec DMX recording files.
package recording

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/archive"
	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metrics"
	"github.com/beam-cloud/pdrec/pkg/stream"
)

// Recording is a decoded recording file. It is treated as immutable once
// built; revising a recording means building a new one with a new ID.
type Recording struct {
	ID       uuid.UUID
	Metadata *common.Metadata
	Streams  map[int]*stream.Stream
}

// Info is the header and metadata of a recording without its streams.
type Info struct {
	ID       uuid.UUID
	Metadata *common.Metadata
}

// New returns a recording with a freshly generated ID.
func New(meta *common.Metadata, streams map[int]*stream.Stream) *Recording {
	return &Recording{
		ID:       uuid.New(),
		Metadata: meta,
		Streams:  streams,
	}
}

// Frames returns the total number of frames across all universes.
func (r *Recording) Frames() int64 {
	var total int64
	for _, s := range r.Streams {
		total += int64(s.Len())
	}
	return total
}

// Encode returns the complete file contents. The payload is assembled
// before the header is emitted, so a failure never yields a partial file.
func Encode(rec *Recording) ([]byte, error) {
	start := time.Now()

	data, err := encode(rec)
	if err != nil {
		metrics.RecordFailure(common.ErrorKind(err))
		return nil, err
	}

	metrics.RecordEncode(int64(len(data)), rec.Frames(), time.Since(start))
	return data, nil
}

func encode(rec *Recording) ([]byte, error) {
	if rec.ID == uuid.Nil {
		return nil, &common.FieldError{Field: "recording_id", Reason: "must not be the nil uuid", Err: common.ErrInvalidField}
	}

	payload, err := archive.Assemble(rec.Metadata, rec.Streams)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, common.RecordingHeaderLength+len(payload))
	out = append(out, EncodeHeader(rec.ID)...)
	out = append(out, payload...)
	return out, nil
}

// WriteTo encodes the recording and writes it to w in a single write.
func (r *Recording) WriteTo(w io.Writer) (int64, error) {
	data, err := Encode(r)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Decode parses a complete recording file.
func Decode(data []byte) (*Recording, error) {
	start := time.Now()

	rec, err := decode(data)
	if err != nil {
		metrics.RecordFailure(common.ErrorKind(err))
		return nil, err
	}

	metrics.RecordDecode(int64(len(data)), rec.Frames(), time.Since(start))
	return rec, nil
}

func decode(data []byte) (*Recording, error) {
	id, payload, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	meta, streams, err := archive.Extract(payload)
	if err != nil {
		return nil, err
	}

	return &Recording{ID: id, Metadata: meta, Streams: streams}, nil
}

// Read reads r to EOF and decodes the result.
func Read(r io.Reader) (*Recording, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func ReadFile(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("read recording %s from %s", rec.ID, path)
	return rec, nil
}

// ReadInfo decodes the header and the metadata member only.
func ReadInfo(data []byte) (*Info, error) {
	id, payload, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	meta, err := archive.ExtractMetadata(payload)
	if err != nil {
		return nil, err
	}

	return &Info{ID: id, Metadata: meta}, nil
}

// WriteFile encodes rec and atomically replaces path with it. Writers to
// the same path are serialized through an advisory lock on path+".lock".
// The lock file is left in place; unlinking it would let two writers hold
// locks on different inodes at once.
func WriteFile(path string, rec *Recording) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	defer lock.Unlock()

	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	log.Info().Msgf("wrote recording %s to %s (%d bytes)", rec.ID, path, len(data))
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// DefaultFileName returns the name the reference writer gives a recording
// started at start.
func DefaultFileName(start time.Time) string {
	return fmt.Sprintf("generated_recording_%d%s", start.Unix(), common.RecordingFileExtension)
}
