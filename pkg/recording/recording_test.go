package recording

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metrics"
	"github.com/beam-cloud/pdrec/pkg/stream"
)

func generateTest(t *testing.T) *Recording {
	t.Helper()

	rec, err := Generate(GeneratorConfig{
		Description:   "test",
		UniverseCount: 2,
		LengthSeconds: 1,
		FrequencyHz:   5,
		StartTime:     time.Unix(1718000000, 0),
	})
	require.NoError(t, err)
	return rec
}

func TestEncodeDecodeEndToEnd(t *testing.T) {
	rec := generateTest(t)

	data, err := Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x43, 0x61, 0x67, 0x65, 0x00, 0x00}, data[:6])
	assert.Equal(t, []byte{0x1f, 0x8b}, data[22:24], "payload is gzip")

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "test", got.Metadata.Description)
	assert.Equal(t, int64(1000), got.Metadata.Duration)
	assert.Equal(t, common.ProtocolSACN, got.Metadata.Protocol)
	assert.Equal(t, int64(1718000000), got.Metadata.StartTimestamp)
	assert.Equal(t, []common.Universe{{FrameRate: 50, Number: 0}, {FrameRate: 50, Number: 1}}, got.Metadata.Universes)

	require.Len(t, got.Streams, 2)
	for n, s := range got.Streams {
		assert.Equal(t, 50, s.Len(), "universe %d", n)
	}

	frames, err := got.Streams[0].Frames()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), frames[0].TimestampNs)
	assert.Equal(t, byte(128), frames[0].Channels[0])
	assert.Equal(t, uint64(20_000_000), frames[1].TimestampNs)
}

func TestEncodeIsDeterministic(t *testing.T) {
	rec := generateTest(t)

	first, err := Encode(rec)
	require.NoError(t, err)
	second, err := Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeRejectsNilID(t *testing.T) {
	rec := generateTest(t)
	rec.ID = uuid.Nil

	_, err := Encode(rec)
	assert.ErrorIs(t, err, common.ErrInvalidField)
}

func TestEncodeMissingUniverse(t *testing.T) {
	rec := generateTest(t)
	delete(rec.Streams, 1)

	_, err := Encode(rec)
	require.Error(t, err)

	var missing *common.MissingUniverseError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 1, missing.Number)
}

func TestDecodeErrors(t *testing.T) {
	data, err := Encode(generateTest(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", append([]byte("Cafe"), data[4:]...), common.ErrBadMagic},
		{"future version", append([]byte{0x43, 0x61, 0x67, 0x65, 0x01, 0x00}, data[6:]...), common.ErrUnsupportedVersion},
		{"short header", data[:10], common.ErrTruncated},
		{"header only", data[:22], common.ErrCorruptArchive},
		{"cut payload", data[:len(data)-8], common.ErrCorruptArchive},
		{"not gzip", append(append([]byte{}, data[:22]...), []byte("plain text")...), common.ErrCorruptArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeRecordsMetrics(t *testing.T) {
	before := metrics.GlobalMetrics.GetPrometheusMetrics()

	_, err := Decode([]byte("nope"))
	require.Error(t, err)

	after := metrics.GlobalMetrics.GetPrometheusMetrics()
	key := `pdrec_failures_total{kind="bad_magic"}`
	prev, _ := before[key].(int64)
	assert.Equal(t, prev+1, after[key])
}

func TestWriteToAndRead(t *testing.T) {
	rec := generateTest(t)

	var buf bytes.Buffer
	n, err := rec.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Frames(), got.Frames())
}

func TestWriteFileReadFile(t *testing.T) {
	dir := t.TempDir()
	rec := generateTest(t)
	path := filepath.Join(dir, DefaultFileName(rec.Metadata.StartTime()))
	assert.Equal(t, "generated_recording_1718000000.pdrec", filepath.Base(path))

	require.NoError(t, WriteFile(path, rec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{filepath.Base(path), filepath.Base(path) + ".lock"}, names, "temp files are cleaned up")

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Len(t, got.Streams, 2)

	// Replacing an existing file keeps a single complete recording.
	next := generateTest(t)
	require.NoError(t, WriteFile(path, next))
	got, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID)
}

func TestWriteFileConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.pdrec")

	recs := make([]*Recording, 8)
	for i := range recs {
		recs[i] = generateTest(t)
	}

	var g errgroup.Group
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			return WriteFile(path, rec)
		})
	}
	require.NoError(t, g.Wait())
	assert.FileExists(t, path+".lock")

	got, err := ReadFile(path)
	require.NoError(t, err)

	ids := make([]uuid.UUID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	assert.Contains(t, ids, got.ID)
}

func TestWriteFileFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	rec := generateTest(t)
	rec.Streams[7] = rec.Streams[0]

	path := filepath.Join(dir, "bad.pdrec")
	require.Error(t, WriteFile(path, rec))
	assert.NoFileExists(t, path)
}

func TestReadInfo(t *testing.T) {
	rec := generateTest(t)
	data, err := Encode(rec)
	require.NoError(t, err)

	info, err := ReadInfo(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, info.ID)
	assert.Equal(t, []int{0, 1}, info.Metadata.UniverseNumbers())
}

func TestEmptyRecording(t *testing.T) {
	empty, err := stream.Parse(nil)
	require.NoError(t, err)

	meta := &common.Metadata{Description: "", Protocol: common.ProtocolArtNet, StartTimestamp: 0}
	meta.Universes = []common.Universe{{Number: 4, FrameRate: 40}}
	rec := New(meta, map[int]*stream.Stream{4: empty})

	data, err := Encode(rec)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, common.ProtocolArtNet, got.Metadata.Protocol)
	assert.Equal(t, 0, got.Streams[4].Len())
}
