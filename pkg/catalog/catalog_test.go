package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/recording"
)

func writeRecording(t *testing.T, path string, universes int) *recording.Recording {
	t.Helper()

	rec, err := recording.Generate(recording.GeneratorConfig{
		Description:   filepath.Base(path),
		UniverseCount: universes,
		LengthSeconds: 1,
		FrequencyHz:   2,
		StartTime:     time.Unix(1718000000, 0),
	})
	require.NoError(t, err)
	require.NoError(t, recording.WriteFile(path, rec))
	return rec
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "act2"), 0o755))

	first := writeRecording(t, filepath.Join(root, "act1.pdrec"), 1)
	second := writeRecording(t, filepath.Join(root, "act2", "finale.pdrec"), 3)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.pdrec"), []byte("not a recording"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("cue list"), 0o644))

	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	entries, err := c.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, filepath.Join(root, "act1.pdrec"), entries[0].Path)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.NoError(t, entries[0].Err)

	assert.Equal(t, filepath.Join(root, "act2", "finale.pdrec"), entries[1].Path)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Len(t, entries[1].Metadata.Universes, 3)

	assert.Equal(t, filepath.Join(root, "broken.pdrec"), entries[2].Path)
	assert.ErrorIs(t, entries[2].Err, common.ErrBadMagic)
	assert.Nil(t, entries[2].Metadata)
}

func TestScanUsesCache(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "show.pdrec")
	writeRecording(t, path, 2)

	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Scan(context.Background(), root)
	require.NoError(t, err)
	c.Wait()

	entries, err := c.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// A rewritten file has a new key and is decoded again.
	replaced := writeRecording(t, path, 1)
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Minute)))
	entries, err = c.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, replaced.ID, entries[0].ID)
}

func TestScanMissingRoot(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
