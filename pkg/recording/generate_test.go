package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/pdrec/pkg/common"
)

func TestGenerateDefaults(t *testing.T) {
	before := time.Now().Unix()
	rec, err := Generate(GeneratorConfig{UniverseCount: 1, LengthSeconds: 2, FrequencyHz: 1})
	require.NoError(t, err)

	assert.NotEqual(t, [16]byte{}, [16]byte(rec.ID))
	assert.Equal(t, common.ProtocolSACN, rec.Metadata.Protocol)
	assert.Equal(t, int64(2000), rec.Metadata.Duration)
	assert.GreaterOrEqual(t, rec.Metadata.StartTimestamp, before)
	assert.Equal(t, 100, rec.Streams[0].Len())
}

func TestGenerateZeroUniverses(t *testing.T) {
	rec, err := Generate(GeneratorConfig{Description: "empty", LengthSeconds: 1, FrequencyHz: 1})
	require.NoError(t, err)
	assert.Empty(t, rec.Metadata.Universes)
	assert.Empty(t, rec.Streams)

	_, err = Encode(rec)
	require.NoError(t, err)
}

func TestGenerateInvalid(t *testing.T) {
	tests := []struct {
		name  string
		cfg   GeneratorConfig
		field string
	}{
		{"negative universes", GeneratorConfig{UniverseCount: -1}, "universes"},
		{"negative length", GeneratorConfig{LengthSeconds: -3}, "length"},
		{"negative rate", GeneratorConfig{SampleRate: -50}, "sample_rate"},
		{"unknown protocol", GeneratorConfig{Protocol: "dmx512"}, "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidField)

			var fe *common.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestLoadGeneratorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.yaml")
	body := "description: show rehearsal\nuniverses: 3\nlength: 10\nfrequency: 0.5\nprotocol: ArtNet\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadGeneratorConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "show rehearsal", cfg.Description)
	assert.Equal(t, 3, cfg.UniverseCount)
	assert.Equal(t, 10, cfg.LengthSeconds)
	assert.Equal(t, 0.5, cfg.FrequencyHz)
	assert.Equal(t, 0, cfg.SampleRate)
	assert.Equal(t, common.ProtocolArtNet, cfg.Protocol)

	assert.True(t, cfg.Provided("frequency"))
	assert.False(t, cfg.Provided("sample_rate"))

	require.NoError(t, os.WriteFile(path, []byte("universes: [oops"), 0o644))
	_, err = LoadGeneratorConfig(path)
	assert.Error(t, err)
}

func TestLoadGeneratorConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("description: warmup\nuniverses: 0\nlength:\n"), 0o644))

	cfg, err := LoadGeneratorConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Provided("description"))
	assert.True(t, cfg.Provided("universes"), "an explicit zero counts as set")
	assert.False(t, cfg.Provided("length"), "an empty value is not set")
	assert.False(t, cfg.Provided("frequency"))

	assert.False(t, GeneratorConfig{}.Provided("description"))
}
