package recording

import (
	"fmt"
	"os"
	"time"

	log "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/stream"
)

// GeneratorConfig describes a synthetic sine wave recording.
type GeneratorConfig struct {
	Description   string          `yaml:"description"`
	UniverseCount int             `yaml:"universes"`
	LengthSeconds int             `yaml:"length"`
	FrequencyHz   float64         `yaml:"frequency"`
	SampleRate    int             `yaml:"sample_rate"`
	Protocol      common.Protocol `yaml:"protocol"`
	StartTime     time.Time       `yaml:"-"`

	// keys present in the file the config was loaded from
	provided map[string]bool
}

// LoadGeneratorConfig reads a GeneratorConfig from a YAML file.
func LoadGeneratorConfig(path string) (*GeneratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg GeneratorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse generator config %s: %w", path, err)
	}

	var keys map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse generator config %s: %w", path, err)
	}
	cfg.provided = make(map[string]bool, len(keys))
	for key, node := range keys {
		if node.Tag != "!!null" {
			cfg.provided[key] = true
		}
	}

	return &cfg, nil
}

// Provided reports whether the YAML file set key, e.g. "frequency". It is
// false for configs not built by LoadGeneratorConfig.
func (c GeneratorConfig) Provided(key string) bool {
	return c.provided[key]
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.SampleRate == 0 {
		c.SampleRate = stream.DefaultSampleRate
	}
	if c.Protocol == "" {
		c.Protocol = common.ProtocolSACN
	}
	if c.StartTime.IsZero() {
		c.StartTime = time.Now()
	}
	return c
}

func (c GeneratorConfig) validate() error {
	switch {
	case c.UniverseCount < 0:
		return &common.FieldError{Field: "universes", Reason: fmt.Sprintf("must not be negative, got %d", c.UniverseCount), Err: common.ErrInvalidField}
	case c.LengthSeconds < 0:
		return &common.FieldError{Field: "length", Reason: fmt.Sprintf("must not be negative, got %d", c.LengthSeconds), Err: common.ErrInvalidField}
	case c.SampleRate <= 0:
		return &common.FieldError{Field: "sample_rate", Reason: fmt.Sprintf("must be positive, got %d", c.SampleRate), Err: common.ErrInvalidField}
	case !c.Protocol.Valid():
		return &common.FieldError{Field: "protocol", Reason: fmt.Sprintf("unknown protocol %q", c.Protocol), Err: common.ErrInvalidField}
	}
	return nil
}

// Generate builds a recording with UniverseCount universes numbered from
// zero, each carrying the same sine wave.
func Generate(cfg GeneratorConfig) (*Recording, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	wave, err := stream.SineWave(cfg.LengthSeconds, cfg.FrequencyHz, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	meta := &common.Metadata{
		Description:    cfg.Description,
		Duration:       int64(cfg.LengthSeconds) * 1000,
		Protocol:       cfg.Protocol,
		StartTimestamp: cfg.StartTime.Unix(),
		Universes:      make([]common.Universe, 0, cfg.UniverseCount),
	}

	// Streams are immutable, so every universe can share the same wave.
	streams := make(map[int]*stream.Stream, cfg.UniverseCount)
	for n := 0; n < cfg.UniverseCount; n++ {
		log.Debug().Int("universe", n).Int("frames", wave.Len()).Msg("creating universe")
		meta.Universes = append(meta.Universes, common.Universe{Number: n, FrameRate: cfg.SampleRate})
		streams[n] = wave
	}

	return New(meta, streams), nil
}
