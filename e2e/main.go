package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/catalog"
	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metrics"
	"github.com/beam-cloud/pdrec/pkg/recording"
	"github.com/beam-cloud/pdrec/pkg/storage"
)

func main() {
	workDir, err := os.MkdirTemp("", "pdrec-e2e")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create work dir")
	}
	defer os.RemoveAll(workDir)

	cfg := recording.GeneratorConfig{
		Description:   "test",
		UniverseCount: 2,
		LengthSeconds: 1,
		FrequencyHz:   5,
		StartTime:     time.Now(),
	}

	rec, err := recording.Generate(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate recording")
	}

	path := filepath.Join(workDir, recording.DefaultFileName(cfg.StartTime))
	if err := recording.WriteFile(path, rec); err != nil {
		log.Fatal().Err(err).Msg("failed to write recording")
	}

	store, err := storage.NewRecordingStorage(storage.StorageOpts{
		Mode:      common.StorageModeLocal,
		LocalPath: filepath.Join(workDir, "store"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read recording")
	}

	ctx := context.Background()
	name := filepath.Base(path)
	if err := store.Put(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		log.Fatal().Err(err).Msg("failed to store recording")
	}

	rc, err := store.Get(ctx, name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch recording")
	}
	defer rc.Close()

	got, err := recording.Read(rc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to decode stored recording")
	}
	if got.ID != rec.ID || got.Frames() != rec.Frames() {
		log.Fatal().Msgf("round trip mismatch: %s/%d frames, want %s/%d frames", got.ID, got.Frames(), rec.ID, rec.Frames())
	}

	if err := recording.Summarize(got).Print(os.Stdout, time.Local); err != nil {
		log.Fatal().Err(err).Msg("failed to print summary")
	}

	c, err := catalog.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog")
	}
	defer c.Close()

	entries, err := c.Scan(ctx, workDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to scan work dir")
	}
	fmt.Printf("Catalog: %d recordings\n", len(entries))

	metrics.LogMetricsSummary()
}
