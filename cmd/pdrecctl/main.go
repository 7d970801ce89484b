package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/catalog"
	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metrics"
	"github.com/beam-cloud/pdrec/pkg/recording"
	"github.com/beam-cloud/pdrec/pkg/storage"
	"github.com/beam-cloud/pdrec/pkg/stream"
)

const (
	defaultOutputDir = "."
	defaultRegion    = "us-east-1"
)

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := recording.SetLogLevel(getEnvString("PDREC_LOG_LEVEL", "info")); err != nil {
		log.Warn().Err(err).Msg("ignoring PDREC_LOG_LEVEL")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "create":
		createCommand()
	case "read":
		readCommand()
	case "ls":
		lsCommand()
	case "push":
		pushCommand()
	case "pull":
		pullCommand()
	case "metrics":
		metricsCommand()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pdrecctl - DMX recording file tool

Usage:
  pdrecctl <command> [options]

Commands:
  create       Generate a sine wave test recording
  read         Print the contents of a recording file
  ls           List recording files under a directory
  push         Upload a recording file to S3
  pull         Download a recording file from S3
  metrics      Decode recordings and show codec metrics

Examples:
  # Generate a recording, prompting for anything not given
  pdrecctl create --universes 4 --length 10

  # Generate from a config file
  pdrecctl create --config show.yaml --out /var/lib/pdrec

  # Inspect a recording
  pdrecctl read generated_recording_1718000000.pdrec

  # Upload and download
  pdrecctl push --bucket recordings generated_recording_1718000000.pdrec
  pdrecctl pull --bucket recordings generated_recording_1718000000.pdrec ./local.pdrec

Environment Variables:
  PDREC_LOG_LEVEL     Log level (debug, info, warn, error, disabled)
  PDREC_SAMPLE_RATE   Generator sample rate in Hz (default: 50)
  PDREC_OUTPUT_DIR    Output directory for create (default: .)
  PDREC_S3_BUCKET     Bucket for push and pull
  PDREC_S3_REGION     Bucket region (default: us-east-1)
  PDREC_S3_ENDPOINT   Custom S3 endpoint
  PDREC_S3_PREFIX     Key prefix inside the bucket

`)
}

func createCommand() {
	fs := flag.NewFlagSet("create", flag.ExitOnError)

	var (
		configPath  = fs.String("config", "", "YAML generator config")
		description = fs.String("description", "", "Recording description")
		universes   = fs.Int("universes", 0, "Number of universes")
		length      = fs.Int("length", 0, "Recording length in seconds")
		frequency   = fs.Float64("freq", 0, "Sine wave frequency in Hz")
		sampleRate  = fs.Int("rate", getEnvInt("PDREC_SAMPLE_RATE", stream.DefaultSampleRate), "Sample rate in Hz")
		protocol    = fs.String("protocol", string(common.ProtocolSACN), "Protocol (sACN, ArtNet)")
		outputDir   = fs.String("out", getEnvString("PDREC_OUTPUT_DIR", defaultOutputDir), "Output directory")
		verbose     = fs.Bool("verbose", false, "Verbose logging")
	)

	fs.Parse(os.Args[2:])

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := recording.GeneratorConfig{}
	if *configPath != "" {
		loaded, err := recording.LoadGeneratorConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load generator config")
		}
		cfg = *loaded
	}

	set := setFlags(fs)
	known := knownFields(cfg, set)
	if set["description"] {
		cfg.Description = *description
	}
	if set["universes"] {
		cfg.UniverseCount = *universes
	}
	if set["length"] {
		cfg.LengthSeconds = *length
	}
	if set["freq"] {
		cfg.FrequencyHz = *frequency
	}
	if set["rate"] || cfg.SampleRate == 0 {
		cfg.SampleRate = *sampleRate
	}
	if set["protocol"] || cfg.Protocol == "" {
		cfg.Protocol = common.Protocol(*protocol)
	}
	p := newPrompter(os.Stdin, os.Stdout)
	if err := p.fill(&cfg, known); err != nil {
		log.Fatal().Err(err).Msg("failed to read generator settings")
	}

	cfg.StartTime = time.Now()
	rec, err := recording.Generate(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate recording")
	}

	outputPath := filepath.Join(*outputDir, recording.DefaultFileName(cfg.StartTime))
	if err := recording.WriteFile(outputPath, rec); err != nil {
		log.Fatal().Err(err).Msg("failed to write recording")
	}

	fmt.Printf("Wrote %s\n", outputPath)
}

func readCommand() {
	fs := flag.NewFlagSet("read", flag.ExitOnError)

	var (
		strictName = fs.Bool("strict-name", false, "Fail when the metadata has no name field")
		verbose    = fs.Bool("verbose", false, "Verbose logging")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pdrecctl read [--strict-name] <file>\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := readRecording(os.Stdout, fs.Arg(0), *strictName, time.Local); err != nil {
		fmt.Fprintf(os.Stderr, "invalid recording file (%s): %v\n", common.ErrorKind(err), err)
		os.Exit(1)
	}
}

func readRecording(w io.Writer, path string, strictName bool, loc *time.Location) error {
	rec, err := recording.ReadFile(path)
	if err != nil {
		return err
	}

	var summary recording.Summary
	if strictName {
		summary, err = recording.SummarizeStrict(rec)
		if err != nil {
			return err
		}
	} else {
		summary = recording.Summarize(rec)
	}

	return summary.Print(w, loc)
}

func lsCommand() {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(os.Args[2:])

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	root := getEnvString("PDREC_OUTPUT_DIR", defaultOutputDir)
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	c, err := catalog.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog")
	}
	defer c.Close()

	entries, err := c.Scan(context.Background(), root)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to scan %s", root)
	}

	printEntries(os.Stdout, entries)
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(w, "%s\tinvalid (%s)\n", e.Path, common.ErrorKind(e.Err))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d universes\t%d ms\t%q\n",
			e.Path, e.ID, len(e.Metadata.Universes), e.Metadata.Duration, e.Metadata.Description)
	}
}

func s3Flags(fs *flag.FlagSet) *common.S3StorageInfo {
	info := &common.S3StorageInfo{}
	fs.StringVar(&info.Bucket, "bucket", getEnvString("PDREC_S3_BUCKET", ""), "S3 bucket (required)")
	fs.StringVar(&info.Region, "region", getEnvString("PDREC_S3_REGION", defaultRegion), "S3 region")
	fs.StringVar(&info.Endpoint, "endpoint", getEnvString("PDREC_S3_ENDPOINT", ""), "Custom S3 endpoint")
	fs.StringVar(&info.Prefix, "prefix", getEnvString("PDREC_S3_PREFIX", ""), "Key prefix")
	fs.BoolVar(&info.ForcePathStyle, "path-style", false, "Use path-style addressing")
	return info
}

func openS3(info *common.S3StorageInfo) storage.RecordingStorage {
	if info.Bucket == "" {
		fmt.Fprintf(os.Stderr, "Error: --bucket is required\n")
		os.Exit(1)
	}

	s, err := storage.NewRecordingStorage(storage.StorageOpts{
		Mode:        common.StorageModeS3,
		StorageInfo: info,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	return s
}

func pushCommand() {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	info := s3Flags(fs)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: pdrecctl push --bucket <bucket> <file>\n")
		os.Exit(1)
	}
	path := fs.Arg(0)

	// Refuse to upload anything that would not decode.
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to read %s", path)
	}
	if _, err := recording.ReadInfo(data); err != nil {
		log.Fatal().Err(err).Str("kind", common.ErrorKind(err)).Msgf("refusing to push %s", path)
	}

	s := openS3(info)
	if err := s.Put(context.Background(), filepath.Base(path), bytes.NewReader(data), int64(len(data))); err != nil {
		log.Fatal().Err(err).Msg("failed to push recording")
	}
}

func pullCommand() {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	info := s3Flags(fs)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Usage: pdrecctl pull --bucket <bucket> <name> <dest>\n")
		os.Exit(1)
	}
	name, dest := fs.Arg(0), fs.Arg(1)

	s := openS3(info)
	rc, err := s.Get(context.Background(), name)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to pull %s", name)
	}
	defer rc.Close()

	rec, err := recording.Read(rc)
	if err != nil {
		log.Fatal().Err(err).Str("kind", common.ErrorKind(err)).Msgf("pulled object %s is not a valid recording", name)
	}

	if err := recording.WriteFile(dest, rec); err != nil {
		log.Fatal().Err(err).Msg("failed to write recording")
	}
}

func metricsCommand() {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)

	var (
		format  = fs.String("format", "json", "Output format (json, prometheus, summary)")
		verbose = fs.Bool("verbose", false, "Verbose logging")
	)

	fs.Parse(os.Args[2:])

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	for _, path := range fs.Args() {
		if _, err := recording.ReadFile(path); err != nil {
			log.Warn().Err(err).Str("kind", common.ErrorKind(err)).Msgf("failed to decode %s", path)
		}
	}

	metricsData := metrics.GlobalMetrics.GetPrometheusMetrics()
	switch *format {
	case "prometheus":
		for _, key := range metrics.Keys(metricsData) {
			fmt.Printf("%s %v\n", key, metricsData[key])
		}
	case "summary":
		metrics.LogMetricsSummary()
	default: // json
		encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(metricsData)
	}
}

// Helper functions

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// knownFields returns the prompted settings already given by the config
// file or a flag, keyed by flag name.
func knownFields(cfg recording.GeneratorConfig, set map[string]bool) map[string]bool {
	known := map[string]bool{
		"description": cfg.Provided("description"),
		"universes":   cfg.Provided("universes"),
		"length":      cfg.Provided("length"),
		"freq":        cfg.Provided("frequency"),
	}
	for name := range set {
		known[name] = true
	}
	return known
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// fill asks for every generator setting not present in known.
func (p *prompter) fill(cfg *recording.GeneratorConfig, known map[string]bool) error {
	var err error

	if !known["description"] {
		if cfg.Description, err = p.ask("Enter recording description: "); err != nil {
			return err
		}
	}
	if !known["universes"] {
		if cfg.UniverseCount, err = p.askInt("Enter number of Universes: "); err != nil {
			return err
		}
	}
	if !known["length"] {
		if cfg.LengthSeconds, err = p.askInt("Enter recording length, in seconds: "); err != nil {
			return err
		}
	}
	if !known["freq"] {
		answer, err := p.ask("Enter sinewave frequency, in Hz: ")
		if err != nil {
			return err
		}
		if cfg.FrequencyHz, err = strconv.ParseFloat(answer, 64); err != nil {
			return fmt.Errorf("invalid frequency %q: %w", answer, err)
		}
	}
	return nil
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("no answer for %q: %w", strings.TrimSpace(question), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) askInt(question string) (int, error) {
	answer, err := p.ask(question)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", answer, err)
	}
	return n, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
