package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics collects encode/decode activity for recording files
type Metrics struct {
	mu sync.RWMutex

	// Encode metrics
	FilesEncodedTotal  int64
	BytesEncodedTotal  int64
	FramesEncodedTotal int64
	EncodeDurationNs   int64

	// Decode metrics
	FilesDecodedTotal  int64
	BytesDecodedTotal  int64
	FramesDecodedTotal int64
	DecodeDurationNs   int64

	// Failures by error kind
	FailuresTotal map[string]int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		FailuresTotal: make(map[string]int64),
	}
}

// RecordEncode records a successfully encoded recording file
func (m *Metrics) RecordEncode(bytes int64, frames int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FilesEncodedTotal++
	m.BytesEncodedTotal += bytes
	m.FramesEncodedTotal += frames
	m.EncodeDurationNs += duration.Nanoseconds()

	log.Debug().
		Int64("bytes", bytes).
		Int64("frames", frames).
		Dur("duration", duration).
		Msg("recording encoded")
}

// RecordDecode records a successfully decoded recording file
func (m *Metrics) RecordDecode(bytes int64, frames int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FilesDecodedTotal++
	m.BytesDecodedTotal += bytes
	m.FramesDecodedTotal += frames
	m.DecodeDurationNs += duration.Nanoseconds()

	log.Debug().
		Int64("bytes", bytes).
		Int64("frames", frames).
		Dur("duration", duration).
		Msg("recording decoded")
}

// RecordFailure records a failed encode or decode by error kind
func (m *Metrics) RecordFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailuresTotal[kind]++

	log.Debug().
		Str("kind", kind).
		Int64("total", m.FailuresTotal[kind]).
		Msg("recording failure")
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (m *Metrics) GetPrometheusMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make(map[string]interface{})

	metrics["pdrec_files_encoded_total"] = m.FilesEncodedTotal
	metrics["pdrec_bytes_encoded_total"] = m.BytesEncodedTotal
	metrics["pdrec_frames_encoded_total"] = m.FramesEncodedTotal
	metrics["pdrec_encode_seconds_total"] = float64(m.EncodeDurationNs) / 1e9
	metrics["pdrec_files_decoded_total"] = m.FilesDecodedTotal
	metrics["pdrec_bytes_decoded_total"] = m.BytesDecodedTotal
	metrics["pdrec_frames_decoded_total"] = m.FramesDecodedTotal
	metrics["pdrec_decode_seconds_total"] = float64(m.DecodeDurationNs) / 1e9

	for kind, count := range m.FailuresTotal {
		metrics["pdrec_failures_total{kind=\""+kind+"\"}"] = count
	}

	return metrics
}

// Keys returns the metric names of a snapshot in sorted order
func Keys(snapshot map[string]interface{}) []string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogSummary logs a summary of current metrics
func (m *Metrics) LogSummary() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failures int64
	for _, count := range m.FailuresTotal {
		failures += count
	}

	log.Info().
		Int64("files_encoded", m.FilesEncodedTotal).
		Int64("bytes_encoded", m.BytesEncodedTotal).
		Int64("files_decoded", m.FilesDecodedTotal).
		Int64("bytes_decoded", m.BytesDecodedTotal).
		Int64("frames_decoded", m.FramesDecodedTotal).
		Int64("failures", failures).
		Msg("metrics summary")
}

// Global metrics instance
var GlobalMetrics = NewMetrics()

// Convenience functions for global metrics
func RecordEncode(bytes int64, frames int64, duration time.Duration) {
	GlobalMetrics.RecordEncode(bytes, frames, duration)
}

func RecordDecode(bytes int64, frames int64, duration time.Duration) {
	GlobalMetrics.RecordDecode(bytes, frames, duration)
}

func RecordFailure(kind string) {
	GlobalMetrics.RecordFailure(kind)
}

func LogMetricsSummary() {
	GlobalMetrics.LogSummary()
}
