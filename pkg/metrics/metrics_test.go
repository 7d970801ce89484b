package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordEncode(100, 50, time.Millisecond)
	m.RecordEncode(200, 100, time.Millisecond)
	m.RecordDecode(300, 150, 2*time.Millisecond)
	m.RecordFailure("bad_magic")
	m.RecordFailure("bad_magic")
	m.RecordFailure("truncated")

	snapshot := m.GetPrometheusMetrics()
	assert.Equal(t, int64(2), snapshot["pdrec_files_encoded_total"])
	assert.Equal(t, int64(300), snapshot["pdrec_bytes_encoded_total"])
	assert.Equal(t, int64(150), snapshot["pdrec_frames_encoded_total"])
	assert.Equal(t, int64(1), snapshot["pdrec_files_decoded_total"])
	assert.Equal(t, int64(150), snapshot["pdrec_frames_decoded_total"])
	assert.Equal(t, int64(2), snapshot[`pdrec_failures_total{kind="bad_magic"}`])
	assert.Equal(t, int64(1), snapshot[`pdrec_failures_total{kind="truncated"}`])
	assert.InDelta(t, 0.002, snapshot["pdrec_decode_seconds_total"], 1e-9)
}

func TestKeysSorted(t *testing.T) {
	keys := Keys(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
