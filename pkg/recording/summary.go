package recording

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metadata"
)

const startTimeLayout = "2006-01-02 15:04:05"

// Summary is the human-readable description of a recording.
type Summary struct {
	ID            uuid.UUID
	Description   string
	DurationMs    int64
	Name          string
	NameRecorded  bool
	Protocol      common.Protocol
	StartTime     time.Time
	UniverseCount int
	// Frames per universe; nil when only metadata was read.
	Frames map[int]int
}

// Summarize describes rec. Files written by the reference generator have
// no name field; that is reported through NameRecorded rather than failing.
func Summarize(rec *Recording) Summary {
	s := summarize(rec.ID, rec.Metadata)
	s.Frames = make(map[int]int, len(rec.Streams))
	for n, st := range rec.Streams {
		s.Frames[n] = st.Len()
	}
	return s
}

// SummarizeInfo describes a recording from its header and metadata only.
func SummarizeInfo(info *Info) Summary {
	return summarize(info.ID, info.Metadata)
}

// SummarizeStrict describes rec and fails if the metadata carries no name,
// matching readers that treat name as required.
func SummarizeStrict(rec *Recording) (Summary, error) {
	name, err := metadata.RequireName(rec.Metadata)
	if err != nil {
		return Summary{}, err
	}
	s := Summarize(rec)
	s.Name = name
	return s, nil
}

func summarize(id uuid.UUID, meta *common.Metadata) Summary {
	s := Summary{
		ID:            id,
		Description:   meta.Description,
		DurationMs:    meta.Duration,
		Protocol:      meta.Protocol,
		StartTime:     meta.StartTime(),
		UniverseCount: len(meta.Universes),
	}

	if meta.Name != nil {
		s.Name = *meta.Name
		s.NameRecorded = true
	} else {
		log.Warn().Str("recording", id.String()).Msg("metadata has no name field, only description is recorded")
	}
	return s
}

// Print writes the summary in the reference reader's layout, with the
// start time rendered in loc.
func (s Summary) Print(w io.Writer, loc *time.Location) error {
	name := s.Name
	if !s.NameRecorded {
		name = "<not recorded>"
	}

	lines := []string{
		fmt.Sprintf("File UUID is %s", s.ID),
		fmt.Sprintf("Description: %s", s.Description),
		fmt.Sprintf("Duration: %d milliseconds", s.DurationMs),
		fmt.Sprintf("Name: %s", name),
		fmt.Sprintf("Protocol: %s", s.Protocol),
		fmt.Sprintf("Recording started at: %s", s.StartTime.In(loc).Format(startTimeLayout)),
		fmt.Sprintf("Contains %d universes", s.UniverseCount),
	}

	numbers := make([]int, 0, len(s.Frames))
	for n := range s.Frames {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		lines = append(lines, fmt.Sprintf("  Universe %d: %d frames", n, s.Frames[n]))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
