package common

import "time"

type Protocol string

const (
	ProtocolSACN   Protocol = "sACN"
	ProtocolArtNet Protocol = "ArtNet"
)

// Valid reports whether p is a protocol label a reader accepts.
func (p Protocol) Valid() bool {
	return p == ProtocolSACN || p == ProtocolArtNet
}

type Universe struct {
	FrameRate int `json:"frame_rate"`
	Number    int `json:"number"`
}

// Metadata is the document stored in the "metadata" archive member.
// Name is never written by the reference generator but older readers
// expect it, so it is kept optional.
type Metadata struct {
	Description    string     `json:"description"`
	Duration       int64      `json:"duration"` // milliseconds
	Name           *string    `json:"name,omitempty"`
	Protocol       Protocol   `json:"protocol"`
	StartTimestamp int64      `json:"start_timestamp"` // unix seconds
	Universes      []Universe `json:"universes"`
}

// StartTime returns the recording start as a time.Time.
func (m *Metadata) StartTime() time.Time {
	return time.Unix(m.StartTimestamp, 0)
}

// UniverseNumbers returns the universe numbers in metadata order.
func (m *Metadata) UniverseNumbers() []int {
	numbers := make([]int, 0, len(m.Universes))
	for _, u := range m.Universes {
		numbers = append(numbers, u.Number)
	}
	return numbers
}
