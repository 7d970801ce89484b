// Package metadata serializes and validates the recording metadata document.
package metadata

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/beam-cloud/pdrec/pkg/common"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var requiredFields = []string{"description", "duration", "protocol", "start_timestamp", "universes"}

// Serialize validates m and encodes it as indented JSON.
func Serialize(m *common.Metadata) ([]byte, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}

	universes := m.Universes
	if universes == nil {
		universes = []common.Universe{}
	}
	doc := *m
	doc.Universes = universes

	data, err := json.MarshalIndent(&doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

// Parse decodes and validates a metadata document.
func Parse(data []byte) (*common.Metadata, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMetadata, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: document is not an object", common.ErrMalformedMetadata)
	}

	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, missing(name)
		}
	}

	m := &common.Metadata{}
	var err error

	if m.Description, err = parseString("description", fields["description"]); err != nil {
		return nil, err
	}
	if m.Duration, err = parseNonNegative("duration", fields["duration"]); err != nil {
		return nil, err
	}
	if m.StartTimestamp, err = parseNonNegative("start_timestamp", fields["start_timestamp"]); err != nil {
		return nil, err
	}

	protocol, err := parseString("protocol", fields["protocol"])
	if err != nil {
		return nil, err
	}
	m.Protocol = common.Protocol(protocol)

	if raw, ok := fields["name"]; ok && !isNull(raw) {
		name, err := parseString("name", raw)
		if err != nil {
			return nil, err
		}
		m.Name = &name
	}

	if m.Universes, err = parseUniverses(fields["universes"]); err != nil {
		return nil, err
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the semantic constraints of a metadata document.
func Validate(m *common.Metadata) error {
	if m == nil {
		return fmt.Errorf("%w: nil metadata", common.ErrMalformedMetadata)
	}
	if m.Duration < 0 {
		return invalid("duration", fmt.Sprintf("must not be negative, got %d", m.Duration))
	}
	if m.StartTimestamp < 0 {
		return invalid("start_timestamp", fmt.Sprintf("must not be negative, got %d", m.StartTimestamp))
	}
	if !m.Protocol.Valid() {
		return invalid("protocol", fmt.Sprintf("must be %q or %q, got %q", common.ProtocolSACN, common.ProtocolArtNet, m.Protocol))
	}

	seen := make(map[int]struct{}, len(m.Universes))
	for i, u := range m.Universes {
		field := fmt.Sprintf("universes[%d]", i)
		if u.Number < 0 {
			return invalid(field+".number", fmt.Sprintf("must not be negative, got %d", u.Number))
		}
		if u.FrameRate <= 0 {
			return invalid(field+".frame_rate", fmt.Sprintf("must be positive, got %d", u.FrameRate))
		}
		if _, dup := seen[u.Number]; dup {
			return invalid(field+".number", fmt.Sprintf("universe %d listed more than once", u.Number))
		}
		seen[u.Number] = struct{}{}
	}
	return nil
}

// RequireName returns the name field, failing when it is absent. Readers
// that print the name unconditionally go through here.
func RequireName(m *common.Metadata) (string, error) {
	if m.Name == nil {
		return "", missing("name")
	}
	return *m.Name, nil
}

func parseUniverses(raw jsoniter.RawMessage) ([]common.Universe, error) {
	var entries []map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || isNull(raw) {
		return nil, &common.FieldError{Field: "universes", Reason: "must be an array of objects", Err: common.ErrMalformedMetadata}
	}

	universes := make([]common.Universe, 0, len(entries))
	for i, entry := range entries {
		field := fmt.Sprintf("universes[%d]", i)
		if entry == nil {
			return nil, &common.FieldError{Field: field, Reason: "must be an object", Err: common.ErrMalformedMetadata}
		}

		numberRaw, ok := entry["number"]
		if !ok {
			return nil, missing(field + ".number")
		}
		rateRaw, ok := entry["frame_rate"]
		if !ok {
			return nil, missing(field + ".frame_rate")
		}

		number, err := parseInt(field+".number", numberRaw)
		if err != nil {
			return nil, err
		}
		rate, err := parseInt(field+".frame_rate", rateRaw)
		if err != nil {
			return nil, err
		}

		universes = append(universes, common.Universe{Number: int(number), FrameRate: int(rate)})
	}
	return universes, nil
}

func parseString(field string, raw jsoniter.RawMessage) (string, error) {
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return "", invalid(field, "must be a string")
	}
	return s, nil
}

func parseInt(field string, raw jsoniter.RawMessage) (int64, error) {
	v, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, invalid(field, fmt.Sprintf("must be an integer, got %s", bytes.TrimSpace(raw)))
	}
	return v, nil
}

func parseNonNegative(field string, raw jsoniter.RawMessage) (int64, error) {
	v, err := parseInt(field, raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, invalid(field, fmt.Sprintf("must not be negative, got %d", v))
	}
	return v, nil
}

func isNull(raw jsoniter.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func missing(field string) error {
	return &common.FieldError{Field: field, Reason: "required field is missing", Err: common.ErrMalformedMetadata}
}

func invalid(field, reason string) error {
	return &common.FieldError{Field: field, Reason: reason, Err: common.ErrInvalidField}
}
