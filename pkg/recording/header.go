package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/google/uuid"
)

// EncodeHeader returns the 22-byte file header for id. The id is stored as
// a little-endian 128-bit value, which is the byte order DecodeHeader reads.
func EncodeHeader(id uuid.UUID) []byte {
	header := common.RecordingHeader{
		Version:     common.RecordingFileFormatVersion,
		RecordingID: reverseID(id),
	}
	copy(header.StartBytes[:], common.RecordingFileStartBytes)

	out := make([]byte, common.RecordingHeaderLength)
	copy(out[0:4], header.StartBytes[:])
	binary.LittleEndian.PutUint16(out[4:6], header.Version)
	copy(out[6:], header.RecordingID[:])
	return out
}

// DecodeHeader validates the header at the start of data and returns the
// recording id and the unconsumed payload that follows it.
func DecodeHeader(data []byte) (uuid.UUID, []byte, error) {
	if n := min(len(data), len(common.RecordingFileStartBytes)); !bytes.Equal(data[:n], common.RecordingFileStartBytes[:n]) {
		return uuid.Nil, nil, fmt.Errorf("%w: got % x", common.ErrBadMagic, data[:n])
	}
	if len(data) >= 6 {
		if version := binary.LittleEndian.Uint16(data[4:6]); version != common.RecordingFileFormatVersion {
			return uuid.Nil, nil, fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, version)
		}
	}
	if len(data) < common.RecordingHeaderLength {
		return uuid.Nil, nil, fmt.Errorf("%w: header is %d bytes, want %d", common.ErrTruncated, len(data), common.RecordingHeaderLength)
	}

	var header common.RecordingHeader
	if err := binary.Read(bytes.NewReader(data[:common.RecordingHeaderLength]), binary.LittleEndian, &header); err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: %v", common.ErrTruncated, err)
	}

	return reverseID(header.RecordingID), data[common.RecordingHeaderLength:], nil
}

// ReadHeader reads and validates exactly one header from r.
func ReadHeader(r io.Reader) (uuid.UUID, error) {
	buf := make([]byte, common.RecordingHeaderLength)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return uuid.Nil, err
	}

	id, _, err := DecodeHeader(buf[:n])
	return id, err
}

// reverseID converts between RFC 4122 byte order and the little-endian
// order used on disk. It is its own inverse.
func reverseID(id [16]byte) [16]byte {
	var out [16]byte
	for i := range id {
		out[i] = id[len(id)-1-i]
	}
	return out
}
