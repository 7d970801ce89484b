// Package archive assembles and extracts the compressed archive carried
// in the payload of a recording file.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/rs/zerolog/log"
	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/metadata"
	"github.com/beam-cloud/pdrec/pkg/stream"
)

type RecordingArchiverOptions struct {
	// CompressionLevel is a gzip level; zero selects gzip.DefaultCompression.
	CompressionLevel int
	// MaxMemberSize bounds the decompressed size of a single member.
	MaxMemberSize int64
}

type RecordingArchiver struct {
	opts RecordingArchiverOptions
}

func NewRecordingArchiver(opts RecordingArchiverOptions) *RecordingArchiver {
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = gzip.DefaultCompression
	}
	if opts.MaxMemberSize <= 0 {
		opts.MaxMemberSize = DefaultMaxMemberSize
	}
	return &RecordingArchiver{opts: opts}
}

var defaultArchiver = NewRecordingArchiver(RecordingArchiverOptions{})

// Assemble builds a compressed archive with the default archiver.
func Assemble(meta *common.Metadata, streams map[int]*stream.Stream) ([]byte, error) {
	return defaultArchiver.Assemble(meta, streams)
}

// Extract reads a compressed archive with the default archiver.
func Extract(data []byte) (*common.Metadata, map[int]*stream.Stream, error) {
	return defaultArchiver.Extract(data)
}

// ExtractMetadata reads only the metadata member with the default archiver.
func ExtractMetadata(data []byte) (*common.Metadata, error) {
	return defaultArchiver.ExtractMetadata(data)
}

func (ra *RecordingArchiver) Assemble(meta *common.Metadata, streams map[int]*stream.Stream) ([]byte, error) {
	var buf bytes.Buffer
	if err := ra.Write(&buf, meta, streams); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the metadata member followed by one member per universe in
// ascending universe order. Every universe listed in meta must have a stream
// and every stream must be listed in meta.
func (ra *RecordingArchiver) Write(w io.Writer, meta *common.Metadata, streams map[int]*stream.Stream) error {
	metaBytes, err := metadata.Serialize(meta)
	if err != nil {
		return err
	}

	numbers := meta.UniverseNumbers()
	for _, n := range numbers {
		if streams[n] == nil {
			return &common.MissingUniverseError{Number: n}
		}
	}
	if len(streams) != len(numbers) {
		listed := make(map[int]struct{}, len(numbers))
		for _, n := range numbers {
			listed[n] = struct{}{}
		}
		for n := range streams {
			if _, ok := listed[n]; !ok {
				return &common.FieldError{Field: "universes", Reason: fmt.Sprintf("stream for universe %d is not listed", n), Err: common.ErrInvalidField}
			}
		}
	}
	sort.Ints(numbers)

	gz, err := gzip.NewWriterLevel(w, ra.opts.CompressionLevel)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	modTime := meta.StartTime()
	if err := writeMember(tw, MetadataMemberName, metaBytes, modTime); err != nil {
		return err
	}

	for _, n := range numbers {
		data, err := streams[n].Bytes()
		if err != nil {
			return fmt.Errorf("universe %d: %w", n, err)
		}
		if err := writeMember(tw, universeMemberName(n), data, modTime); err != nil {
			return err
		}
		log.Debug().Int("universe", n).Int("frames", streams[n].Len()).Int("bytes", len(data)).Msg("archived universe")
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

func writeMember(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     memberMode,
		Size:     int64(len(data)),
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for member %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write member %s: %w", name, err)
	}
	return nil
}

// Extract decompresses the archive, parses the metadata and every universe
// stream it references. Nothing is returned unless all of them are valid.
func (ra *RecordingArchiver) Extract(data []byte) (*common.Metadata, map[int]*stream.Stream, error) {
	index, err := ra.readMembers(data)
	if err != nil {
		return nil, nil, err
	}

	meta, err := parseMetadataMember(index)
	if err != nil {
		return nil, nil, err
	}

	referenced := map[string]struct{}{MetadataMemberName: {}}
	members := make([]*member, len(meta.Universes))
	for i, u := range meta.Universes {
		m := lookupUniverse(index, u.Number)
		if m == nil {
			return nil, nil, &common.MissingUniverseError{Number: u.Number}
		}
		members[i] = m
		referenced[m.name] = struct{}{}
	}

	index.Scan(func(m *member) bool {
		if _, ok := referenced[m.name]; !ok {
			log.Warn().Str("member", m.name).Msg("ignoring unreferenced archive member")
		}
		return true
	})

	parsed := make([]*stream.Stream, len(members))
	errs := make([]error, len(members))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range members {
		i := i
		g.Go(func() error {
			parsed[i], errs[i] = stream.Parse(members[i].data)
			return errs[i]
		})
	}
	g.Wait()

	streams := make(map[int]*stream.Stream, len(members))
	for i, u := range meta.Universes {
		if errs[i] != nil {
			return nil, nil, fmt.Errorf("universe %d: %w", u.Number, errs[i])
		}
		streams[u.Number] = parsed[i]
	}

	return meta, streams, nil
}

// ExtractMetadata decompresses the archive and parses only the metadata
// member. Universe members are not checked.
func (ra *RecordingArchiver) ExtractMetadata(data []byte) (*common.Metadata, error) {
	index, err := ra.readMembers(data)
	if err != nil {
		return nil, err
	}
	return parseMetadataMember(index)
}

func parseMetadataMember(index *btree.BTreeG[*member]) (*common.Metadata, error) {
	m, ok := index.Get(&member{name: MetadataMemberName})
	if !ok {
		return nil, common.ErrMissingMetadata
	}
	meta, err := metadata.Parse(m.data)
	if err != nil {
		return nil, fmt.Errorf("error decoding metadata: %w", err)
	}
	return meta, nil
}

func lookupUniverse(index *btree.BTreeG[*member], n int) *member {
	for _, name := range universeMemberCandidates(n) {
		if m, ok := index.Get(&member{name: name}); ok {
			return m
		}
	}
	return nil
}

// readMembers decompresses every regular file in the archive into an index
// keyed by normalized member name.
func (ra *RecordingArchiver) readMembers(data []byte) (*btree.BTreeG[*member], error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, corrupt("failed to open gzip stream", err)
	}
	defer gz.Close()

	index := newIndex()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt("failed to read tar header", err)
		}

		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		name := normalizeName(hdr.Name)
		if hdr.Size > ra.opts.MaxMemberSize {
			return nil, corrupt(fmt.Sprintf("member %s", name), fmt.Errorf("size %d exceeds limit %d", hdr.Size, ra.opts.MaxMemberSize))
		}

		// The buffer grows with the data actually present, so a header that
		// overstates its size cannot force a large allocation.
		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, corrupt(fmt.Sprintf("failed to read member %s", name), err)
		}
		if n != hdr.Size {
			return nil, corrupt(fmt.Sprintf("failed to read member %s", name), fmt.Errorf("got %d of %d bytes", n, hdr.Size))
		}

		if _, dup := index.Set(&member{name: name, data: buf.Bytes()}); dup {
			log.Warn().Str("member", name).Msg("duplicate archive member, keeping the last one")
		}
	}

	// Drain the remainder so the gzip checksum is verified and trailing
	// garbage is rejected.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, corrupt("failed to finish gzip stream", err)
	}

	return index, nil
}

func corrupt(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrCorruptArchive, msg, err)
}
