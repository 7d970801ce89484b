// Package catalog indexes the recording files under a directory tree.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beam-cloud/ristretto"
	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/common"
	"github.com/beam-cloud/pdrec/pkg/recording"
)

const defaultMaxEntries = 1 << 16

// Entry describes one file found by Scan. Files that fail to decode are
// still listed, with Err set.
type Entry struct {
	Path     string
	ID       uuid.UUID
	Metadata *common.Metadata
	Size     int64
	ModTime  time.Time
	Err      error
}

// Catalog caches decoded metadata keyed by path, size and modification
// time, so rescanning an unchanged tree only stats files.
type Catalog struct {
	cache  *ristretto.Cache[string, *Entry]
	hits   atomic.Int64
	misses atomic.Int64
}

func New() (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Entry]{
		NumCounters: defaultMaxEntries * 10,
		MaxCost:     defaultMaxEntries,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &Catalog{cache: cache}, nil
}

// Scan walks root and returns an entry for every recording file, sorted by path.
func (c *Catalog) Scan(ctx context.Context, root string) ([]Entry, error) {
	var paths []string

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsRegular() && strings.HasSuffix(osPathname, common.RecordingFileExtension) {
				paths = append(paths, osPathname)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		entry, err := c.lookup(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	log.Debug().Str("root", root).Int("files", len(entries)).Int64("hits", c.hits.Load()).Msg("catalog scan complete")
	return entries, nil
}

func (c *Catalog) lookup(path string) (*Entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:%d:%d", path, fi.Size(), fi.ModTime().UnixNano())
	if entry, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return entry, nil
	}
	c.misses.Add(1)

	entry := &Entry{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := recording.ReadInfo(data)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("skipping unreadable recording")
		entry.Err = err
	} else {
		entry.ID = info.ID
		entry.Metadata = info.Metadata
	}

	c.cache.Set(key, entry, 1)
	return entry, nil
}

// Stats returns the cache hit and miss counts since New.
func (c *Catalog) Stats() (hits int64, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Wait blocks until pending cache writes are visible.
func (c *Catalog) Wait() {
	c.cache.Wait()
}

func (c *Catalog) Close() {
	c.cache.Close()
}
