package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/common"
)

type LocalRecordingStorage struct {
	root string
}

type LocalRecordingStorageOpts struct {
	Path string
}

func NewLocalRecordingStorage(opts LocalRecordingStorageOpts) (*LocalRecordingStorage, error) {
	if opts.Path == "" {
		return nil, errors.New("local storage path not provided")
	}
	root := filepath.Clean(opts.Path)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory <%s>: %v", root, err)
	}

	return &LocalRecordingStorage{root: root}, nil
}

func (s *LocalRecordingStorage) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := validateName(name); err != nil {
		return err
	}

	dest := filepath.Join(s.root, name)
	lockFilePath := dest + ".lock"
	fileLock := flock.New(lockFilePath)
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", lockFilePath, err)
	}
	defer fileLock.Unlock()

	tmp, err := os.CreateTemp(s.root, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return err
	}
	if size >= 0 && n != size {
		tmp.Close()
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", name, n, size)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}

	log.Debug().Str("name", name).Int64("bytes", n).Msg("stored recording")
	return nil
}

func (s *LocalRecordingStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

func (s *LocalRecordingStorage) List(ctx context.Context) ([]string, error) {
	var names []string

	err := godirwalk.Walk(s.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() {
				if osPathname != s.root {
					return godirwalk.SkipThis
				}
				return nil
			}
			name := de.Name()
			if de.IsRegular() && strings.HasSuffix(name, common.RecordingFileExtension) && !strings.HasPrefix(name, ".") {
				names = append(names, name)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
