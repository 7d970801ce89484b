package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/beam-cloud/pdrec/pkg/common"
)

var ErrNotFound = errors.New("recording not found")

// RecordingStorage stores encoded recording files under flat names.
type RecordingStorage interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
}

type RecordingStorageCredentials struct {
	S3 *S3RecordingStorageCredentials
}

type StorageOpts struct {
	Mode        common.StorageMode
	LocalPath   string
	StorageInfo *common.S3StorageInfo
	Credentials RecordingStorageCredentials
}

func NewRecordingStorage(opts StorageOpts) (RecordingStorage, error) {
	var storage RecordingStorage = nil
	var err error = nil

	switch opts.Mode {
	case common.StorageModeS3:
		if opts.StorageInfo == nil {
			return nil, errors.New("storage info not provided")
		}

		s3Opts := S3RecordingStorageOpts{
			Bucket:         opts.StorageInfo.Bucket,
			Region:         opts.StorageInfo.Region,
			Prefix:         opts.StorageInfo.Prefix,
			Endpoint:       opts.StorageInfo.Endpoint,
			ForcePathStyle: opts.StorageInfo.ForcePathStyle,
		}
		if opts.Credentials.S3 != nil {
			s3Opts.AccessKey = opts.Credentials.S3.AccessKey
			s3Opts.SecretKey = opts.Credentials.S3.SecretKey
		}

		storage, err = NewS3RecordingStorage(s3Opts)
	case common.StorageModeLocal, "":
		storage, err = NewLocalRecordingStorage(LocalRecordingStorageOpts{
			Path: opts.LocalPath,
		})
	default:
		err = fmt.Errorf("unsupported storage mode %q", opts.Mode)
	}

	if err != nil {
		return nil, err
	}

	return storage, nil
}

// validateName rejects names that could escape the storage root.
func validateName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid recording name %q", name)
	}
	if !strings.HasSuffix(name, common.RecordingFileExtension) {
		return fmt.Errorf("invalid recording name %q: must end in %s", name, common.RecordingFileExtension)
	}
	return nil
}
