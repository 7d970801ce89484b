package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/pdrec/pkg/common"
)

type S3RecordingStorageCredentials struct {
	AccessKey string
	SecretKey string
}

type S3RecordingStorage struct {
	svc    *s3.Client
	bucket string
	prefix string
}

type S3RecordingStorageOpts struct {
	Bucket         string
	Region         string
	Prefix         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool

	// HTTPClient overrides the transport used for every request.
	HTTPClient *http.Client
}

func NewS3RecordingStorage(opts S3RecordingStorageOpts) (*S3RecordingStorage, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket not provided")
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(accessKey, secretKey, opts.Region, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// Check to see if we have access to the bucket
	_, err = svc.HeadBucket(context.TODO(), &s3.HeadBucketInput{
		Bucket: aws.String(opts.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot access bucket <%s>: %v", opts.Bucket, err)
	}

	prefix := strings.Trim(opts.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3RecordingStorage{
		svc:    svc,
		bucket: opts.Bucket,
		prefix: prefix,
	}, nil
}

func getAWSConfig(accessKey string, secretKey string, region string, httpClient *http.Client) (aws.Config, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
	}
	if accessKey != "" && secretKey != "" {
		credentials := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials))
	}

	return config.LoadDefaultConfig(context.TODO(), loadOpts...)
}

func (s3s *S3RecordingStorage) key(name string) string {
	return s3s.prefix + name
}

func (s3s *S3RecordingStorage) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := validateName(name); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(s3s.key(name)),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	uploader := manager.NewUploader(s3s.svc)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload recording <%s>: %v", name, err)
	}

	log.Info().Msgf("uploaded <%s> to s3://%s/%s", name, s3s.bucket, s3s.key(name))
	return nil
}

func (s3s *S3RecordingStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	resp, err := s3s.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(s3s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	return resp.Body, nil
}

func (s3s *S3RecordingStorage) List(ctx context.Context) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s3s.svc, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3s.bucket),
		Prefix: aws.String(s3s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %v", s3s.bucket, s3s.prefix, err)
		}

		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s3s.prefix)
			if rel != path.Base(rel) || !strings.HasSuffix(rel, common.RecordingFileExtension) {
				continue
			}
			names = append(names, rel)
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
