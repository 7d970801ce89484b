package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>recordings</Name>
  <Prefix>shows/</Prefix>
  <KeyCount>3</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>shows/b.pdrec</Key><Size>42</Size></Contents>
  <Contents><Key>shows/a.pdrec</Key><Size>42</Size></Contents>
  <Contents><Key>shows/readme.md</Key><Size>3</Size></Contents>
</ListBucketResult>`

const noSuchKeyResponse = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

func newMockS3(t *testing.T) (*S3RecordingStorage, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", `=~^http://s3\.mock/recordings/?$`, httpmock.NewStringResponder(200, ""))

	s, err := NewS3RecordingStorage(S3RecordingStorageOpts{
		Bucket:         "recordings",
		Region:         "us-east-1",
		Prefix:         "/shows/",
		Endpoint:       "http://s3.mock",
		AccessKey:      "test-access",
		SecretKey:      "test-secret",
		ForcePathStyle: true,
		HTTPClient:     &http.Client{Transport: transport},
	})
	require.NoError(t, err)
	return s, transport
}

func TestS3StoragePut(t *testing.T) {
	s, transport := newMockS3(t)

	var uploaded []byte
	transport.RegisterResponder("PUT", `=~^http://s3\.mock/recordings/shows/a\.pdrec`,
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			uploaded = body
			resp := httpmock.NewStringResponse(200, "")
			resp.Header.Set("ETag", `"etag"`)
			return resp, nil
		})

	body := []byte("Cage\x00\x00recording")
	require.NoError(t, s.Put(context.Background(), "a.pdrec", bytes.NewReader(body), int64(len(body))))
	assert.Equal(t, body, uploaded)

	assert.Error(t, s.Put(context.Background(), "nested/a.pdrec", bytes.NewReader(body), -1))
}

func TestS3StorageGet(t *testing.T) {
	s, transport := newMockS3(t)

	transport.RegisterResponder("GET", `=~^http://s3\.mock/recordings/shows/a\.pdrec`,
		httpmock.NewBytesResponder(200, []byte("Cage\x00\x00recording")))
	transport.RegisterResponder("GET", `=~^http://s3\.mock/recordings/shows/missing\.pdrec`,
		httpmock.NewStringResponder(404, noSuchKeyResponse))

	rc, err := s.Get(context.Background(), "a.pdrec")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Cage\x00\x00recording", string(got))

	_, err = s.Get(context.Background(), "missing.pdrec")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StorageList(t *testing.T) {
	s, transport := newMockS3(t)

	transport.RegisterResponder("GET", `=~^http://s3\.mock/recordings/?\?.*list-type=2`,
		httpmock.NewStringResponder(200, listResponse))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdrec", "b.pdrec"}, names)
}

func TestS3StorageBucketCheck(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", `=~^http://s3\.mock/`, httpmock.NewStringResponder(403, ""))

	_, err := NewS3RecordingStorage(S3RecordingStorageOpts{
		Bucket:         "private",
		Region:         "us-east-1",
		Endpoint:       "http://s3.mock",
		AccessKey:      "test-access",
		SecretKey:      "test-secret",
		ForcePathStyle: true,
		HTTPClient:     &http.Client{Transport: transport},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access bucket <private>")
}
