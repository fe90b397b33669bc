package s3storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, _ string, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = data
	f.types[key] = opts.ContentType
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, key string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return &url.URL{Scheme: "https", Host: "minio.local", Path: "/" + bucket + "/" + key}, nil
}

func TestPublishUsesDeterministicKey(t *testing.T) {
	fake := newFakeObjects()
	s := &Storage{client: fake, bucket: "artifacts"}
	art := model.Artifact{ItemID: "c1/material/m1", Kind: model.ArtifactQuiz, FileName: "Quiz-Intro.md", ContentType: "text/markdown", Data: []byte("# Quiz")}

	key, err := s.Publish(context.Background(), art, "courses/c1")
	require.NoError(t, err)
	assert.Equal(t, "courses/c1/c1/material/m1/Quiz-Intro.md", key)
	assert.Equal(t, []byte("# Quiz"), fake.objects[key])
	assert.Equal(t, "text/markdown", fake.types[key])

	again, err := s.Publish(context.Background(), art, "courses/c1")
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Len(t, fake.objects, 1)
}

func TestPublishFailureIsPublishError(t *testing.T) {
	fake := newFakeObjects()
	fake.putErr = errors.New("connection reset")
	s := &Storage{client: fake, bucket: "artifacts"}
	_, err := s.Publish(context.Background(), model.Artifact{Kind: model.ArtifactAudio}, "")
	var pubErr *model.PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, model.ArtifactAudio, pubErr.Kind)
}

func TestEnsureBucketCreatesOnce(t *testing.T) {
	fake := newFakeObjects()
	s := &Storage{client: fake, bucket: "artifacts"}
	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.True(t, fake.buckets["artifacts"])
	require.NoError(t, s.EnsureBucket(context.Background()))
}

func TestPresignURL(t *testing.T) {
	s := &Storage{client: newFakeObjects(), bucket: "artifacts"}
	u, err := s.PresignURL(context.Background(), "a/b.md", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/artifacts/a/b.md", u)
}

func TestObjectKeyFallsBackToKind(t *testing.T) {
	assert.Equal(t, "x/summary", ObjectKey("", model.Artifact{ItemID: "x", Kind: model.ArtifactSummary}))
}
