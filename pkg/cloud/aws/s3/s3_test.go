package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ objectstore.Client = &BucketStore{}

type fakeS3 struct {
	s3iface.S3API
	tags    map[string][]*s3.Tag
	tagErr  error
	created int
}

func (f *fakeS3) CreateBucketWithContext(_ aws.Context, in *s3.CreateBucketInput, _ ...request.Option) (*s3.CreateBucketOutput, error) {
	name := aws.StringValue(in.Bucket)
	if _, ok := f.tags[name]; ok {
		return nil, awserr.New(s3.ErrCodeBucketAlreadyOwnedByYou, "exists", nil)
	}
	f.tags[name] = nil
	f.created++
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketTaggingWithContext(_ aws.Context, in *s3.PutBucketTaggingInput, _ ...request.Option) (*s3.PutBucketTaggingOutput, error) {
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	f.tags[aws.StringValue(in.Bucket)] = in.Tagging.TagSet
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *fakeS3) GetBucketTaggingWithContext(_ aws.Context, in *s3.GetBucketTaggingInput, _ ...request.Option) (*s3.GetBucketTaggingOutput, error) {
	tags, ok := f.tags[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "missing", nil)
	}
	return &s3.GetBucketTaggingOutput{TagSet: tags}, nil
}

func (f *fakeS3) DeleteBucketWithContext(_ aws.Context, in *s3.DeleteBucketInput, _ ...request.Option) (*s3.DeleteBucketOutput, error) {
	name := aws.StringValue(in.Bucket)
	if _, ok := f.tags[name]; !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, "missing", nil)
	}
	delete(f.tags, name)
	return &s3.DeleteBucketOutput{}, nil
}

func TestBucketTagging(t *testing.T) {
	svc := &fakeS3{tags: map[string][]*s3.Tag{}}
	store := &BucketStore{S3: svc, Endpoint: "https://s3-openshift-storage.apps"}
	ctx := context.Background()

	require.NoError(t, store.CreateBucket(ctx, "bucket-0"))
	require.NoError(t, store.CreateBucket(ctx, "bucket-0"))
	assert.Equal(t, 1, svc.created)

	want := map[string]string{"run": "abcdef", "index": "0"}
	require.NoError(t, store.PutBucketTags(ctx, "bucket-0", want))
	assert.Equal(t, "index", aws.StringValue(svc.tags["bucket-0"][0].Key))

	got, err := store.GetBucketTags(ctx, "bucket-0")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.DeleteBucket(ctx, "bucket-0"))
	require.NoError(t, store.DeleteBucket(ctx, "bucket-0"))
}

func TestBucketTaggingErrors(t *testing.T) {
	svc := &fakeS3{tags: map[string][]*s3.Tag{}, tagErr: awserr.New("ServiceUnavailable", "gateway down", nil)}
	store := &BucketStore{S3: svc}
	ctx := context.Background()

	err := store.PutBucketTags(ctx, "bucket-0", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.ErrorTypeCommandFailed))
	assert.Contains(t, err.Error(), "gateway down")

	_, err = store.GetBucketTags(ctx, "missing")
	assert.Error(t, err)
}
