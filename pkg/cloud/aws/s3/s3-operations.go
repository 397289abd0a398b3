package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/cloud/aws/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
)

// BucketStore talks to an s3 compatible object gateway
type BucketStore struct {
	S3       s3iface.S3API
	Endpoint string
}

// NewBucketStore returns a store for the gateway endpoint, an empty endpoint uses aws s3
func NewBucketStore(region, endpoint string) *BucketStore {
	return &BucketStore{S3: s3.New(common.GetAWSSession(region, endpoint)), Endpoint: endpoint}
}

// CreateBucket creates the bucket, a bucket already owned by the caller is reused
func (b *BucketStore) CreateBucket(ctx context.Context, name string) error {
	_, err := b.S3.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil && common.ErrorCode(err) != s3.ErrCodeBucketAlreadyOwnedByYou {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: b.target(name), Reason: fmt.Sprintf("failed to create bucket: %v", common.CheckAWSError(err))}
	}
	log.Infof("[PreReq]: Bucket %v is ready", name)
	return nil
}

// PutBucketTags replaces the tag set of the bucket
func (b *BucketStore) PutBucketTags(ctx context.Context, name string, tags map[string]string) error {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tagSet := make([]*s3.Tag, 0, len(keys))
	for _, k := range keys {
		tagSet = append(tagSet, &s3.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}

	_, err := b.S3.PutBucketTaggingWithContext(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(name),
		Tagging: &s3.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: b.target(name), Reason: fmt.Sprintf("failed to tag bucket: %v", common.CheckAWSError(err))}
	}
	return nil
}

// GetBucketTags returns the tag set of the bucket
func (b *BucketStore) GetBucketTags(ctx context.Context, name string) (map[string]string, error) {
	out, err := b.S3.GetBucketTaggingWithContext(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: b.target(name), Reason: fmt.Sprintf("failed to get bucket tags: %v", common.CheckAWSError(err))}
	}
	tags := map[string]string{}
	for _, t := range out.TagSet {
		tags[aws.StringValue(t.Key)] = aws.StringValue(t.Value)
	}
	return tags, nil
}

// DeleteBucket removes the bucket, a missing bucket is not an error
func (b *BucketStore) DeleteBucket(ctx context.Context, name string) error {
	_, err := b.S3.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil && common.ErrorCode(err) != s3.ErrCodeNoSuchBucket {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: b.target(name), Reason: fmt.Sprintf("failed to delete bucket: %v", common.CheckAWSError(err))}
	}
	return nil
}

func (b *BucketStore) target(name string) string {
	return fmt.Sprintf("{Bucket: %v, Endpoint: %v}", name, b.Endpoint)
}
