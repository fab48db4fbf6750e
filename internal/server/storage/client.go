// Package storage builds per-tenant S3-compatible clients from sealed
// credentials and wraps the blob operations the sync engine needs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
)

// Blob is the view of a tenant-bound storage client the rest of the server
// programs against.
type Blob interface {
	// Put uploads content at key with overwrite semantics.
	Put(ctx context.Context, key string, content []byte) error
	// Get downloads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// EnsureBucket makes a best-effort attempt to create the expected
	// bucket. It never fails; see the method comment.
	EnsureBucket(ctx context.Context)
	// Ping performs a lightweight connectivity check.
	Ping(ctx context.Context) error
	// UsedClass reports which credential class the client was built with.
	UsedClass() models.CredentialClass
}

// s3API is the subset of *s3.Client the wrapper uses; narrowed for tests.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client is a storage client bound to one tenant's endpoint, bucket and
// credential class.
type Client struct {
	api    s3API
	bucket string
	class  models.CredentialClass
	logger logging.Logger
}

func (c *Client) UsedClass() models.CredentialClass {
	return c.class
}

func (c *Client) Put(ctx context.Context, key string, content []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return classify("put object", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get object", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("get object: %w: %v", common.ErrIO, err)
	}
	return content, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify("delete object", err)
	}
	return nil
}

// EnsureBucket lists buckets and creates the expected one when missing.
// Listing can fail under a restricted key that lacks the permission even
// though the bucket exists, so every failure here is a warning, never an
// error: restricted-key tenants use infrastructure an elevated-key tenant
// already provisioned. A creation race losing to "already exists" is
// success.
func (c *Client) EnsureBucket(ctx context.Context) {
	out, err := c.api.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		c.logger.Warn(ctx, "bucket listing failed, assuming bucket exists", "bucket", c.bucket, "error", err.Error())
		return
	}

	for _, b := range out.Buckets {
		if aws.ToString(b.Name) == c.bucket {
			return
		}
	}

	_, err = c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return
		}
		c.logger.Warn(ctx, "bucket creation failed, continuing", "bucket", c.bucket, "error", err.Error())
	}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return classify("head bucket", err)
	}
	return nil
}

// classify folds an S3 error into the platform taxonomy: permission,
// not-found, or generic i/o.
func classify(op string, err error) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &noBucket) {
		return fmt.Errorf("%s: %w: %v", op, common.ErrNotFound, err)
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s: %w: %v", op, common.ErrPermission, err)
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%s: %w: %v", op, common.ErrNotFound, err)
		}
	}

	return fmt.Errorf("%s: %w: %v", op, common.ErrIO, err)
}
