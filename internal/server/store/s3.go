package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
)

// rawPrefix is the top-level namespace for original (not yet transcoded)
// uploads. Keys are raw/<tenant>/<session>.<ext>.
const rawPrefix = "raw/"

// s3API is the subset of the S3 client the gateway uses. *s3.Client
// satisfies it; tests substitute a fake.
type s3API interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListParts(ctx context.Context, in *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Presigner is the presigning subset, satisfied by *s3.PresignClient.
type s3Presigner interface {
	PresignUploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Gateway implements Gateway over an S3-compatible endpoint (AWS, MinIO,
// R2, ...).
type S3Gateway struct {
	client    s3API
	presigner s3Presigner
	bucket    string
	signTTL   time.Duration
	logger    logging.Logger
}

// Options configures NewS3Gateway.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string

	// SignTTL bounds the validity of presigned part URLs. Defaults to 1h.
	SignTTL time.Duration
}

func NewS3Gateway(ctx context.Context, opts Options, logger logging.Logger) (*S3Gateway, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := opts.SignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &S3Gateway{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
		signTTL:   ttl,
		logger:    logger,
	}, nil
}

// validateKey enforces the tenant-prefix contract: raw/<tenant>/<object>,
// with no empty or path-traversing segments.
func validateKey(key string) error {
	if !strings.HasPrefix(key, rawPrefix) {
		return fmt.Errorf("%w: %q outside %q", common.ErrInvalidKey, key, rawPrefix)
	}
	segments := strings.Split(key, "/")
	if len(segments) < 3 {
		return fmt.Errorf("%w: %q missing tenant segment", common.ErrInvalidKey, key)
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", common.ErrInvalidKey, key)
		}
	}
	return nil
}

// validatePrefix is the prefix form of validateKey: the trailing segment may
// be partial but the tenant segment must be present.
func validatePrefix(prefix string) error {
	if !strings.HasPrefix(prefix, rawPrefix) {
		return fmt.Errorf("%w: prefix %q outside %q", common.ErrInvalidKey, prefix, rawPrefix)
	}
	segments := strings.Split(strings.TrimSuffix(prefix, "/"), "/")
	if len(segments) < 2 {
		return fmt.Errorf("%w: prefix %q missing tenant segment", common.ErrInvalidKey, prefix)
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: prefix %q", common.ErrInvalidKey, prefix)
		}
	}
	return nil
}

func (g *S3Gateway) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	out, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", mapStoreError("create multipart upload", err)
	}
	return aws.ToString(out.UploadId), nil
}

func (g *S3Gateway) SignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	req, err := g.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(g.signTTL))
	if err != nil {
		return "", mapStoreError("presign part", err)
	}
	return req.URL, nil
}

func (g *S3Gateway) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	if err := validateKey(key); err != nil {
		return err
	}

	completed := make([]s3types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = s3types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(g.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return mapStoreError("complete multipart upload", err)
	}
	return nil
}

func (g *S3Gateway) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		mapped := mapStoreError("abort multipart upload", err)
		if errors.Is(mapped, common.ErrNotFound) {
			// already aborted or completed
			g.logger.Warn(ctx, "abort of missing multipart upload", "key", key, "upload_id", uploadID)
			return nil
		}
		return mapped
	}
	return nil
}

func (g *S3Gateway) ListParts(ctx context.Context, key, uploadID string) ([]Part, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var parts []Part
	var marker *string
	for {
		out, err := g.client.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(g.bucket),
			Key:              aws.String(key),
			UploadId:         aws.String(uploadID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, mapStoreError("list parts", err)
		}
		for _, p := range out.Parts {
			parts = append(parts, Part{
				PartNumber: aws.ToInt32(p.PartNumber),
				ETag:       aws.ToString(p.ETag),
				Size:       aws.ToInt64(p.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			return parts, nil
		}
		marker = out.NextPartNumberMarker
	}
}

func (g *S3Gateway) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapStoreError("head object", err)
	}
	return &ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (g *S3Gateway) DeleteObject(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	// S3 delete of an absent key is already a no-op
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapStoreError("delete object", err)
	}
	return nil
}

func (g *S3Gateway) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := validatePrefix(prefix); err != nil {
		return 0, err
	}

	deleted := 0
	for {
		list, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(g.bucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return deleted, mapStoreError("list objects", err)
		}
		if len(list.Contents) == 0 {
			return deleted, nil
		}

		objects := make([]s3types.ObjectIdentifier, len(list.Contents))
		for i, obj := range list.Contents {
			objects[i] = s3types.ObjectIdentifier{Key: obj.Key}
		}
		out, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(g.bucket),
			Delete: &s3types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, mapStoreError("delete objects", err)
		}
		deleted += len(objects) - len(out.Errors)
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return deleted, fmt.Errorf("%w: delete %s: %s", common.ErrStoreUnavailable,
				aws.ToString(e.Key), aws.ToString(e.Message))
		}

		// listing again from scratch: deletions shift the result window, so
		// continuation tokens are not reliable here
		if !aws.ToBool(list.IsTruncated) {
			return deleted, nil
		}
	}
}

// mapStoreError translates SDK failures into the shared taxonomy. Anything
// without a recognized API error code is treated as a transient store
// failure.
func mapStoreError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchUpload", "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, common.ErrNotFound)
		case "InvalidPart", "InvalidPartOrder":
			return fmt.Errorf("%s: %w", op, common.ErrPartMismatch)
		case "AccessDenied":
			return fmt.Errorf("%s: %w", op, common.ErrForbidden)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, common.ErrStoreUnavailable, err)
}
