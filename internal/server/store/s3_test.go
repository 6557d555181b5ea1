package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
)

// fakeS3 implements s3API with programmable behavior per call.
type fakeS3 struct {
	s3API

	createOut *s3.CreateMultipartUploadOutput
	createErr error

	completeIn  *s3.CompleteMultipartUploadInput
	completeErr error

	abortCalls int
	abortErr   error

	listPartsOut []*s3.ListPartsOutput
	listPartsIdx int

	// objects remaining under the prefix, consumed page by page
	objects      []string
	pageSize     int
	listCalls    int
	deleteCalls  int
	deleteErrors []s3types.Error
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return f.createOut, f.createErr
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.completeIn = in
	return &s3.CompleteMultipartUploadOutput{}, f.completeErr
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.abortCalls++
	return &s3.AbortMultipartUploadOutput{}, f.abortErr
}

func (f *fakeS3) ListParts(ctx context.Context, in *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	out := f.listPartsOut[f.listPartsIdx]
	f.listPartsIdx++
	return out, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	n := f.pageSize
	if n > len(f.objects) {
		n = len(f.objects)
	}
	page := make([]s3types.Object, 0, n)
	for _, key := range f.objects[:n] {
		page = append(page, s3types.Object{Key: aws.String(key)})
	}
	return &s3.ListObjectsV2Output{
		Contents:    page,
		IsTruncated: aws.Bool(len(f.objects) > n),
	}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleteCalls++
	f.objects = f.objects[len(in.Delete.Objects):]
	return &s3.DeleteObjectsOutput{Errors: f.deleteErrors}, nil
}

type fakePresigner struct {
	lastInput *s3.UploadPartInput
	url       string
	err       error
}

func (f *fakePresigner) PresignUploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url, Method: "PUT"}, nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newGateway(client s3API, presigner s3Presigner) *S3Gateway {
	return &S3Gateway{
		client:    client,
		presigner: presigner,
		bucket:    "vidcastx",
		signTTL:   time.Hour,
		logger:    testLogger(),
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"raw/org_1/vid_1.mp4", false},
		{"raw/org_1/sub/vid_1.mp4", false},
		{"public/org_1/vid_1.mp4", true},
		{"raw/vid_1.mp4", true},
		{"raw/org_1/../other/vid.mp4", true},
		{"raw//vid_1.mp4", true},
	}
	for _, tc := range tests {
		err := validateKey(tc.key)
		if tc.wantErr {
			assert.ErrorIs(t, err, common.ErrInvalidKey, "key %q", tc.key)
		} else {
			assert.NoError(t, err, "key %q", tc.key)
		}
	}
}

func TestCreateMultipartUpload_ReturnsUploadID(t *testing.T) {
	client := &fakeS3{createOut: &s3.CreateMultipartUploadOutput{UploadId: aws.String("mpu-1")}}
	g := newGateway(client, &fakePresigner{})

	id, err := g.CreateMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "mpu-1", id)
}

func TestCreateMultipartUpload_RejectsForeignPrefix(t *testing.T) {
	g := newGateway(&fakeS3{}, &fakePresigner{})

	_, err := g.CreateMultipartUpload(context.Background(), "other/org_1/vid_1.mp4", "video/mp4")
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

func TestSignPart_PassesPartNumber(t *testing.T) {
	presigner := &fakePresigner{url: "https://signed.example/part"}
	g := newGateway(&fakeS3{}, presigner)

	url, err := g.SignPart(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1", 7)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/part", url)
	assert.Equal(t, int32(7), aws.ToInt32(presigner.lastInput.PartNumber))
	assert.Equal(t, "mpu-1", aws.ToString(presigner.lastInput.UploadId))
}

func TestCompleteMultipartUpload_MapsPartErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"InvalidPart", common.ErrPartMismatch},
		{"InvalidPartOrder", common.ErrPartMismatch},
		{"NoSuchUpload", common.ErrNotFound},
	}
	for _, tc := range tests {
		client := &fakeS3{completeErr: &smithy.GenericAPIError{Code: tc.code}}
		g := newGateway(client, &fakePresigner{})

		err := g.CompleteMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1",
			[]CompletedPart{{PartNumber: 1, ETag: "a"}})
		assert.ErrorIs(t, err, tc.want, "code %s", tc.code)
	}
}

func TestCompleteMultipartUpload_SubmitsPartsVerbatim(t *testing.T) {
	client := &fakeS3{}
	g := newGateway(client, &fakePresigner{})

	parts := []CompletedPart{{PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}}
	require.NoError(t, g.CompleteMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1", parts))

	got := client.completeIn.MultipartUpload.Parts
	require.Len(t, got, 2)
	assert.Equal(t, int32(1), aws.ToInt32(got[0].PartNumber))
	assert.Equal(t, "a", aws.ToString(got[0].ETag))
	assert.Equal(t, int32(2), aws.ToInt32(got[1].PartNumber))
}

func TestAbortMultipartUpload_IdempotentOnMissing(t *testing.T) {
	client := &fakeS3{abortErr: &smithy.GenericAPIError{Code: "NoSuchUpload"}}
	g := newGateway(client, &fakePresigner{})

	// aborting an already-gone upload does not raise
	err := g.AbortMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1")
	require.NoError(t, err)

	err = g.AbortMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, client.abortCalls)
}

func TestAbortMultipartUpload_SurfacesTransientFailure(t *testing.T) {
	client := &fakeS3{abortErr: errors.New("connection refused")}
	g := newGateway(client, &fakePresigner{})

	err := g.AbortMultipartUpload(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestListParts_Paginates(t *testing.T) {
	client := &fakeS3{
		listPartsOut: []*s3.ListPartsOutput{
			{
				Parts: []s3types.Part{
					{PartNumber: aws.Int32(1), ETag: aws.String("a"), Size: aws.Int64(10)},
				},
				IsTruncated:          aws.Bool(true),
				NextPartNumberMarker: aws.String("1"),
			},
			{
				Parts: []s3types.Part{
					{PartNumber: aws.Int32(2), ETag: aws.String("b"), Size: aws.Int64(20)},
				},
				IsTruncated: aws.Bool(false),
			},
		},
	}
	g := newGateway(client, &fakePresigner{})

	parts, err := g.ListParts(context.Background(), "raw/org_1/vid_1.mp4", "mpu-1")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, Part{PartNumber: 1, ETag: "a", Size: 10}, parts[0])
	assert.Equal(t, Part{PartNumber: 2, ETag: "b", Size: 20}, parts[1])
}

func TestDeletePrefix_PaginatesUntilEmpty(t *testing.T) {
	// 5 objects with a page size of 2 must need 3 delete batches
	client := &fakeS3{
		objects:  []string{"raw/o/a/1", "raw/o/a/2", "raw/o/a/3", "raw/o/a/4", "raw/o/a/5"},
		pageSize: 2,
	}
	g := newGateway(client, &fakePresigner{})

	deleted, err := g.DeletePrefix(context.Background(), "raw/o/a/")
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)
	assert.Equal(t, 3, client.deleteCalls)
	assert.Empty(t, client.objects, "no objects may remain")
}

func TestDeletePrefix_EmptyPrefixIsNoop(t *testing.T) {
	client := &fakeS3{objects: nil, pageSize: 2}
	g := newGateway(client, &fakePresigner{})

	deleted, err := g.DeletePrefix(context.Background(), "raw/o/a/")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 0, client.deleteCalls)
}

func TestMapStoreError_DefaultIsStoreUnavailable(t *testing.T) {
	err := mapStoreError("op", errors.New("dial tcp: timeout"))
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
