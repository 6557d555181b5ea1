// Package store wraps the S3-compatible object store behind a Gateway
// interface so the orchestrator and its tests never talk to the SDK
// directly. The gateway deals in presigned, time-limited operations; no
// long-lived credential ever reaches a client.
package store

import (
	"context"
	"time"
)

// CompletedPart is one entry of the part list submitted on completion. The
// ETag is the opaque token the store returned when the part was uploaded and
// must be passed back verbatim.
type CompletedPart struct {
	PartNumber int32  `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// Part describes an already-uploaded part as reported by the store.
type Part struct {
	PartNumber int32
	ETag       string
	Size       int64
}

// ObjectInfo is the store metadata for a stitched object.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Gateway issues store-level multipart operations and presigned URLs.
//
// SignPart is a pure function of its inputs: it does not check that the
// upload is still open. That check belongs to the session registry, which is
// consulted before the gateway is called.
type Gateway interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	SignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error

	// AbortMultipartUpload is idempotent: aborting an upload that is already
	// aborted or completed logs and returns nil.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	ListParts(ctx context.Context, key, uploadID string) ([]Part, error)
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix, paginating through the
	// store's listing/delete batch caps. Safe to re-invoke after a partial
	// failure.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
