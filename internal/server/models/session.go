// Package models defines the server-side persistence model for upload
// sessions.
package models

import "time"

// UploadStatus is the lifecycle status of an upload session. Transitions are
// monotonic: waiting_upload -> processing -> ready, with failed reachable
// from waiting_upload or processing. A session never moves backwards.
type UploadStatus string

const (
	StatusWaitingUpload UploadStatus = "waiting_upload"
	StatusProcessing    UploadStatus = "processing"
	StatusReady         UploadStatus = "ready"
	StatusFailed        UploadStatus = "failed"
)

// CanTransitionTo reports whether the status machine permits moving from s
// to next.
func (s UploadStatus) CanTransitionTo(next UploadStatus) bool {
	switch s {
	case StatusWaitingUpload:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	default:
		return false
	}
}

// UploadSession maps one logical video draft to its object-store transfer.
//
// StorageKey is derived once at creation and never mutated. A session's
// MultipartUploadID is assigned exactly once by the orchestrator and is only
// meaningful while Status is waiting_upload.
type UploadSession struct {
	ID          string
	TenantID    string
	OwnerID     string
	Title       string
	Filename    string
	ContentType string
	StorageKey  string

	// MultipartUploadID is nil until the multipart transaction is opened
	// and cleared again on abort.
	MultipartUploadID *string

	Status    UploadStatus
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpenUploadID returns the active multipart upload id, or "" when none is
// open.
func (s *UploadSession) OpenUploadID() string {
	if s.MultipartUploadID == nil {
		return ""
	}
	return *s.MultipartUploadID
}
