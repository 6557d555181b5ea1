package sessions

import (
	"context"
	"time"

	"github.com/devchaudhary24k/vidcastx/internal/server/models"
)

// Repository is the single source of truth for "is this upload still open,
// and what are its store coordinates". All status transitions are
// conditional on the expected prior state so that a retried or duplicated
// request cannot double-initialize or double-complete a session.
type Repository interface {
	Create(ctx context.Context, s *models.UploadSession) error

	// GetByID returns common.ErrNotFound when no session exists.
	GetByID(ctx context.Context, id string) (*models.UploadSession, error)

	// SetMultipartUpload records the store-issued upload id. It succeeds at
	// most once per session: the write is conditional on
	// status = waiting_upload and no previously recorded upload id, and
	// returns common.ErrInvalidState otherwise.
	SetMultipartUpload(ctx context.Context, id, uploadID string) error

	// ClearMultipartUpload removes the recorded upload id after an abort.
	ClearMultipartUpload(ctx context.Context, id string) error

	// MarkProcessing transitions waiting_upload -> processing and stores the
	// stitched object size. Any other prior status is common.ErrInvalidState.
	MarkProcessing(ctx context.Context, id string, sizeBytes int64) error

	// MarkFailed transitions waiting_upload or processing -> failed.
	MarkFailed(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error

	// ListExpired returns sessions still in waiting_upload created before
	// the cutoff. Feeds the orphan sweeper.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error)
}
