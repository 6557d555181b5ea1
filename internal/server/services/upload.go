// Package services implements the multipart upload orchestrator: the
// protocol state machine driving a client from draft through signed part
// uploads to a stitched object, on top of the session registry and the
// object store gateway.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
	"github.com/devchaudhary24k/vidcastx/internal/server/models"
	"github.com/devchaudhary24k/vidcastx/internal/server/repositories/sessions"
	"github.com/devchaudhary24k/vidcastx/internal/server/store"
)

// maxPartNumber is the store's cap on multipart part numbers.
const maxPartNumber = 10000

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// newSessionID is a seam for deterministic tests.
var newSessionID = func() string {
	return "vid_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type UploadService struct {
	repo     sessions.Repository
	gateway  store.Gateway
	notifier Notifier
	logger   logging.Logger
}

func NewUploadService(repo sessions.Repository, gateway store.Gateway, notifier Notifier, logger logging.Logger) *UploadService {
	return &UploadService{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
	}
}

// storageExt normalizes the filename extension used in the storage key.
func storageExt(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !extPattern.MatchString(ext) {
		return "bin"
	}
	return ext
}

// CreateDraft registers a new upload session in waiting_upload. The storage
// key is raw/<tenant>/<sessionID>.<ext>; the random session id keeps keys
// unguessable across tenants, and a key is never reused because session ids
// are never reused.
func (s *UploadService) CreateDraft(ctx context.Context, ownerID, tenantID, filename, contentType, title string) (*models.UploadSession, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, fmt.Errorf("%w: content type %q is not a video", common.ErrValidation, contentType)
	}

	id := newSessionID()
	if title == "" {
		title = filename
	}

	session := &models.UploadSession{
		ID:          id,
		TenantID:    tenantID,
		OwnerID:     ownerID,
		Title:       title,
		Filename:    filename,
		ContentType: contentType,
		StorageKey:  fmt.Sprintf("raw/%s/%s.%s", tenantID, id, storageExt(filename)),
		Status:      models.StatusWaitingUpload,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "draft created",
		"session_id", session.ID, "tenant_id", tenantID, "storage_key", session.StorageKey)
	return session, nil
}

// Authorize loads the session and checks tenant ownership. A session that
// exists under a different tenant yields ErrForbidden, never ErrNotFound,
// so existence does not leak across tenants.
func (s *UploadService) Authorize(ctx context.Context, sessionID, tenantID string) (*models.UploadSession, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TenantID != tenantID {
		return nil, common.ErrForbidden
	}
	return session, nil
}

// InitMultipart opens the multipart transaction for a draft. The registry
// write is conditional: a concurrent or retried init loses the race and
// gets ErrInvalidState, and the upload it created in the store is aborted
// so nothing is orphaned.
func (s *UploadService) InitMultipart(ctx context.Context, session *models.UploadSession, contentType string) (string, error) {
	if session.Status != models.StatusWaitingUpload || session.MultipartUploadID != nil {
		return "", fmt.Errorf("%w: session %s is not awaiting upload", common.ErrInvalidState, session.ID)
	}
	if contentType == "" {
		contentType = session.ContentType
	}

	uploadID, err := s.gateway.CreateMultipartUpload(ctx, session.StorageKey, contentType)
	if err != nil {
		return "", err
	}

	if err := s.repo.SetMultipartUpload(ctx, session.ID, uploadID); err != nil {
		// lost the race to a duplicate request: the id we just created
		// would be orphaned in the store, so abort it best effort
		if abortErr := s.gateway.AbortMultipartUpload(ctx, session.StorageKey, uploadID); abortErr != nil {
			s.logger.Warn(ctx, "abort of orphaned multipart upload failed",
				"session_id", session.ID, "upload_id", uploadID, "error", abortErr)
		}
		return "", err
	}

	s.logger.Info(ctx, "multipart upload initialized",
		"session_id", session.ID, "upload_id", uploadID)
	return uploadID, nil
}

// checkOpenUpload verifies the caller-supplied uploadID against the
// session's open multipart transaction.
func checkOpenUpload(session *models.UploadSession, uploadID string) error {
	open := session.OpenUploadID()
	if session.Status != models.StatusWaitingUpload || open == "" {
		return fmt.Errorf("%w: session %s has no open multipart upload", common.ErrInvalidState, session.ID)
	}
	if open != uploadID {
		return fmt.Errorf("%w: upload id does not match session %s", common.ErrInvalidState, session.ID)
	}
	return nil
}

// SignPart issues a presigned URL for one part. It is a pure function of
// (session, uploadID, partNumber) with no side effects, so clients retry it
// freely.
func (s *UploadService) SignPart(ctx context.Context, session *models.UploadSession, uploadID string, partNumber int32) (string, error) {
	if partNumber < 1 || partNumber > maxPartNumber {
		return "", fmt.Errorf("%w: part number %d out of range [1,%d]", common.ErrValidation, partNumber, maxPartNumber)
	}
	if err := checkOpenUpload(session, uploadID); err != nil {
		return "", err
	}

	url, err := s.gateway.SignPart(ctx, session.StorageKey, uploadID, partNumber)
	if err != nil {
		return "", err
	}

	s.logger.Debug(ctx, "part signed",
		"session_id", session.ID, "upload_id", uploadID, "part_number", partNumber)
	return url, nil
}

// ListParts reports the parts the store has already received, so a
// restarted client can resume instead of re-uploading everything.
func (s *UploadService) ListParts(ctx context.Context, session *models.UploadSession, uploadID string) ([]store.Part, error) {
	if err := checkOpenUpload(session, uploadID); err != nil {
		return nil, err
	}
	return s.gateway.ListParts(ctx, session.StorageKey, uploadID)
}

// CompleteMultipart submits the final part list and flips the session to
// processing. Parts may arrive in any order; they are resorted ascending by
// part number before the store call. Duplicates and an empty list are
// rejected before any store traffic.
//
// On ErrPartMismatch the session is left untouched: the caller may retry
// with a corrected part list without re-uploading anything.
func (s *UploadService) CompleteMultipart(ctx context.Context, session *models.UploadSession, uploadID string, parts []store.CompletedPart) (*models.UploadSession, error) {
	if len(parts) == 0 {
		return nil, common.ErrEmptyParts
	}
	if err := checkOpenUpload(session, uploadID); err != nil {
		return nil, err
	}

	sorted := make([]store.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].PartNumber == sorted[i-1].PartNumber {
			return nil, fmt.Errorf("%w: duplicate part number %d", common.ErrPartMismatch, sorted[i].PartNumber)
		}
	}

	if err := s.gateway.CompleteMultipartUpload(ctx, session.StorageKey, uploadID, sorted); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) && s.objectExists(ctx, session.StorageKey) {
			// the failure hit after stitching: the object is there, so the
			// completion actually succeeded
			s.logger.Warn(ctx, "ambiguous completion resolved by object lookup",
				"session_id", session.ID, "upload_id", uploadID)
		} else {
			return nil, err
		}
	}

	size := s.objectSize(ctx, session.StorageKey)
	if err := s.repo.MarkProcessing(ctx, session.ID, size); err != nil {
		return nil, err
	}

	if err := s.notifier.VideoReady(ctx, session.ID, session.StorageKey); err != nil {
		s.logger.Error(ctx, "transcode handoff failed",
			"session_id", session.ID, "error", err)
	}

	s.logger.Info(ctx, "multipart upload completed",
		"session_id", session.ID, "parts", len(sorted), "size_bytes", size)
	return s.repo.GetByID(ctx, session.ID)
}

func (s *UploadService) objectExists(ctx context.Context, key string) bool {
	_, err := s.gateway.HeadObject(ctx, key)
	return err == nil
}

func (s *UploadService) objectSize(ctx context.Context, key string) int64 {
	info, err := s.gateway.HeadObject(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "object size lookup failed", "key", key, "error", err)
		return 0
	}
	return info.Size
}

// Abort tears down the open multipart transaction. It tolerates the upload
// already being gone and a session with nothing open, so a double abort or
// an abort racing a completion is a no-op.
func (s *UploadService) Abort(ctx context.Context, session *models.UploadSession, uploadID string) error {
	open := session.OpenUploadID()
	if open == "" {
		s.logger.Info(ctx, "abort with no open multipart upload", "session_id", session.ID)
		return nil
	}
	if uploadID != "" && uploadID != open {
		return fmt.Errorf("%w: upload id does not match session %s", common.ErrInvalidState, session.ID)
	}

	if err := s.gateway.AbortMultipartUpload(ctx, session.StorageKey, open); err != nil {
		return err
	}
	if err := s.repo.ClearMultipartUpload(ctx, session.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	s.logger.Info(ctx, "multipart upload aborted", "session_id", session.ID, "upload_id", open)
	return nil
}

// rawObjectPrefix is the storage key without its extension; prefix deletion
// catches the raw object plus any derived artifacts stored alongside it.
func rawObjectPrefix(session *models.UploadSession) string {
	return strings.TrimSuffix(session.StorageKey, path.Ext(session.StorageKey))
}

// DeleteSession aborts any open upload, removes every stored object for the
// session, and drops the registry row.
func (s *UploadService) DeleteSession(ctx context.Context, session *models.UploadSession) error {
	if err := s.Abort(ctx, session, ""); err != nil {
		return err
	}

	deleted, err := s.gateway.DeletePrefix(ctx, rawObjectPrefix(session))
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, session.ID); err != nil {
		return err
	}

	s.logger.Info(ctx, "session deleted",
		"session_id", session.ID, "objects_deleted", deleted)
	return nil
}

// SweepExpired aborts and fails drafts stuck in waiting_upload longer than
// maxAge. This is the at-least-once cleanup for multipart uploads orphaned
// by crashed or partitioned clients.
func (s *UploadService) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	expired, err := s.repo.ListExpired(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, session := range expired {
		if err := s.Abort(ctx, session, ""); err != nil {
			s.logger.Warn(ctx, "sweep abort failed", "session_id", session.ID, "error", err)
			continue
		}
		if err := s.repo.MarkFailed(ctx, session.ID); err != nil && !errors.Is(err, common.ErrInvalidState) {
			s.logger.Warn(ctx, "sweep mark failed", "session_id", session.ID, "error", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info(ctx, "expired sessions swept", "count", swept)
	}
	return swept, nil
}
