package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/server/models"
)

// InMemoryRepository mirrors the PostgreSQL CAS semantics behind a mutex.
// Used in tests and for running the server without a database.
type InMemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]*models.UploadSession)}
}

func (r *InMemoryRepository) Create(ctx context.Context, s *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.sessions[cp.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	if s.MultipartUploadID != nil {
		v := *s.MultipartUploadID
		cp.MultipartUploadID = &v
	}
	return &cp, nil
}

func (r *InMemoryRepository) SetMultipartUpload(ctx context.Context, id, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != models.StatusWaitingUpload || s.MultipartUploadID != nil {
		return common.ErrInvalidState
	}
	s.MultipartUploadID = &uploadID
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) ClearMultipartUpload(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	s.MultipartUploadID = nil
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkProcessing(ctx context.Context, id string, sizeBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != models.StatusWaitingUpload {
		return common.ErrInvalidState
	}
	s.Status = models.StatusProcessing
	s.SizeBytes = sizeBytes
	s.MultipartUploadID = nil
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	if !s.Status.CanTransitionTo(models.StatusFailed) {
		return common.ErrInvalidState
	}
	s.Status = models.StatusFailed
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *InMemoryRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.UploadSession
	for _, s := range r.sessions {
		if s.Status == models.StatusWaitingUpload && s.CreatedAt.Before(cutoff) {
			cp := *s
			result = append(result, &cp)
		}
	}
	return result, nil
}
