package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/server/models"
	"github.com/devchaudhary24k/vidcastx/internal/server/store"
)

type createVideoRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
}

type videoResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Status      string    `json:"status"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadID    string    `json:"upload_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type initMultipartRequest struct {
	ContentType string `json:"content_type"`
}

type initMultipartResponse struct {
	UploadID string `json:"upload_id"`
	PartSize int64  `json:"part_size"`
}

type signPartResponse struct {
	URL        string `json:"url"`
	PartNumber int32  `json:"part_number"`
	ExpiresIn  int64  `json:"expires_in,omitempty"`
}

type partResponse struct {
	PartNumber int32  `json:"part_number"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag"`
}

type completeMultipartRequest struct {
	UploadID string `json:"upload_id"`
	Parts    []struct {
		PartNumber int32  `json:"part_number"`
		ETag       string `json:"etag"`
	} `json:"parts"`
}

type abortMultipartRequest struct {
	UploadID string `json:"upload_id"`
}

func toVideoResponse(s *models.UploadSession) videoResponse {
	return videoResponse{
		ID:          s.ID,
		Title:       s.Title,
		Filename:    s.Filename,
		ContentType: s.ContentType,
		Status:      string(s.Status),
		SizeBytes:   s.SizeBytes,
		UploadID:    s.OpenUploadID(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// session resolves the {id} path variable to a session the caller's tenant
// owns.
func (s *Server) session(r *http.Request) (*models.UploadSession, error) {
	_, tenantID, err := identity(r.Context())
	if err != nil {
		return nil, err
	}
	id := mux.Vars(r)["id"]
	if id == "" {
		return nil, fmt.Errorf("%w: video id is required", common.ErrValidation)
	}
	return s.uploads.Authorize(r.Context(), id, tenantID)
}

func (s *Server) createVideo(w http.ResponseWriter, r *http.Request) error {
	var req createVideoRequest
	if err := parse(w, r, &req); err != nil {
		return err
	}

	userID, tenantID, err := identity(r.Context())
	if err != nil {
		return err
	}

	session, err := s.uploads.CreateDraft(r.Context(), userID, tenantID, req.Filename, req.ContentType, req.Title)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, toVideoResponse(session))
	return nil
}

func (s *Server) getVideo(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, toVideoResponse(session))
	return nil
}

func (s *Server) deleteVideo(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	if err := s.uploads.DeleteSession(r.Context(), session); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) initMultipart(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	var req initMultipartRequest
	if r.ContentLength > 0 {
		if err := parse(w, r, &req); err != nil {
			return err
		}
	}

	uploadID, err := s.uploads.InitMultipart(r.Context(), session, req.ContentType)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, initMultipartResponse{UploadID: uploadID, PartSize: defaultPartSize})
	return nil
}

func (s *Server) signPart(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	uploadID := r.URL.Query().Get("uploadId")
	partNumber, err := strconv.ParseInt(r.URL.Query().Get("partNumber"), 10, 32)
	if err != nil {
		return fmt.Errorf("%w: partNumber must be an integer", common.ErrValidation)
	}

	url, err := s.uploads.SignPart(r.Context(), session, uploadID, int32(partNumber))
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, signPartResponse{URL: url, PartNumber: int32(partNumber)})
	return nil
}

func (s *Server) listParts(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	parts, err := s.uploads.ListParts(r.Context(), session, r.URL.Query().Get("uploadId"))
	if err != nil {
		return err
	}

	out := make([]partResponse, 0, len(parts))
	for _, p := range parts {
		out = append(out, partResponse{PartNumber: p.PartNumber, Size: p.Size, ETag: p.ETag})
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) completeMultipart(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	var req completeMultipartRequest
	if err := parse(w, r, &req); err != nil {
		return err
	}

	parts := make([]store.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, store.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	session, err = s.uploads.CompleteMultipart(r.Context(), session, req.UploadID, parts)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, toVideoResponse(session))
	return nil
}

func (s *Server) abortMultipart(w http.ResponseWriter, r *http.Request) error {
	session, err := s.session(r)
	if err != nil {
		return err
	}

	var req abortMultipartRequest
	if r.ContentLength > 0 {
		if err := parse(w, r, &req); err != nil {
			return err
		}
	}

	if err := s.uploads.Abort(r.Context(), session, req.UploadID); err != nil {
		return err
	}

	// reload so the response reflects the cleared upload id
	session, err = s.session(r)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, toVideoResponse(session))
	return nil
}
