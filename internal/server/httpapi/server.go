// Package httpapi exposes the upload orchestrator over HTTP. Handlers return
// errors; a wrapper maps the service's sentinel errors onto status codes so
// every endpoint reports failures the same way.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
	"github.com/devchaudhary24k/vidcastx/internal/server/services"
)

const maxRequestSize = 1 << 20

// defaultPartSize is the chunk size advertised to clients on init.
const defaultPartSize = 8 << 20

type Server struct {
	uploads   *services.UploadService
	logger    logging.Logger
	secretKey []byte
}

func NewServer(uploads *services.UploadService, logger logging.Logger, secretKey []byte) *Server {
	return &Server{uploads: uploads, logger: logger, secretKey: secretKey}
}

// Router builds the API surface. Every route sits behind the bearer-token
// middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.Methods(http.MethodPost).Path("/videos").Handler(s.handler(s.createVideo))
	api.Methods(http.MethodGet).Path("/videos/{id}").Handler(s.handler(s.getVideo))
	api.Methods(http.MethodDelete).Path("/videos/{id}").Handler(s.handler(s.deleteVideo))
	api.Methods(http.MethodPost).Path("/videos/{id}/multipart/init").Handler(s.handler(s.initMultipart))
	api.Methods(http.MethodGet).Path("/videos/{id}/multipart/sign-part").Handler(s.handler(s.signPart))
	api.Methods(http.MethodGet).Path("/videos/{id}/multipart/parts").Handler(s.handler(s.listParts))
	api.Methods(http.MethodPost).Path("/videos/{id}/multipart/complete").Handler(s.handler(s.completeMultipart))
	api.Methods(http.MethodPost).Path("/videos/{id}/multipart/abort").Handler(s.handler(s.abortMultipart))

	return r
}

type appHandler func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	Error string `json:"error"`
}

// statusFromError maps the service error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrEmptyParts), errors.Is(err, common.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, common.ErrPartMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handler(fn appHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := statusFromError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error(r.Context(), "request failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
		} else {
			s.logger.Debug(r.Context(), "request rejected",
				"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		}

		writeJSON(w, status, errorResponse{Error: err.Error()})
	})
}

// parse decodes the request body as JSON, bounded by maxRequestSize.
func parse(w http.ResponseWriter, r *http.Request, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		return fmt.Errorf("%w: invalid JSON body", common.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
