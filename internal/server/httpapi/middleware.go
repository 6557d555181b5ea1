package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/server/auth"
)

type contextKey int

const (
	userIDKey contextKey = iota
	tenantIDKey
)

// authMiddleware validates the bearer token and stashes the authenticated
// identity in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		userID, tenantID, err := auth.ParseToken(token, s.secretKey)
		if err != nil {
			s.logger.Debug(r.Context(), "token rejected", "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identity returns the authenticated user and tenant placed in the context
// by authMiddleware.
func identity(ctx context.Context) (userID, tenantID string, err error) {
	userID, _ = ctx.Value(userIDKey).(string)
	tenantID, _ = ctx.Value(tenantIDKey).(string)
	if userID == "" || tenantID == "" {
		return "", "", fmt.Errorf("%w: no identity in request context", common.ErrInvalidToken)
	}
	return userID, tenantID, nil
}
