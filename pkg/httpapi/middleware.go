package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
)

type contextKey string

const userIDKey contextKey = "user_id"

// requireAuth extracts and verifies the bearer token, placing the
// authenticated user id on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(w, eherrors.E(eherrors.KindUnauthorized, "missing bearer token"))
			return
		}

		sub, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, err)
			return
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			writeError(w, eherrors.E(eherrors.KindUnauthorized, "invalid token subject"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user id from the context.
func userID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}
