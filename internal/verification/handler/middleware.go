package handler

import (
	"net/http"
	"strings"

	"github.com/campusgate/campusgate-backend/internal/verification/token"
	"github.com/campusgate/campusgate-backend/pkg/errors"
	"github.com/campusgate/campusgate-backend/pkg/httputil"
)

// RequireRecoveryToken validates the Bearer recovery token and puts
// the student's email on the request context.
func RequireRecoveryToken(tm *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httputil.Error(w, errors.Unauthorized("missing recovery token"))
				return
			}

			claims, err := tm.ValidateRecoveryToken(raw)
			if err != nil {
				httputil.Error(w, err)
				return
			}

			ctx := httputil.WithRecoveryEmail(r.Context(), claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
