// Package middleware provides the HTTP middleware chain for the API
// server: authentication, CORS, rate limiting, request logging and
// metrics.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/readspeed/backend/internal/auth"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/logging"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// TokenVerifier validates a bearer token against its signature and its
// server-side session. Implemented by the profiles service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests with a Bearer token.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logging.Logger
}

// NewAuthMiddleware creates an auth middleware backed by verifier.
func NewAuthMiddleware(verifier TokenVerifier, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDefault("auth")
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Handler rejects requests without a valid token and stores the caller's
// identity in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeAuthError(w, r, apperrors.Unauthorized("missing authorization"))
			return
		}

		claims, err := m.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("token rejected")
			writeAuthError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		ctx = logging.WithRole(ctx, claims.Role)
		ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers that lack the admin role.
// It must run after Handler.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.GetRole(r.Context()) != "admin" {
			err := apperrors.Forbidden("admin access required")
			httputil.WriteErrorResponse(w, r, err.HTTPStatus, err.Code, err.Message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from the Authorization header, or "".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// GetSessionID returns the authenticated session id from the context,
// or "".
func GetSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := apperrors.GetServiceError(err); svcErr != nil {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, svcErr.Code, svcErr.Message, svcErr.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
}
