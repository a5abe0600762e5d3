package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/app/storage/memory"
	"github.com/readspeed/backend/internal/logging"
)

func newAuthFixture(t *testing.T) (*AuthMiddleware, string) {
	t.Helper()
	store := memory.New()
	svc := profiles.New(store, store, profiles.Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}, logging.New("test", "error", "json"))

	_, err := svc.Register(context.Background(), profiles.RegisterInput{
		Email:    "reader@example.com",
		Password: "password123",
		Username: "reader",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := svc.Authenticate(context.Background(), "reader@example.com", "password123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return NewAuthMiddleware(svc, logging.New("test", "error", "json")), login.Token
}

func echoIdentity(t *testing.T) (http.Handler, *string, *string) {
	t.Helper()
	var user, session string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = logging.GetUserID(r.Context())
		session = GetSessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &user, &session
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	mw, token := newAuthFixture(t)
	next, user, session := echoIdentity(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if *user == "" || *session == "" {
		t.Fatalf("identity not propagated: user=%q session=%q", *user, *session)
	}
}

func TestAuthMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	mw, _ := newAuthFixture(t)
	next, _, _ := echoIdentity(t)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Bearer not.a.token",
		"wrong":     "Basic abc",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		mw.Handler(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rec.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req = req.WithContext(logging.WithRole(req.Context(), "user"))
	rec := httptest.NewRecorder()
	RequireAdmin(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: status %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req = req.WithContext(logging.WithRole(req.Context(), "admin"))
	rec = httptest.NewRecorder()
	RequireAdmin(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status %d, want 200", rec.Code)
	}
}
