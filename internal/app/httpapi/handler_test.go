package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/readspeed/backend/internal/app"
	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/objectstore"
)

const adminEmail = "admin@example.com"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	objects, err := objectstore.NewLocal(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("local object store: %v", err)
	}
	application, err := app.New(app.Stores{}, app.Options{
		Auth: profiles.Config{
			JWTSecret:   "testing-secret",
			TokenTTL:    time.Hour,
			AdminEmails: []string{adminEmail},
		},
		Objects: objects,
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { application.Stop(context.Background()) })

	handler, err := NewHandler(application, Config{}, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response %q: %v", resp.Body.String(), err)
	}
	return out
}

// registerAndLogin creates an account and returns its bearer token.
func registerAndLogin(t *testing.T, h http.Handler, email, username string) string {
	t.Helper()
	resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    email,
		"password": "hunter2hunter2",
		"username": username,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, resp.Code, resp.Body.String())
	}
	resp = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"identifier": email,
		"password":   "hunter2hunter2",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, resp.Code, resp.Body.String())
	}
	token, _ := decodeBody(t, resp)["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in response", username)
	}
	return token
}

func adminToken(t *testing.T, h http.Handler) string {
	t.Helper()
	return registerAndLogin(t, h, adminEmail, "admin")
}

func createBook(t *testing.T, h http.Handler, token, title string) string {
	t.Helper()
	resp := doJSON(t, h, http.MethodPost, "/api/v1/books", token, map[string]any{
		"title":       title,
		"author":      "Test Author",
		"total_pages": 300,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create book: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	id, _ := decodeBody(t, resp)["id"].(string)
	if id == "" {
		t.Fatalf("create book: no id in response")
	}
	return id
}

func TestAuthFlow(t *testing.T) {
	h := newTestHandler(t)

	token := registerAndLogin(t, h, "alice@example.com", "alice")

	// Duplicate registration conflicts.
	resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
		"username": "alice2",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", resp.Code)
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	me := decodeBody(t, resp)
	if me["username"] != "alice" || me["role"] != "user" || me["tier"] != "free" {
		t.Fatalf("unexpected profile: %v", me)
	}

	// No token and a garbage token are both unauthorized.
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.Code)
	}
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", resp.Code)
	}

	// Wrong password.
	resp = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"identifier": "alice@example.com",
		"password":   "wrong-password",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.Code)
	}

	// Logout invalidates the session server-side.
	if resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/logout", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.Code)
	}
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", resp.Code)
	}
}

func TestProfileUpdateAndPublicView(t *testing.T) {
	h := newTestHandler(t)
	token := registerAndLogin(t, h, "bob@example.com", "bob")

	resp := doJSON(t, h, http.MethodPatch, "/api/v1/profile", token, map[string]any{
		"display_name": "Bob the Reader",
		"bio":          "I read fast.",
		"reading_goal": 50,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update profile: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/profiles/bob", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("public profile: expected 200, got %d", resp.Code)
	}
	pub := decodeBody(t, resp)
	if pub["display_name"] != "Bob the Reader" {
		t.Fatalf("unexpected public profile: %v", pub)
	}
	if _, hasEmail := pub["email"]; hasEmail {
		t.Fatalf("public profile leaks email: %v", pub)
	}

	if resp := doJSON(t, h, http.MethodGet, "/api/v1/profiles/nobody", "", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown profile: expected 404, got %d", resp.Code)
	}
}

func TestBookCatalog(t *testing.T) {
	h := newTestHandler(t)
	admin := adminToken(t, h)
	reader := registerAndLogin(t, h, "carol@example.com", "carol")

	// Free tier cannot add books.
	resp := doJSON(t, h, http.MethodPost, "/api/v1/books", reader, map[string]any{
		"title": "Nope", "author": "Nope", "total_pages": 100,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("free tier create book: expected 403, got %d", resp.Code)
	}

	id := createBook(t, h, admin, "The Name of the Wind")

	resp = doJSON(t, h, http.MethodGet, "/api/v1/books/"+id, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get book: expected 200, got %d", resp.Code)
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/books?search=wind", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list books: expected 200, got %d", resp.Code)
	}
	list := decodeBody(t, resp)
	if total, _ := list["total"].(float64); total != 1 {
		t.Fatalf("expected 1 match, got %v", list["total"])
	}

	// Only the creator or an admin may edit.
	resp = doJSON(t, h, http.MethodPatch, "/api/v1/books/"+id, reader, map[string]any{"title": "Hijacked"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-owner edit: expected 403, got %d", resp.Code)
	}
	resp = doJSON(t, h, http.MethodPatch, "/api/v1/books/"+id, admin, map[string]any{"title": "The Wise Man's Fear"})
	if resp.Code != http.StatusOK {
		t.Fatalf("owner edit: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if resp := doJSON(t, h, http.MethodDelete, "/api/v1/books/"+id, admin, nil); resp.Code != http.StatusOK {
		t.Fatalf("delete book: expected 200, got %d", resp.Code)
	}
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/books/"+id, "", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("get deleted book: expected 404, got %d", resp.Code)
	}
}

func TestSubmissionsQuotaAndStats(t *testing.T) {
	h := newTestHandler(t)
	admin := adminToken(t, h)
	reader := registerAndLogin(t, h, "dora@example.com", "dora")

	books := make([]string, 4)
	for i := range books {
		books[i] = createBook(t, h, admin, fmt.Sprintf("Book %d", i))
	}

	resp := doJSON(t, h, http.MethodPost, "/api/v1/submissions", reader, map[string]any{
		"book_id": books[0], "pages": 42,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// Same book, same day: conflict.
	resp = doJSON(t, h, http.MethodPost, "/api/v1/submissions", reader, map[string]any{
		"book_id": books[0], "pages": 10,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate submission: expected 409, got %d", resp.Code)
	}

	// The free tier allows three submissions per day.
	for _, id := range books[1:3] {
		resp = doJSON(t, h, http.MethodPost, "/api/v1/submissions", reader, map[string]any{
			"book_id": id, "pages": 10,
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("submit: expected 201, got %d: %s", resp.Code, resp.Body.String())
		}
	}
	resp = doJSON(t, h, http.MethodPost, "/api/v1/submissions", reader, map[string]any{
		"book_id": books[3], "pages": 10,
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("over quota: expected 403, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/submissions/stats", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.Code)
	}
	stats := decodeBody(t, resp)
	if pages, _ := stats["total_pages"].(float64); pages != 62 {
		t.Fatalf("expected 62 total pages, got %v", stats["total_pages"])
	}
	if streak, _ := stats["current_streak"].(float64); streak != 1 {
		t.Fatalf("expected streak 1, got %v", stats["current_streak"])
	}
}

func TestAssessmentFlow(t *testing.T) {
	h := newTestHandler(t)
	admin := adminToken(t, h)
	reader := registerAndLogin(t, h, "eve@example.com", "eve")

	resp := doJSON(t, h, http.MethodPost, "/api/v1/admin/texts", admin, map[string]any{
		"title":      "Speed Reading Basics",
		"content":    "Reading quickly without losing comprehension takes deliberate practice and honest measurement over time.",
		"difficulty": "easy",
		"active":     true,
		"questions": []map[string]any{
			{"prompt": "What does speed reading require?", "options": []string{"luck", "practice"}, "answer": 1},
			{"prompt": "What must be preserved?", "options": []string{"comprehension", "nothing"}, "answer": 0},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create text: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// Reader listings hide the answers.
	resp = doJSON(t, h, http.MethodGet, "/api/v1/assessments/texts", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list texts: expected 200, got %d", resp.Code)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte(`"answer"`)) {
		t.Fatalf("reader text listing leaks answers: %s", resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodPost, "/api/v1/assessments/start", reader, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	start := decodeBody(t, resp)
	sessionID, _ := start["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("start: no session id: %v", start)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte(`"answer"`)) {
		t.Fatalf("started session leaks answers: %s", resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodPost, "/api/v1/assessments/"+sessionID+"/submit", reader, map[string]any{
		"answers":     []int{1, 0},
		"duration_ms": 30000,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	outcome := decodeBody(t, resp)
	result, _ := outcome["result"].(map[string]any)
	if result == nil {
		t.Fatalf("submit: no result: %v", outcome)
	}
	if correct, _ := result["correct"].(float64); correct != 2 {
		t.Fatalf("expected 2 correct, got %v", result["correct"])
	}
	if comp, _ := result["comprehension"].(float64); comp != 100 {
		t.Fatalf("expected comprehension 100, got %v", result["comprehension"])
	}

	// A session submits exactly once.
	resp = doJSON(t, h, http.MethodPost, "/api/v1/assessments/"+sessionID+"/submit", reader, map[string]any{
		"answers": []int{1, 0}, "duration_ms": 30000,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("resubmit: expected 409, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/assessments/results", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", resp.Code)
	}
	resp = doJSON(t, h, http.MethodGet, "/api/v1/assessments/progress", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("progress: expected 200, got %d", resp.Code)
	}
}

func TestAdminSurface(t *testing.T) {
	h := newTestHandler(t)
	admin := adminToken(t, h)
	reader := registerAndLogin(t, h, "frank@example.com", "frank")

	// Plain users are refused.
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/admin/users", reader, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("reader on admin surface: expected 403, got %d", resp.Code)
	}

	resp := doJSON(t, h, http.MethodGet, "/api/v1/admin/users", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list users: expected 200, got %d", resp.Code)
	}
	users := decodeBody(t, resp)
	if total, _ := users["total"].(float64); total != 2 {
		t.Fatalf("expected 2 users, got %v", users["total"])
	}

	// Promote frank to the pro tier.
	resp = doJSON(t, h, http.MethodGet, "/api/v1/auth/me", reader, nil)
	frankID, _ := decodeBody(t, resp)["id"].(string)
	resp = doJSON(t, h, http.MethodPatch, "/api/v1/admin/users/"+frankID, admin, map[string]any{"tier": "pro"})
	if resp.Code != http.StatusOK {
		t.Fatalf("change tier: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := decodeBody(t, resp)["tier"]; got != "pro" {
		t.Fatalf("expected pro tier, got %v", got)
	}

	// Tighten the free tier and read it back.
	resp = doJSON(t, h, http.MethodPut, "/api/v1/admin/limits/free", admin, map[string]any{
		"assessments_per_month": 2,
		"submissions_per_day":   1,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("set limits: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(t, h, http.MethodGet, "/api/v1/tiers", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("tiers: expected 200, got %d", resp.Code)
	}

	// Feature flags round-trip.
	resp = doJSON(t, h, http.MethodPut, "/api/v1/admin/flags/live_leaderboard", admin, map[string]any{
		"enabled": true, "min_tier": "pro",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("set flag: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(t, h, http.MethodGet, "/api/v1/flags", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("evaluate flags: expected 200, got %d", resp.Code)
	}

	// The audit trail saw the authenticated traffic above.
	resp = doJSON(t, h, http.MethodGet, "/api/v1/admin/audit", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", resp.Code)
	}
	audit := decodeBody(t, resp)
	if entries, _ := audit["entries"].([]any); len(entries) == 0 {
		t.Fatalf("expected audit entries, got %v", audit)
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/admin/system", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("system: expected 200, got %d", resp.Code)
	}
	if resp := doJSON(t, h, http.MethodGet, "/api/v1/admin/usage", admin, nil); resp.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d", resp.Code)
	}
	if resp := doJSON(t, h, http.MethodPost, "/api/v1/admin/leaderboard/rebuild", admin, nil); resp.Code != http.StatusOK {
		t.Fatalf("rebuild: expected 200, got %d", resp.Code)
	}
}

func TestLeaderboardAndSubscription(t *testing.T) {
	h := newTestHandler(t)
	admin := adminToken(t, h)
	reader := registerAndLogin(t, h, "gail@example.com", "gail")

	bookID := createBook(t, h, admin, "Pages for Points")
	resp := doJSON(t, h, http.MethodPost, "/api/v1/submissions", reader, map[string]any{
		"book_id": bookID, "pages": 120,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/leaderboard?board=pages&period=weekly", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("leaderboard: expected 200, got %d", resp.Code)
	}
	board := decodeBody(t, resp)
	entries, _ := board["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", board)
	}
	top, _ := entries[0].(map[string]any)
	if top["username"] != "gail" {
		t.Fatalf("expected gail on top, got %v", top)
	}

	if resp := doJSON(t, h, http.MethodGet, "/api/v1/leaderboard?board=bogus", "", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad board: expected 400, got %d", resp.Code)
	}

	resp = doJSON(t, h, http.MethodGet, "/api/v1/leaderboard/me?board=pages&period=weekly", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("rank: expected 200, got %d", resp.Code)
	}
	rank := decodeBody(t, resp)
	if ranked, _ := rank["ranked"].(bool); !ranked {
		t.Fatalf("expected a rank, got %v", rank)
	}

	// Subscription overview and self-serve upgrade.
	resp = doJSON(t, h, http.MethodGet, "/api/v1/subscription", reader, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("subscription: expected 200, got %d", resp.Code)
	}
	sub := decodeBody(t, resp)
	if sub["tier"] != "free" {
		t.Fatalf("expected free tier, got %v", sub["tier"])
	}
	resp = doJSON(t, h, http.MethodPost, "/api/v1/subscription/upgrade", reader, map[string]any{"tier": "reader"})
	if resp.Code != http.StatusOK {
		t.Fatalf("upgrade: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := doJSON(t, h, http.MethodPost, "/api/v1/subscription/upgrade", reader, map[string]any{"tier": "platinum"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("bogus tier: expected 400, got %d", resp.Code)
	}
}

func TestNotFoundAndBadJSON(t *testing.T) {
	h := newTestHandler(t)

	if resp := doJSON(t, h, http.MethodGet, "/api/v1/nope", "", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown route: expected 404, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString("{broken"))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON: expected 400, got %d", resp.Code)
	}

	if resp := doJSON(t, h, http.MethodGet, "/healthz", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}
}
