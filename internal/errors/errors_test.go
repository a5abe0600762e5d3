package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorStatuses(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		code   string
		status int
	}{
		{InvalidInput("bad"), CodeInvalidInput, http.StatusBadRequest},
		{InvalidFormat("user_id", "UUID required"), CodeInvalidFormat, http.StatusBadRequest},
		{Unauthorized("no token"), CodeUnauthorized, http.StatusUnauthorized},
		{InvalidToken(nil), CodeInvalidToken, http.StatusUnauthorized},
		{Forbidden("admins only"), CodeForbidden, http.StatusForbidden},
		{NotFound("book"), CodeNotFound, http.StatusNotFound},
		{Conflict("already exists"), CodeConflict, http.StatusConflict},
		{QuotaExceeded("monthly limit reached"), CodeQuotaExceeded, http.StatusForbidden},
		{RateLimitExceeded(10, "1s"), CodeRateLimited, http.StatusTooManyRequests},
		{Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
		}
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.code, tc.status, tc.err.HTTPStatus)
		}
	}
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := InvalidToken(nil)
	detailed := base.WithDetails("reason", "expired")

	if len(base.Details) != 0 {
		t.Fatalf("expected original to stay detail-free, got %v", base.Details)
	}
	if detailed.Details["reason"] != "expired" {
		t.Fatalf("expected detail to be set, got %v", detailed.Details)
	}
}

func TestGetServiceErrorUnwraps(t *testing.T) {
	inner := NotFound("profile")
	wrapped := fmt.Errorf("loading profile: %w", inner)

	got := GetServiceError(wrapped)
	if got == nil {
		t.Fatal("expected wrapped service error to be found")
	}
	if got.Code != CodeNotFound {
		t.Fatalf("expected code %s, got %s", CodeNotFound, got.Code)
	}
	if GetServiceError(stderrors.New("plain")) != nil {
		t.Fatal("expected nil for non-service error")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("db down")
	err := Internal("query failed", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NotFound("text")) {
		t.Fatal("expected IsNotFound to match")
	}
	if IsNotFound(Conflict("dup")) {
		t.Fatal("expected IsNotFound to reject conflict")
	}
	if !IsConflict(fmt.Errorf("outer: %w", Conflict("dup"))) {
		t.Fatal("expected IsConflict to match through wrapping")
	}
}
