package logging

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithRole(ctx, "admin")

	if got := GetTraceID(ctx); got != "trace-1" {
		t.Fatalf("expected trace-1, got %q", got)
	}
	if got := GetUserID(ctx); got != "user-1" {
		t.Fatalf("expected user-1, got %q", got)
	}
	if got := GetRole(ctx); got != "admin" {
		t.Fatalf("expected admin, got %q", got)
	}
}

func TestContextEmptyDefaults(t *testing.T) {
	ctx := context.Background()
	if got := GetTraceID(ctx); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
	if got := GetUserID(ctx); got != "" {
		t.Fatalf("expected empty user id, got %q", got)
	}
	if got := GetRole(ctx); got != "" {
		t.Fatalf("expected empty role, got %q", got)
	}
}

func TestNewTraceIDUnique(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty trace ids, got %q and %q", a, b)
	}
}

func TestNewFallsBackOnBadLevel(t *testing.T) {
	log := New("test", "nonsense", "text")
	if log == nil {
		t.Fatal("expected logger")
	}
	log.WithField("k", "v").Debug("should not panic")
	log.WithContext(WithUserID(context.Background(), "u")).Info("ok")
}
