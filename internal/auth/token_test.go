package auth

import (
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	secret := []byte("test-secret")

	token, expires, err := Sign(secret, "u1", "admin", "s1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(expires) < 55*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "admin" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := Sign([]byte("secret-a"), "u1", "user", "s1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse([]byte("secret-b"), token); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Sign([]byte("secret"), "u1", "user", "s1", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse([]byte("secret"), token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("secret"), "not-a-token"); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("token-value")
	b := HashToken("token-value")
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if HashToken("other") == a {
		t.Fatal("distinct tokens must hash differently")
	}
}
