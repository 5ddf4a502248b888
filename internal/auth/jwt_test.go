package auth

import (
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", "faculty-1", time.Minute, "Dr. Smith", "smith@example.edu")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	ident, err := ParseSessionToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if ident.ID != "faculty-1" || ident.DisplayName != "Dr. Smith" || ident.Email != "smith@example.edu" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
	if ident.Anonymous {
		t.Fatalf("verified identity must not be anonymous")
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", "faculty-1", time.Minute, "", "")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseSessionToken("other-secret", "issuer", token); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
}

func TestSessionTokenIssuerMismatch(t *testing.T) {
	token, err := NewSessionToken("secret", "other-issuer", "faculty-1", time.Minute, "", "")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseSessionToken("secret", "issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch to fail")
	}
}

func TestSessionTokenExpired(t *testing.T) {
	token, err := NewSessionToken("secret", "issuer", "faculty-1", -time.Minute, "", "")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseSessionToken("secret", "issuer", token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
