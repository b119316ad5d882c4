package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signTestToken creates a signed HS256 token for claim extraction tests.
// The signing key is irrelevant: extraction never verifies signatures.
func signTestToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestExtractClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signTestToken(t, "user-123", "tech@workshop.test", exp)

	claims, err := ExtractClaims(token)
	if err != nil {
		t.Fatalf("ExtractClaims() error = %v", err)
	}

	if claims.Subject != "user-123" {
		t.Errorf("Subject = %q, want user-123", claims.Subject)
	}
	if claims.Email != "tech@workshop.test" {
		t.Errorf("Email = %q, want tech@workshop.test", claims.Email)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestExtractClaims_Garbage(t *testing.T) {
	if _, err := ExtractClaims("not-a-jwt"); !errors.Is(err, ErrClaimsUnreadable) {
		t.Errorf("expected ErrClaimsUnreadable, got %v", err)
	}
}

func TestExtractClaims_NoUsableClaims(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("signing empty token: %v", err)
	}

	if _, err := ExtractClaims(signed); !errors.Is(err, ErrClaimsUnreadable) {
		t.Errorf("expected ErrClaimsUnreadable for empty claims, got %v", err)
	}
}
