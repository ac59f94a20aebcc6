// Package tokenstest mints HS256 tokens shaped like the auth backend's for tests.
package tokenstest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Secret signs every minted token; nothing in the console verifies it.
const Secret = "tokenstest-secret-32-bytes-xxxxxxxx"

// Mint signs the given claims map.
func Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

// ExpiringIn mints a token for a company admin expiring ttl from now.
func ExpiringIn(t testing.TB, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	return Mint(t, jwt.MapClaims{
		"email":      "admin@example.com",
		"role":       "admin",
		"company_id": "company-1",
		"user_id":    "user-1",
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
}
