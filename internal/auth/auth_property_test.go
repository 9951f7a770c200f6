package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genUsername generates a valid username (non-empty identifier).
func genUsername() gopter.Gen {
	return gen.Identifier().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 64
	})
}

// genSecret generates a signing secret of at least 32 bytes.
func genSecret() gopter.Gen {
	return gen.SliceOfN(32, gen.UInt8()).Map(func(bytes []uint8) []byte {
		result := make([]byte, len(bytes))
		copy(result, bytes)
		return result
	})
}

// For any username and secret, an issued remember token verifies to the same
// username and token id before it expires.
func TestRememberTokenRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	properties.Property("remember token round-trip preserves identity", prop.ForAll(
		func(username string, secret []byte) bool {
			token, issued, err := issueToken(secret, username, now, time.Hour)
			if err != nil {
				return false
			}

			claims, err := parseToken(secret, token, now.Add(30*time.Minute))
			if err != nil {
				return false
			}

			return claims.Username == username && claims.ID == issued.ID && claims.Exp.Equal(now.Add(time.Hour))
		},
		genUsername(),
		genSecret(),
	))

	properties.TestingRun(t)
}

// A token verified with a different secret is always rejected.
func TestRememberTokenWrongSecret(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	now := time.Now()

	properties.Property("token signed with another secret is rejected", prop.ForAll(
		func(username string, a, b []byte) bool {
			if string(a) == string(b) {
				return true
			}
			token, _, err := issueToken(a, username, now, time.Hour)
			if err != nil {
				return false
			}
			_, err = parseToken(b, token, now)
			return errors.Is(err, ErrInvalidSignature)
		},
		genUsername(),
		genSecret(),
		genSecret(),
	))

	properties.TestingRun(t)
}

func TestRememberTokenExpiry(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	token, _, err := issueToken(secret, "admin", now, time.Hour)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	if _, err := parseToken(secret, token, now.Add(2*time.Hour)); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
	if _, err := parseToken(secret, "", now); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
	if _, err := parseToken(secret, "not.a.token", now); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, _, err := issueToken(secret, "", now, time.Hour); !errors.Is(err, ErrMissingClaims) {
		t.Errorf("expected ErrMissingClaims, got %v", err)
	}
}
