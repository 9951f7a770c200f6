// Package auth provides the admin session gate: credential checks, server-side
// sessions with an idle timeout, and signed remember-me tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Common errors returned by the auth gate.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrRevokedToken       = errors.New("token has been revoked")
	ErrMissingClaims      = errors.New("missing required claims")
	ErrInvalidSignature   = errors.New("invalid token signature")
)

// rememberIssuer is the iss claim of remember tokens.
const rememberIssuer = "siapp"

// Claims are the verified contents of a remember token.
type Claims struct {
	ID       string
	Username string
	Exp      time.Time
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// issueToken signs a remember token for username valid for ttl from now.
func issueToken(secret []byte, username string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	if username == "" {
		return "", nil, ErrMissingClaims
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("generating token id: %w", err)
	}
	exp := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		ID:        id.String(),
		Issuer:    rememberIssuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}

	return signed, &Claims{ID: claims.ID, Username: username, Exp: time.Unix(exp.Unix(), 0)}, nil
}

// parseToken verifies signature, issuer and expiry of a remember token as of now.
func parseToken(secret []byte, tokenString string, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(rememberIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrMissingClaims
	}

	return &Claims{
		ID:       claims.ID,
		Username: claims.Subject,
		Exp:      claims.ExpiresAt.Time,
	}, nil
}

// SecureCompare performs a constant-time comparison of two strings.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
