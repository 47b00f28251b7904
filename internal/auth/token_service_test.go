package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenServiceIssuesDecodableTokens(t *testing.T) {
	service, err := NewTokenService(TokenServiceConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "vellum-api",
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresAt, err := service.Issue("user-123", "user")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 6*24*time.Hour {
		t.Fatalf("expected roughly seven day expiry, got %s", remaining)
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	}); err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("unexpected user id %q", claims.UserID)
	}
	if claims.Role != "user" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Issuer != "vellum-api" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestTokenServiceRejectsMissingSecret(t *testing.T) {
	if _, err := NewTokenService(TokenServiceConfig{}); err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestTokenServiceRejectsEmptySubject(t *testing.T) {
	service, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := service.Issue("   ", "user"); err == nil {
		t.Fatalf("expected error for blank subject")
	}
}

func TestTokenServiceValidatesWithinLifetime(t *testing.T) {
	issuedAt := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	currentTime := issuedAt
	service, err := NewTokenService(TokenServiceConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "vellum-api",
		Clock:         func() time.Time { return currentTime },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, _, err := service.Issue("user-7", "admin")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	// One minute shy of the seven day boundary the token still validates.
	currentTime = issuedAt.Add(7*24*time.Hour - time.Minute)
	claims, err := service.Validate(tokenString)
	if err != nil {
		t.Fatalf("expected token to validate before expiry: %v", err)
	}
	if claims.UserID != "user-7" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	// Past the boundary the failure is specifically an expiry.
	currentTime = issuedAt.Add(7*24*time.Hour + time.Minute)
	if _, err := service.Validate(tokenString); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenServiceDistinguishesBadSignature(t *testing.T) {
	issuerService, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("issuing-secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	validatorService, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("different-secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, _, err := issuerService.Issue("user-9", "user")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := validatorService.Validate(tokenString); !errors.Is(err, ErrTokenBadSignature) {
		t.Fatalf("expected ErrTokenBadSignature, got %v", err)
	}
}

func TestTokenServiceReportsMalformedTokens(t *testing.T) {
	service, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	for _, tokenString := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := service.Validate(tokenString); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("expected ErrTokenMalformed for %q, got %v", tokenString, err)
		}
	}
}

func TestTokenServiceRejectsForeignIssuer(t *testing.T) {
	foreign, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("secret"), Issuer: "someone-else"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	service, err := NewTokenService(TokenServiceConfig{SigningSecret: []byte("secret"), Issuer: "vellum-api"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, _, err := foreign.Issue("user-1", "user")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := service.Validate(tokenString); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for foreign issuer, got %v", err)
	}
}
