package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 7 * 24 * time.Hour

var (
	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingSubject       = errors.New("auth: subject must be provided")

	// ErrTokenMalformed indicates the token structure could not be parsed
	// or its claims failed a structural check.
	ErrTokenMalformed = errors.New("auth: malformed token")
	// ErrTokenBadSignature indicates the signature did not verify against
	// the configured secret.
	ErrTokenBadSignature = errors.New("auth: bad token signature")
	// ErrTokenExpired indicates the token was valid once but its expiry has
	// passed.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the fixed claim set carried by every bearer token. Downstream
// code reads the decoded struct, never the raw payload.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenServiceConfig configures the bearer token issuer and validator.
type TokenServiceConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenService issues and validates HS256 bearer tokens. The signing secret
// is fixed at construction and never rotated in-process: rotating it would
// invalidate every outstanding token.
type TokenService struct {
	signingSecret []byte
	issuer        string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenService constructs a TokenService with sane defaults.
func NewTokenService(cfg TokenServiceConfig) (*TokenService, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        strings.TrimSpace(cfg.Issuer),
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// Issue produces a signed token for the subject and role along with its
// expiry timestamp.
func (s *TokenService) Issue(userID, role string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errMissingSubject
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.tokenTTL)

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies the token string and returns the decoded
// claims. Failures are reported as exactly one of ErrTokenMalformed,
// ErrTokenBadSignature or ErrTokenExpired; callers reject the request on any
// of them, the distinction exists for diagnostics.
func (s *TokenService) Validate(tokenString string) (Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrTokenMalformed, token.Method.Alg())
			}
			return s.signingSecret, nil
		},
		jwt.WithTimeFunc(s.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}
	if parsed == nil || !parsed.Valid {
		return Claims{}, ErrTokenMalformed
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrTokenMalformed)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return *claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, ErrTokenMalformed):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
