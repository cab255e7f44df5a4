package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the token failed validation. Every failure
// mode (bad signature, expired, malformed, wrong issuer) maps to this
// single error; callers must not leak which check failed.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims are the claims carried by a session token. WorkspaceID
// is a routing hint only: the middleware re-resolves the workspace from
// the database on every request, so a stale hint never grants access.
type SessionClaims struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens using HS256
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer. The secret must be non-empty;
// rotating it invalidates every outstanding session.
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be greater than zero")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source (useful for tests)
func (ti *TokenIssuer) WithClock(fn func() time.Time) *TokenIssuer {
	if fn != nil {
		ti.now = fn
	}
	return ti
}

// TTL returns the configured token lifetime
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue signs a session token for the given user. workspaceID may be
// empty for users with no workspace.
func (ti *TokenIssuer) Issue(userID, workspaceID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("userID is required")
	}

	now := ti.now().UTC()
	expiresAt := now.Add(ti.ttl)
	claims := SessionClaims{
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies the token signature and required claims
func (ti *TokenIssuer) Validate(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := ti.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (ti *TokenIssuer) validateClaims(claims *SessionClaims) error {
	if claims.Issuer != ti.issuer {
		return errors.New("unexpected issuer")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := ti.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
