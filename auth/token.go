package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMissing indicates no token was supplied with the handshake
	ErrTokenMissing = errors.New("missing token")
	// ErrTokenExpired indicates the token was well-formed but past its expiry
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed token or failed signature check
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims are the token claims issued by the task-management backend. The
// subject carries the user ID; name and email ride along as display data.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user's ID
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenValidator verifies handshake tokens and classifies failures so the
// transport layer can map them to distinct close codes.
type TokenValidator struct {
	keyManager *KeyManager
}

// NewTokenValidator creates a validator backed by the given key manager
func NewTokenValidator(keyManager *KeyManager) *TokenValidator {
	return &TokenValidator{keyManager: keyManager}
}

// ValidateToken verifies the token string and returns its claims. The error
// is always nil, ErrTokenMissing, ErrTokenExpired or wraps ErrTokenInvalid.
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	if _, err := v.keyManager.VerifyToken(tokenString, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrTokenInvalid)
	}

	return claims, nil
}

// MintToken creates a signed token for the given user, valid for ttl.
// Used by development tooling and tests; production tokens are issued by
// the task-management backend.
func (v *TokenValidator) MintToken(userID, email, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return v.keyManager.CreateToken(claims)
}

// AuthError represents an authentication error returned on HTTP surfaces
type AuthError struct {
	Code        string
	Description string
	StatusCode  int
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s - %s", e.Code, e.Description)
}
