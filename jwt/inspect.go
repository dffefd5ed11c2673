package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when a token cannot be decoded as a JWT.
	ErrMalformed = errors.New("malformed access token")
	// ErrNoExpiry is returned when a token carries no exp claim.
	ErrNoExpiry = errors.New("access token has no expiry")
)

// Claims are the access-token claims the client cares about. Backends either
// put the user id in "sub" or in a custom "userId" claim, and roles either in
// a "roles" array or a single "role" string; both shapes are accepted.
type Claims struct {
	UserID string   `json:"userId,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Role   string   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id from "userId", falling back to "sub".
func (c *Claims) Identity() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// AllRoles merges "roles" and "role" without duplicates.
func (c *Claims) AllRoles() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Roles)+1)
	seen := make(map[string]struct{}, len(c.Roles)+1)
	for _, r := range append(append([]string(nil), c.Roles...), c.Role) {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ExpiresAt returns the exp claim.
func (c *Claims) ExpiresAt() (time.Time, error) {
	if c == nil || c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return c.RegisteredClaims.ExpiresAt.Time, nil
}

// ExpiresWithin reports whether the token is expired or expires within d of
// now. Tokens without an exp claim never report expiry.
func (c *Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	exp, err := c.ExpiresAt()
	if err != nil {
		return false
	}
	return !exp.After(now.Add(d))
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return claims, nil
}
