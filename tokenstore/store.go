package tokenstore

import (
	"context"
	"errors"
)

const (
	// AccessKey is the storage key of the access token.
	AccessKey = "token"
	// RefreshKey is the storage key of the refresh token.
	RefreshKey = "refreshToken"
)

// ErrUnavailable is returned when the backing medium cannot be read or written.
var ErrUnavailable = errors.New("token store unavailable")

// Pair is the access/refresh credential pair held by a session.
type Pair struct {
	Access  string
	Refresh string
}

// Empty reports whether neither token is present.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// Store is the persistence contract consumed by the session and the auth
// transport. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns both tokens. Missing values are empty strings.
	Load(ctx context.Context) (Pair, error)
	// Save replaces both tokens. An empty field removes that key.
	Save(ctx context.Context, pair Pair) error
	// SetAccess replaces only the access token.
	SetAccess(ctx context.Context, token string) error
	// Clear removes both tokens. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
