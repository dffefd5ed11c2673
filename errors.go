package telecare

import (
	"errors"

	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/internal/wire"
)

var (
	// ErrValidation is returned before any I/O when required input is missing.
	ErrValidation = rest.ErrValidation
	// ErrInvalidCredentials is returned when the backend rejects email and password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMFARequired is returned by Require while a verification code is pending.
	ErrMFARequired = errors.New("mfa verification required")
	// ErrMFASetupRequired is returned by Require while MFA enrollment is pending.
	ErrMFASetupRequired = errors.New("mfa setup required")
	// ErrMFAInvalid is returned when a verification code is rejected.
	ErrMFAInvalid = errors.New("invalid verification code")
	// ErrNoRefreshToken is returned by Refresh when the store holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshRejected is returned when the backend refuses to mint new tokens.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNetwork marks failures that never produced a response.
	ErrNetwork = rest.ErrNetwork
	// ErrServer matches an *APIError with a 5xx status.
	ErrServer = rest.ErrServer
	// ErrResponseTooLarge is returned when a response body exceeds the read limit.
	ErrResponseTooLarge = rest.ErrResponseTooLarge
	// ErrStorage is returned when tokens could not be persisted.
	ErrStorage = errors.New("token storage failed")
	// ErrSessionClosed is returned by operations started after Close.
	ErrSessionClosed = errors.New("session closed")
)

// APIError is a non-2xx backend response.
type APIError = rest.APIError

// ParseError reports a response body that does not match its endpoint's
// contract.
type ParseError = wire.ParseError
