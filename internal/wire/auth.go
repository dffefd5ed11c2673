package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LoginKind discriminates the variants of a successful login response.
type LoginKind int

const (
	// LoginTokens carries a full credential pair and the user.
	LoginTokens LoginKind = iota + 1
	// LoginMFARequired asks for a verification code on a follow-up call.
	LoginMFARequired
	// LoginMFASetupRequired asks the user to enroll a second factor first.
	LoginMFASetupRequired
)

func (k LoginKind) String() string {
	switch k {
	case LoginTokens:
		return "tokens"
	case LoginMFARequired:
		return "mfa_required"
	case LoginMFASetupRequired:
		return "mfa_setup_required"
	default:
		return "unknown"
	}
}

// Tokens is a credential pair as sent by the backend.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// LoginResponse is the decoded 200 body of /auth/login.
type LoginResponse struct {
	Kind       LoginKind
	Tokens     Tokens
	User       *User
	SetupToken string
	Message    string
	Raw        json.RawMessage
}

// AuthResponse is the decoded body of endpoints that mint tokens outside the
// login flow (/auth/refresh, /auth/mfa/verify).
type AuthResponse struct {
	Tokens  Tokens
	User    *User
	Message string
}

type rawAuth struct {
	RequiresMFA      bool            `json:"requiresMFA"`
	RequiresMFASetup bool            `json:"requiresMFASetup"`
	AccessToken      string          `json:"accessToken"`
	Token            string          `json:"token"`
	RefreshToken     string          `json:"refreshToken"`
	TempToken        string          `json:"tempToken"`
	SetupToken       string          `json:"setupToken"`
	Message          string          `json:"message"`
	User             json.RawMessage `json:"user"`
}

func (r rawAuth) accessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

func (r rawAuth) setupToken() string {
	if r.SetupToken != "" {
		return r.SetupToken
	}
	return r.TempToken
}

// DecodeLogin classifies a 200 login body. A setup requirement wins over a
// verification requirement when both flags are present.
func DecodeLogin(data []byte) (*LoginResponse, error) {
	const endpoint = "login"

	_, body, err := object(endpoint, data)
	if err != nil {
		return nil, err
	}
	var raw rawAuth
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr(endpoint, "invalid body", err)
	}

	out := &LoginResponse{
		Message: strings.TrimSpace(raw.Message),
		Raw:     append(json.RawMessage(nil), body...),
	}

	switch {
	case raw.RequiresMFASetup:
		out.Kind = LoginMFASetupRequired
		out.SetupToken = raw.setupToken()
		if present(raw.User) {
			user, err := decodeUserObject(endpoint, raw.User)
			if err != nil {
				return nil, err
			}
			out.User = user
		}
		return out, nil
	case raw.RequiresMFA:
		out.Kind = LoginMFARequired
		return out, nil
	}

	access := raw.accessToken()
	if access == "" {
		return nil, parseErr(endpoint, "missing access token", nil)
	}
	if raw.RefreshToken == "" {
		return nil, parseErr(endpoint, "missing refresh token", nil)
	}
	user, err := decodeUserObject(endpoint, raw.User)
	if err != nil {
		return nil, err
	}
	out.Kind = LoginTokens
	out.Tokens = Tokens{AccessToken: access, RefreshToken: raw.RefreshToken}
	out.User = user
	return out, nil
}

// DecodeAuth reads a token-minting body. The access token is mandatory; a
// missing refresh token or user means the backend did not rotate them and the
// caller keeps its current values.
func DecodeAuth(endpoint string, data []byte) (*AuthResponse, error) {
	_, body, err := object(endpoint, data)
	if err != nil {
		return nil, err
	}
	var raw rawAuth
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr(endpoint, "invalid body", err)
	}

	access := raw.accessToken()
	if access == "" {
		return nil, parseErr(endpoint, "missing access token", nil)
	}
	out := &AuthResponse{
		Tokens:  Tokens{AccessToken: access, RefreshToken: raw.RefreshToken},
		Message: strings.TrimSpace(raw.Message),
	}
	if present(raw.User) {
		user, err := decodeUserObject(endpoint, raw.User)
		if err != nil {
			return nil, err
		}
		out.User = user
	}
	return out, nil
}

// MFASetup is the enrollment material returned by /auth/mfa/setup.
type MFASetup struct {
	Secret      string
	QRCode      string
	OTPAuthURL  string
	BackupCodes []string
}

type rawMFASetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	QRCodeURL   string   `json:"qrCodeUrl"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
}

// DecodeMFASetup requires at least a secret or a QR code.
func DecodeMFASetup(data []byte) (*MFASetup, error) {
	const endpoint = "mfa setup"

	_, body, err := object(endpoint, data)
	if err != nil {
		return nil, err
	}
	var raw rawMFASetup
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr(endpoint, "invalid body", err)
	}
	out := &MFASetup{
		Secret:      raw.Secret,
		QRCode:      raw.QRCode,
		OTPAuthURL:  raw.OTPAuthURL,
		BackupCodes: raw.BackupCodes,
	}
	if out.QRCode == "" {
		out.QRCode = raw.QRCodeURL
	}
	if out.Secret == "" && out.QRCode == "" {
		return nil, parseErr(endpoint, "missing secret", nil)
	}
	return out, nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
