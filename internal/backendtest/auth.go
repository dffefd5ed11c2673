package backendtest

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
	Code     string `json:"code"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(in.Email)]
	if !ok || acc.Password != in.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if acc.RequireMFASetup && !acc.MFAEnabled {
		out := map[string]any{
			"requiresMFASetup": true,
			"message":          "Multi-factor authentication setup is required",
		}
		if acc.IssueSetupToken {
			token := uuid.NewString()
			s.setupTokens[token] = acc.Email
			out["tempToken"] = token
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	if acc.MFAEnabled {
		if in.MFACode == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"requiresMFA": true,
				"message":     "Verification code required",
			})
			return
		}
		if in.MFACode != acc.MFACode {
			writeError(w, http.StatusUnauthorized, "Invalid verification code")
			return
		}
	}

	access, refresh, err := s.issueLocked(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         acc.userJSON(),
	})
}

type registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	DateOfBirth string `json:"dateOfBirth"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registration
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if _, exists := s.Account(in.Email); exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	role := in.Role
	if role == "" {
		role = "patient"
	}
	acc := s.AddAccount(Account{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Roles:     []string{role},
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful. Please verify your email.",
		"data":    map[string]any{"user": acc.userJSON()},
	})
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh rotates the pair: the presented refresh token is consumed.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshBody
	if err := decode(r, &in); err != nil || in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[in.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	acc, ok := s.accounts[email]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refresh, in.RefreshToken)

	access, refresh, err := s.issueLocked(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"accessToken": access, "refreshToken": refresh},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var in refreshBody
	_ = decode(r, &in)

	s.mu.Lock()
	if in.RefreshToken != "" {
		delete(s.refresh, in.RefreshToken)
	}
	if token, ok := bearer(r); ok {
		delete(s.access, token)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request, acc *Account) {
	s.mu.Lock()
	user := acc.userJSON()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": user}})
}

type profilePatch struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in profilePatch
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	if in.FirstName != "" {
		acc.FirstName = in.FirstName
	}
	if in.LastName != "" {
		acc.LastName = in.LastName
	}
	if in.Phone != "" {
		acc.Phone = in.Phone
	}
	user := acc.userJSON()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated", "user": user})
}

// VerificationToken returns the token that verifies email.
func (s *Server) VerificationToken(email string) string {
	acc, ok := s.Account(email)
	if !ok {
		return ""
	}
	return "verify-" + acc.ID
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decode(r, &in); err != nil || in.Token == "" {
		writeError(w, http.StatusBadRequest, "Verification token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if "verify-"+acc.ID == in.Token {
			acc.Verified = true
			writeJSON(w, http.StatusOK, map[string]any{"message": "Email verified successfully"})
			return
		}
	}
	writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
}

func (s *Server) handleMessage(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email string `json:"email"`
		}
		if err := decode(r, &in); err != nil || in.Email == "" {
			writeError(w, http.StatusBadRequest, "Email is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": message})
	}
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil || in.Token == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Token and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.resetTokens[in.Token]
	acc := s.accounts[email]
	if !ok || acc == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	delete(s.resetTokens, in.Token)
	acc.Password = in.Password
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successful"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decode(r, &in); err != nil || in.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.Password != in.CurrentPassword {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	acc.Password = in.NewPassword
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully"})
}

type mfaAuthKind int

const (
	mfaByAccess mfaAuthKind = iota + 1
	mfaBySetupToken
	mfaByCredentials
)

// mfaAccount authenticates an MFA call by bearer access token, bearer setup
// token or email and password in the body.
func (s *Server) mfaAccount(r *http.Request, in credentials) (*Account, mfaAuthKind, bool) {
	if acc, ok := s.bearerAccount(r); ok {
		return acc, mfaByAccess, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := bearer(r); ok {
		email, found := s.setupTokens[token]
		if !found {
			return nil, 0, false
		}
		acc, found := s.accounts[email]
		return acc, mfaBySetupToken, found
	}
	acc, ok := s.accounts[strings.ToLower(in.Email)]
	if !ok || in.Password == "" || acc.Password != in.Password {
		return nil, 0, false
	}
	return acc, mfaByCredentials, true
}

func (s *Server) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	_ = decode(r, &in)
	acc, _, ok := s.mfaAccount(r, in)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	secret := strings.ToUpper(strings.ReplaceAll(acc.ID, "-", ""))
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      secret,
		"qrCodeUrl":   "data:image/png;base64,AAAA",
		"otpauthUrl":  "otpauth://totp/Telecare:" + acc.Email + "?secret=" + secret,
		"backupCodes": []string{"11111111", "22222222"},
	})
}

// handleMFAVerify enables MFA. Setup-token callers get a pair back; the
// others only a confirmation.
func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var in credentials
	_ = decode(r, &in)
	acc, kind, ok := s.mfaAccount(r, in)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Code == "" || in.Code != acc.MFACode {
		writeError(w, http.StatusBadRequest, "Invalid verification code")
		return
	}
	acc.MFAEnabled = true

	if kind != mfaBySetupToken {
		writeJSON(w, http.StatusOK, map[string]any{"message": "MFA enabled successfully"})
		return
	}
	if token, ok := bearer(r); ok {
		delete(s.setupTokens, token)
	}
	access, refresh, err := s.issueLocked(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "MFA enabled successfully",
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         acc.userJSON(),
	})
}

func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in credentials
	_ = decode(r, &in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !acc.MFAEnabled {
		writeError(w, http.StatusBadRequest, "MFA is not enabled")
		return
	}
	if in.Code != acc.MFACode {
		writeError(w, http.StatusBadRequest, "Invalid verification code")
		return
	}
	acc.MFAEnabled = false
	writeJSON(w, http.StatusOK, map[string]any{"message": "MFA disabled successfully"})
}
