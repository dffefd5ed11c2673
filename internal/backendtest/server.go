package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// BasePath is the prefix every route is mounted under.
const BasePath = "/api"

// Account is a user known to the fake backend.
type Account struct {
	ID        string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Roles     []string
	Verified  bool

	MFAEnabled bool
	// MFACode is the only code accepted for this account.
	MFACode string
	// RequireMFASetup makes login answer requiresMFASetup until MFA is
	// enabled.
	RequireMFASetup bool
	// IssueSetupToken adds a tempToken to the requiresMFASetup answer.
	IssueSetupToken bool
	// MinimalUser sends the user object as {"roles": [...]} only.
	MinimalUser bool
}

type failure struct {
	status  int
	message string
	times   int
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	mu sync.Mutex

	secret    []byte
	accessTTL time.Duration

	accounts    map[string]*Account
	access      map[string]string
	refresh     map[string]string
	setupTokens map[string]string
	resetTokens map[string]string

	consultations map[string]*consultationDoc
	prescriptions map[string]*prescriptionDoc

	calls    map[string]int
	failures map[string]*failure

	router *mux.Router
	ts     *httptest.Server
}

// New returns a backend with no accounts.
func New() *Server {
	s := &Server{
		secret:        []byte("backendtest-secret"),
		accessTTL:     15 * time.Minute,
		accounts:      make(map[string]*Account),
		access:        make(map[string]string),
		refresh:       make(map[string]string),
		setupTokens:   make(map[string]string),
		resetTokens:   make(map[string]string),
		consultations: make(map[string]*consultationDoc),
		prescriptions: make(map[string]*prescriptionDoc),
		calls:         make(map[string]int),
		failures:      make(map[string]*failure),
	}
	s.router = s.routes()
	return s
}

// Start serves the backend on a loopback listener.
func Start() *Server {
	s := New()
	s.ts = httptest.NewServer(s)
	return s
}

// URL is the base URL clients should be configured with.
func (s *Server) URL() string {
	if s.ts == nil {
		return ""
	}
	return s.ts.URL + BasePath
}

func (s *Server) Close() {
	if s.ts != nil {
		s.ts.Close()
	}
}

// SetAccessTTL changes the lifetime of tokens minted from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	s.accessTTL = d
	s.mu.Unlock()
}

// AddAccount registers a and returns it with defaults filled in.
func (s *Server) AddAccount(a Account) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if len(a.Roles) == 0 {
		a.Roles = []string{"patient"}
	}
	if a.MFACode == "" {
		a.MFACode = "123456"
	}
	a.Email = strings.ToLower(a.Email)
	acc := a
	s.accounts[a.Email] = &acc
	return acc
}

// Account returns a copy of the stored account.
func (s *Server) Account(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// Calls returns how often method path (without BasePath) was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// Fail makes the next times requests to method path answer status with
// message. times <= 0 fails until Reset.
func (s *Server) Fail(method, path string, status int, message string, times int) {
	s.mu.Lock()
	s.failures[method+" "+path] = &failure{status: status, message: message, times: times}
	s.mu.Unlock()
}

// Reset drops forced failures.
func (s *Server) Reset() {
	s.mu.Lock()
	s.failures = make(map[string]*failure)
	s.mu.Unlock()
}

// ExpireAccessTokens invalidates every issued access token while keeping
// refresh tokens valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.access = make(map[string]string)
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = make(map[string]string)
	s.mu.Unlock()
}

// IssueResetToken returns a password reset token for email.
func (s *Server) IssueResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.resetTokens[token] = strings.ToLower(email)
	return token
}

// IssueTokens mints a valid pair for email, bypassing login.
func (s *Server) IssueTokens(email string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return "", "", fmt.Errorf("unknown account %q", email)
	}
	return s.issueLocked(acc)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	root := mux.NewRouter()
	api := root.PathPrefix(BasePath).Subrouter()
	api.Use(s.record)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	auth.HandleFunc("/profile", s.authed(s.handleProfile)).Methods(http.MethodGet)
	auth.HandleFunc("/profile", s.authed(s.handleUpdateProfile)).Methods(http.MethodPatch)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/resend-verification", s.handleMessage("Verification email sent")).Methods(http.MethodPost)
	auth.HandleFunc("/forgot-password", s.handleMessage("If the account exists, a reset link has been sent")).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	auth.HandleFunc("/change-password", s.authed(s.handleChangePassword)).Methods(http.MethodPost)
	auth.HandleFunc("/mfa/setup", s.handleMFASetup).Methods(http.MethodPost)
	auth.HandleFunc("/mfa/verify", s.handleMFAVerify).Methods(http.MethodPost)
	auth.HandleFunc("/mfa/disable", s.authed(s.handleMFADisable)).Methods(http.MethodPost)

	api.HandleFunc("/consultations", s.authed(s.handleListConsultations)).Methods(http.MethodGet)
	api.HandleFunc("/consultations", s.authed(s.handleCreateConsultation)).Methods(http.MethodPost)
	api.HandleFunc("/consultations/{id}", s.authed(s.handleGetConsultation)).Methods(http.MethodGet)
	api.HandleFunc("/consultations/{id}/assign", s.authed(s.handleAssignConsultation)).Methods(http.MethodPost)
	api.HandleFunc("/consultations/{id}/payment", s.authed(s.handlePayConsultation)).Methods(http.MethodPost)
	api.HandleFunc("/consultations/{id}/status", s.authed(s.handleConsultationStatus)).Methods(http.MethodPatch)
	api.HandleFunc("/consultations/{id}/prescriptions", s.authed(s.handleCreatePrescription)).Methods(http.MethodPost)

	api.HandleFunc("/prescriptions", s.authed(s.handlePrescriptionHistory)).Methods(http.MethodGet)
	api.HandleFunc("/prescriptions/{id}", s.authed(s.handleGetPrescription)).Methods(http.MethodGet)
	api.HandleFunc("/prescriptions/{id}", s.authed(s.handleUpdatePrescription)).Methods(http.MethodPatch)
	api.HandleFunc("/prescriptions/{id}/sign", s.authed(s.handleSignPrescription)).Methods(http.MethodPost)

	return root
}

// record counts the call and applies any forced failure.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, BasePath)

		s.mu.Lock()
		s.calls[key]++
		f := s.failures[key]
		var forced *failure
		if f != nil {
			copied := *f
			forced = &copied
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.failures, key)
				}
			}
		}
		s.mu.Unlock()

		if forced != nil {
			writeError(w, forced.status, forced.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *Account)

// authed resolves the bearer token to an account or answers 401.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := s.bearerAccount(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		h(w, r, acc)
	}
}

func (s *Server) bearerAccount(r *http.Request) (*Account, bool) {
	token, ok := bearer(r)
	if !ok {
		return nil, false
	}
	if _, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.access[token]
	if !ok {
		return nil, false
	}
	acc, ok := s.accounts[email]
	return acc, ok
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

// issueLocked mints a fresh pair. Callers hold s.mu.
func (s *Server) issueLocked(acc *Account) (string, string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    acc.ID,
		"userId": acc.ID,
		"email":  acc.Email,
		"roles":  acc.Roles,
		"iat":    now.Unix(),
		"exp":    now.Add(s.accessTTL).Unix(),
		"jti":    uuid.NewString(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	s.access[access] = acc.Email
	s.refresh[refresh] = acc.Email
	return access, refresh, nil
}

func (acc *Account) userJSON() map[string]any {
	if acc.MinimalUser {
		return map[string]any{"roles": acc.Roles}
	}
	return map[string]any{
		"id":              acc.ID,
		"email":           acc.Email,
		"firstName":       acc.FirstName,
		"lastName":        acc.LastName,
		"phone":           acc.Phone,
		"roles":           acc.Roles,
		"isEmailVerified": acc.Verified,
		"isActive":        true,
		"mfaEnabled":      acc.MFAEnabled,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
