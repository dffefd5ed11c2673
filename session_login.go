package telecare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/internal/wire"
	"github.com/MrEthical07/telecare/tokenstore"
	"github.com/MrEthical07/telecare/transport"
)

const (
	opLogin    = "login"
	opMFALogin = "mfa_login"
	opRegister = "register"
	opLogout   = "logout"
)

// Login submits email and password. A nil error with a LoginResult whose
// Outcome is LoginNeedsMFA or LoginNeedsMFASetup is not a failure: the
// session has moved to the matching pending phase.
func (s *Session) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		msg := s.cfg.Messages.MissingCredentials
		s.clearStore(ctx, "login validation failed")
		s.dispatch(action{kind: actLoginFailed, message: msg})
		s.metrics.Inc(internalmetrics.LoginFailure)
		s.notify(ctx, NotifyError, opLogin, msg)
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	return s.login(ctx, opLogin, email, password, "")
}

// LoginWithMFA repeats the login with a verification code.
func (s *Session) LoginWithMFA(ctx context.Context, email, password, code string) (*LoginResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || password == "" || code == "" {
		msg := s.cfg.Messages.MFAInvalid
		s.clearStore(ctx, "mfa login validation failed")
		s.dispatch(action{kind: actLoginFailed, message: msg})
		s.metrics.Inc(internalmetrics.MFALoginFailure)
		s.notify(ctx, NotifyError, opMFALogin, msg)
		return nil, fmt.Errorf("%w: email, password and code are required", ErrValidation)
	}
	return s.login(ctx, opMFALogin, email, password, code)
}

// VerifyMFA completes a pending verification with the credentials retained
// from the Login call that requested it.
func (s *Session) VerifyMFA(ctx context.Context, code string) (*LoginResult, error) {
	if s.State().Phase != PhaseMFARequired {
		return nil, fmt.Errorf("%w: no verification pending", ErrNotAuthenticated)
	}
	email, password, ok := s.pendingCredentials()
	if !ok {
		return nil, fmt.Errorf("%w: no retained credentials", ErrNotAuthenticated)
	}
	return s.LoginWithMFA(ctx, email, password, code)
}

func (s *Session) login(ctx context.Context, op, email, password, code string) (*LoginResult, error) {
	// Drop tokens left by an earlier session, including ones persisted by
	// another process.
	s.clearStore(ctx, "login started")
	s.dispatch(action{kind: actLoginStarted, email: email})

	resp, err := s.api.Do(transport.WithoutRetry(ctx), http.MethodPost, pathLogin, nil, loginRequest{
		Email:    email,
		Password: password,
		MFACode:  code,
	})
	if err != nil {
		s.failLogin(ctx, op, code != "", "", err)
		return nil, err
	}

	if resp.OK() {
		decoded, err := wire.DecodeLogin(resp.Body)
		if err != nil {
			s.metrics.Inc(internalmetrics.ParseFailure)
			s.failLogin(ctx, op, code != "", "", err)
			return nil, err
		}
		return s.handleLogin(ctx, op, email, password, decoded)
	}

	apiErr := resp.Err(http.MethodPost + " " + pathLogin)

	if resp.Status == http.StatusForbidden && s.looksLikeMFASetup(apiErr.Message) {
		return s.enterMFASetup(ctx, email, password, "", nil, apiErr.Message, resp.Body), nil
	}

	if resp.Status == http.StatusUnauthorized {
		if code != "" {
			s.failLogin(ctx, op, true, apiErr.Message, apiErr)
			return nil, fmt.Errorf("%w: %w", ErrMFAInvalid, apiErr)
		}
		s.failLogin(ctx, op, false, s.cfg.Messages.InvalidCredentials, apiErr)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
	}

	s.failLogin(ctx, op, code != "", apiErr.Message, apiErr)
	if code != "" && resp.Status < 500 {
		return nil, fmt.Errorf("%w: %w", ErrMFAInvalid, apiErr)
	}
	return nil, apiErr
}

func (s *Session) handleLogin(ctx context.Context, op, email, password string, r *wire.LoginResponse) (*LoginResult, error) {
	switch r.Kind {
	case wire.LoginMFASetupRequired:
		return s.enterMFASetup(ctx, email, password, r.SetupToken, r.User, r.Message, r.Raw), nil

	case wire.LoginMFARequired:
		msg := firstNonEmpty(r.Message, s.cfg.Messages.MFARequired)
		s.dispatchWithSecret(action{kind: actMFARequired, email: email}, password)
		s.metrics.Inc(internalmetrics.LoginMFARequired)
		s.notify(ctx, NotifyInfo, op, msg)
		s.navigate(ctx, Intent{
			Route:   s.cfg.Routes.MFAVerify,
			Email:   email,
			Message: msg,
			Reason:  ReasonMFARequired,
		})
		return &LoginResult{Outcome: LoginNeedsMFA, Message: msg, Raw: r.Raw}, nil
	}

	user, err := s.authenticate(ctx, op, r.User, r.Tokens)
	if err != nil {
		return nil, err
	}
	if op == opMFALogin {
		s.metrics.Inc(internalmetrics.MFALoginSuccess)
	} else {
		s.metrics.Inc(internalmetrics.LoginSuccess)
	}
	return &LoginResult{
		Outcome: LoginAuthenticated,
		User:    user.Clone(),
		Message: firstNonEmpty(r.Message, s.cfg.Messages.LoginSuccess),
		Raw:     r.Raw,
	}, nil
}

func (s *Session) enterMFASetup(ctx context.Context, email, password, setupToken string, user *User, message string, raw []byte) *LoginResult {
	msg := firstNonEmpty(message, s.cfg.Messages.MFASetupRequired)
	s.dispatchWithSecret(action{
		kind:       actMFASetupRequired,
		email:      email,
		setupToken: setupToken,
		user:       user,
	}, password)
	s.metrics.Inc(internalmetrics.LoginMFASetupRequired)
	s.notify(ctx, NotifyInfo, opLogin, msg)
	s.navigate(ctx, Intent{
		Route:   s.cfg.Routes.MFASetup,
		Email:   email,
		Message: msg,
		Reason:  ReasonMFASetupRequired,
	})
	return &LoginResult{
		Outcome:    LoginNeedsMFASetup,
		User:       user.Clone(),
		SetupToken: setupToken,
		Message:    msg,
		Raw:        raw,
	}
}

// looksLikeMFASetup applies the 403 heuristic. Backends that signal setup
// with a 200 body never reach it.
func (s *Session) looksLikeMFASetup(message string) bool {
	if !s.cfg.Compat.InferMFASetupFrom403 {
		return false
	}
	lower := strings.ToLower(message)
	for _, kw := range s.cfg.Compat.MFASetupKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (s *Session) failLogin(ctx context.Context, op string, mfa bool, message string, cause error) {
	fallback := s.cfg.Messages.LoginFailed
	if mfa {
		fallback = s.cfg.Messages.MFAInvalid
		s.metrics.Inc(internalmetrics.MFALoginFailure)
	} else {
		s.metrics.Inc(internalmetrics.LoginFailure)
	}
	msg := firstNonEmpty(message, fallback)
	s.dispatch(action{kind: actLoginFailed, message: msg})
	s.logger.Info("login failed", zap.String("operation", op), zap.Error(cause))
	s.notify(ctx, NotifyError, op, msg)
}

// authenticate persists tokens, then moves to authenticated and routes to
// the user's dashboard. If persisting fails the session lands in the error
// phase with both copies cleared.
func (s *Session) authenticate(ctx context.Context, op string, user *User, tokens wire.Tokens) (*User, error) {
	pair := tokenstore.Pair{Access: tokens.AccessToken, Refresh: tokens.RefreshToken}
	if user == nil || !pair.Complete() {
		msg := s.cfg.Messages.LoginFailed
		s.dispatch(action{kind: actLoginFailed, message: msg})
		s.notify(ctx, NotifyError, op, msg)
		return nil, &wire.ParseError{Endpoint: op, Reason: "missing tokens or user"}
	}
	if err := s.store.Save(ctx, pair); err != nil {
		s.persistFailed(ctx, op, err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	next := s.dispatch(action{kind: actAuthenticated, user: user, tokens: tokens})
	msg := s.cfg.Messages.LoginSuccess
	s.notify(ctx, NotifySuccess, op, msg)
	s.navigate(ctx, Intent{
		Route:   s.dashboard(next.User),
		Email:   next.User.Email,
		Message: msg,
		Reason:  ReasonAuthenticated,
	})
	return next.User, nil
}

func (s *Session) persistFailed(ctx context.Context, op string, cause error) {
	s.metrics.Inc(internalmetrics.PersistFailure)
	s.logger.Warn("persisting tokens failed", zap.String("operation", op), zap.Error(cause))
	s.clearStore(ctx, "rollback after failed persist")
	msg := s.cfg.Messages.StorageFailed
	s.dispatch(action{kind: actPersistFailed, message: msg})
	s.notify(ctx, NotifyError, op, msg)
}

func (s *Session) clearStore(ctx context.Context, reason string) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clearing token store failed", zap.String("reason", reason), zap.Error(err))
	}
}

// Register creates an account. It never authenticates: on success the
// session routes to the login screen with the submitted email.
func (s *Session) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		msg := s.cfg.Messages.MissingCredentials
		s.dispatch(action{kind: actErrorRaised, message: msg})
		s.metrics.Inc(internalmetrics.RegisterFailure)
		s.notify(ctx, NotifyError, opRegister, msg)
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	resp, err := s.api.Do(transport.WithoutRetry(ctx), http.MethodPost, pathRegister, nil, req)
	if err != nil {
		s.registerFailed(ctx, "", err)
		return nil, err
	}
	if !resp.OK() {
		apiErr := resp.Err(http.MethodPost + " " + pathRegister)
		s.registerFailed(ctx, apiErr.Message, apiErr)
		return nil, apiErr
	}

	msg := firstNonEmpty(wire.DecodeMessage(resp.Body), s.cfg.Messages.RegisterSuccess)
	result := &RegisterResult{Email: req.Email, Message: msg}
	if user, err := wire.DecodeUser("register", resp.Body); err == nil {
		result.User = user
	}

	s.dispatch(action{kind: actErrorCleared})
	s.metrics.Inc(internalmetrics.RegisterSuccess)
	s.notify(ctx, NotifySuccess, opRegister, msg)
	s.navigate(ctx, Intent{
		Route:   s.cfg.Routes.Login,
		Email:   req.Email,
		Message: msg,
		Reason:  ReasonRegistered,
	})
	return result, nil
}

func (s *Session) registerFailed(ctx context.Context, message string, cause error) {
	msg := firstNonEmpty(message, s.cfg.Messages.RegisterFailed)
	s.dispatch(action{kind: actErrorRaised, message: msg})
	s.metrics.Inc(internalmetrics.RegisterFailure)
	s.logger.Info("register failed", zap.Error(cause))
	s.notify(ctx, NotifyError, opRegister, msg)
}

// Logout tells the backend, then clears local state and the store whatever
// the backend said. It only fails when the session is closed.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	refresh := s.State().RefreshToken
	if pair, err := s.store.Load(ctx); err == nil && pair.Refresh != "" {
		refresh = pair.Refresh
	} else if err != nil {
		s.logger.Warn("reading token store during logout failed", zap.Error(err))
	}

	if refresh != "" {
		if err := s.notifyLogout(ctx, refresh); err != nil {
			s.metrics.Inc(internalmetrics.LogoutNotifyFailure)
			s.logger.Warn("backend logout failed", zap.Error(err))
		}
	}

	s.clearStore(ctx, "logout")
	s.dispatch(action{kind: actSignedOut})
	s.metrics.Inc(internalmetrics.Logout)

	msg := s.cfg.Messages.LogoutSuccess
	s.notify(ctx, NotifySuccess, opLogout, msg)
	s.navigate(ctx, Intent{Route: s.cfg.Routes.Login, Message: msg, Reason: ReasonLoggedOut})
	return nil
}

func (s *Session) notifyLogout(ctx context.Context, refresh string) error {
	resp, err := s.api.Do(transport.WithoutRetry(ctx), http.MethodPost, pathLogout, nil, refreshRequest{RefreshToken: refresh})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.Err(http.MethodPost + " " + pathLogout)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// isStatus reports whether err is an *APIError with the given status.
func isStatus(err error, status int) bool {
	var apiErr *rest.APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
