package telecare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/internal/wire"
	"github.com/MrEthical07/telecare/transport"
)

const (
	opMFASetup   = "mfa_setup"
	opMFAVerify  = "mfa_verify"
	opMFADisable = "mfa_disable"
)

type mfaRequest struct {
	Code     string `json:"code,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// SetupMFA requests enrollment material. While enrollment is pending it
// authenticates with the setup token, or with the retained credentials when
// the backend issued none; otherwise it uses the session's access token.
func (s *Session) SetupMFA(ctx context.Context) (*MFASetup, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, header, body, err := s.mfaAuth(ctx, "")
	if err != nil {
		return nil, err
	}

	resp, err := s.doMFA(ctx, pathMFASetup, header, body)
	if err != nil {
		s.raise(ctx, opMFASetup, err)
		return nil, err
	}
	setup, err := wire.DecodeMFASetup(resp.Body)
	if err != nil {
		s.metrics.Inc(internalmetrics.ParseFailure)
		s.raise(ctx, opMFASetup, err)
		return nil, err
	}
	s.metrics.Inc(internalmetrics.MFASetupStarted)
	return setup, nil
}

// CompleteMFASetup confirms enrollment with a code from the authenticator.
// When the backend answers with tokens the session becomes authenticated.
// An enrollment that yields no tokens falls back to logging in with the
// retained credentials and the code, or routes to login when none are held.
func (s *Session) CompleteMFASetup(ctx context.Context, code string) (*LoginResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrValidation)
	}
	pending := s.State().Phase == PhaseMFASetupPending

	ctx, header, body, err := s.mfaAuth(ctx, code)
	if err != nil {
		return nil, err
	}
	resp, err := s.doMFA(ctx, pathMFAVerify, header, body)
	if err != nil {
		s.raise(ctx, opMFAVerify, err)
		if isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %w", ErrMFAInvalid, err)
		}
		return nil, err
	}

	decoded, decodeErr := wire.DecodeAuth("mfa verify", resp.Body)
	if decodeErr == nil && decoded.Tokens.RefreshToken != "" {
		user := decoded.User
		if user == nil {
			user = s.User()
		}
		if user == nil {
			user, err = s.fetchProfileWith(ctx, decoded.Tokens.AccessToken)
			if err != nil {
				s.raise(ctx, opMFAVerify, err)
				return nil, err
			}
		}
		user.MFAEnabled = true
		authed, err := s.authenticate(ctx, opMFAVerify, user, decoded.Tokens)
		if err != nil {
			return nil, err
		}
		s.metrics.Inc(internalmetrics.MFASetupCompleted)
		return &LoginResult{Outcome: LoginAuthenticated, User: authed.Clone(), Message: decoded.Message, Raw: resp.Body}, nil
	}

	s.metrics.Inc(internalmetrics.MFASetupCompleted)
	msg := firstNonEmpty(wire.DecodeMessage(resp.Body), "Multi-factor authentication enabled")

	if !pending {
		if u := s.User(); u != nil {
			u.MFAEnabled = true
			s.dispatch(action{kind: actUserLoaded, user: u})
		}
		s.notify(ctx, NotifySuccess, opMFAVerify, msg)
		return &LoginResult{Outcome: LoginAuthenticated, User: s.User(), Message: msg, Raw: resp.Body}, nil
	}

	if email, password, ok := s.pendingCredentials(); ok {
		return s.login(ctx, opMFALogin, email, password, code)
	}

	email := ""
	if mfa := s.State().MFA; mfa != nil {
		email = mfa.Email
	}
	s.dispatch(action{kind: actSignedOut})
	s.notify(ctx, NotifySuccess, opMFAVerify, msg)
	s.navigate(ctx, Intent{Route: s.cfg.Routes.Login, Email: email, Message: msg, Reason: ReasonMFASetupRequired})
	return &LoginResult{Outcome: LoginNeedsMFA, Message: msg, Raw: resp.Body}, nil
}

// DisableMFA turns the second factor off for the authenticated user.
func (s *Session) DisableMFA(ctx context.Context, code string) (string, error) {
	if s.State().Phase != PhaseAuthenticated {
		return "", ErrNotAuthenticated
	}
	msg, err := s.simple(ctx, opMFADisable, pathMFADisable, mfaRequest{Code: strings.TrimSpace(code)}, true, "Multi-factor authentication disabled")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.MFADisabled)
	if u := s.User(); u != nil {
		u.MFAEnabled = false
		s.dispatch(action{kind: actUserLoaded, user: u})
	}
	return msg, nil
}

// mfaAuth decides how an MFA request authenticates. It returns an explicit
// Authorization header (setup token) or credentials for the body, and marks
// the context as not retryable when the session's own tokens are not used.
func (s *Session) mfaAuth(ctx context.Context, code string) (context.Context, string, mfaRequest, error) {
	st := s.State()
	body := mfaRequest{Code: code}

	if st.Phase == PhaseMFASetupPending && st.MFA != nil {
		if st.MFA.SetupToken != "" {
			return transport.WithoutRetry(ctx), "Bearer " + st.MFA.SetupToken, body, nil
		}
		email, password, ok := s.pendingCredentials()
		if !ok {
			return ctx, "", body, ErrNotAuthenticated
		}
		body.Email = email
		body.Password = password
		return transport.WithoutRetry(ctx), "", body, nil
	}
	if st.AccessToken == "" {
		return ctx, "", body, ErrNotAuthenticated
	}
	return ctx, "", body, nil
}

func (s *Session) doMFA(ctx context.Context, path, authorization string, body mfaRequest) (*rest.Response, error) {
	if authorization != "" {
		ctx = withAuthorization(ctx, authorization)
	}
	resp, err := s.api.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(http.MethodPost + " " + path)
	}
	return resp, nil
}

func (s *Session) fetchProfileWith(ctx context.Context, access string) (*User, error) {
	resp, err := s.api.Do(withAuthorization(transport.WithoutRetry(ctx), "Bearer "+access), http.MethodGet, pathProfile, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(http.MethodGet + " " + pathProfile)
	}
	user, err := wire.DecodeUser("profile", resp.Body)
	if err != nil {
		return nil, errors.Join(ErrNotAuthenticated, err)
	}
	return user, nil
}
