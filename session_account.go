package telecare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/wire"
	"github.com/MrEthical07/telecare/transport"
)

const (
	opProfile            = "profile"
	opUpdateProfile      = "update_profile"
	opVerifyEmail        = "verify_email"
	opResendVerification = "resend_verification"
	opForgotPassword     = "forgot_password"
	opResetPassword      = "reset_password"
	opChangePassword     = "change_password"
)

func (s *Session) fetchProfile(ctx context.Context) (*User, error) {
	resp, err := s.api.Do(ctx, http.MethodGet, pathProfile, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(http.MethodGet + " " + pathProfile)
	}
	user, err := wire.DecodeUser("profile", resp.Body)
	if err != nil {
		s.metrics.Inc(internalmetrics.ParseFailure)
		return nil, err
	}
	return user, nil
}

// Profile reloads the current user from the backend and replaces it in the
// state.
func (s *Session) Profile(ctx context.Context) (*User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.State().AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.raise(ctx, opProfile, err)
		return nil, err
	}
	next := s.dispatch(action{kind: actUserLoaded, user: user})
	return next.User.Clone(), nil
}

// UpdateProfile sends the changed fields and replaces the user with the
// backend's copy.
func (s *Session) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.State().AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	if update == (ProfileUpdate{}) {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	resp, err := s.api.Do(ctx, http.MethodPatch, pathProfile, nil, update)
	if err != nil {
		s.raise(ctx, opUpdateProfile, err)
		return nil, err
	}
	if !resp.OK() {
		apiErr := resp.Err(http.MethodPatch + " " + pathProfile)
		s.raise(ctx, opUpdateProfile, apiErr)
		return nil, apiErr
	}

	user, err := wire.DecodeUser("profile", resp.Body)
	if err != nil {
		user, err = s.fetchProfile(ctx)
		if err != nil {
			s.raise(ctx, opUpdateProfile, err)
			return nil, err
		}
	}
	next := s.dispatch(action{kind: actUserLoaded, user: user})
	s.metrics.Inc(internalmetrics.ProfileUpdated)
	s.notify(ctx, NotifySuccess, opUpdateProfile, firstNonEmpty(wire.DecodeMessage(resp.Body), "Profile updated"))
	return next.User.Clone(), nil
}

// VerifyEmail confirms an email address with the token from the
// verification mail.
func (s *Session) VerifyEmail(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: token is required", ErrValidation)
	}
	msg, err := s.simple(ctx, opVerifyEmail, pathVerifyEmail, map[string]string{"token": token}, false, "Email verified")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.EmailVerified)
	if u := s.User(); u != nil {
		u.EmailVerified = true
		s.dispatch(action{kind: actUserLoaded, user: u})
	}
	return msg, nil
}

// ResendVerification asks the backend to send another verification mail.
func (s *Session) ResendVerification(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	return s.simple(ctx, opResendVerification, pathResendVerification, map[string]string{"email": email}, false, "Verification email sent")
}

// ForgotPassword starts a password reset.
func (s *Session) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	msg, err := s.simple(ctx, opForgotPassword, pathForgotPassword, map[string]string{"email": email}, false, "Password reset instructions sent")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.PasswordResetRequested)
	return msg, nil
}

// ResetPassword sets a new password with a reset token and routes to login.
func (s *Session) ResetPassword(ctx context.Context, token, password string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return "", fmt.Errorf("%w: token and password are required", ErrValidation)
	}
	msg, err := s.simple(ctx, opResetPassword, pathResetPassword, map[string]string{
		"token":    token,
		"password": password,
	}, false, "Password has been reset")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.PasswordResetConfirmed)
	s.navigate(ctx, Intent{Route: s.cfg.Routes.Login, Message: msg, Reason: ReasonPasswordReset})
	return msg, nil
}

// ChangePassword changes the password of the authenticated user.
func (s *Session) ChangePassword(ctx context.Context, current, next string) (string, error) {
	if current == "" || next == "" {
		return "", fmt.Errorf("%w: current and new password are required", ErrValidation)
	}
	if s.State().AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	msg, err := s.simple(ctx, opChangePassword, pathChangePassword, map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, true, "Password changed")
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.PasswordChanged)
	return msg, nil
}

// simple posts body and returns the backend's message or fallback.
// retry=false marks the request as not eligible for refresh-and-retry.
func (s *Session) simple(ctx context.Context, op, path string, body any, retry bool, fallback string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if !retry {
		ctx = transport.WithoutRetry(ctx)
	}
	resp, err := s.api.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		s.raise(ctx, op, err)
		return "", err
	}
	if !resp.OK() {
		apiErr := resp.Err(http.MethodPost + " " + path)
		s.raise(ctx, op, apiErr)
		return "", apiErr
	}
	msg := firstNonEmpty(wire.DecodeMessage(resp.Body), fallback)
	s.notify(ctx, NotifySuccess, op, msg)
	return msg, nil
}

// raise records a recoverable failure: the phase is kept and the error
// field is set.
func (s *Session) raise(ctx context.Context, op string, err error) {
	msg := s.cfg.Messages.RequestFailed
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	s.logger.Info("request failed", zap.String("operation", op), zap.Error(err))
	s.dispatch(action{kind: actErrorRaised, message: msg})
	s.notify(ctx, NotifyError, op, msg)
}
