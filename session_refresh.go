package telecare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/wire"
	"github.com/MrEthical07/telecare/jwt"
	"github.com/MrEthical07/telecare/tokenstore"
	"github.com/MrEthical07/telecare/transport"
)

const (
	opRefresh = "refresh"
	opRestore = "restore"
)

// Refresh exchanges the stored refresh token for a new pair. Any failure
// clears both tokens and routes to login; a missing refresh token fails
// without touching the network.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.refreshAccess(ctx)
	return err
}

// refreshAccess is the Refresher behind the auth transport.
func (s *Session) refreshAccess(ctx context.Context) (string, error) {
	refresh := ""
	pair, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("reading token store for refresh failed", zap.Error(err))
		refresh = s.State().RefreshToken
	} else {
		refresh = pair.Refresh
	}

	if refresh == "" {
		s.metrics.Inc(internalmetrics.RefreshMissingToken)
		s.expire(ctx, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	start := time.Now()
	resp, err := s.api.Do(transport.WithoutRetry(ctx), http.MethodPost, pathRefresh, nil, refreshRequest{RefreshToken: refresh})
	s.metrics.Observe(internalmetrics.RefreshLatency, time.Since(start))
	if err != nil {
		s.metrics.Inc(internalmetrics.RefreshFailure)
		s.expire(ctx, err)
		return "", err
	}
	if !resp.OK() {
		apiErr := resp.Err(http.MethodPost + " " + pathRefresh)
		s.metrics.Inc(internalmetrics.RefreshFailure)
		s.expire(ctx, apiErr)
		return "", fmt.Errorf("%w: %w", ErrRefreshRejected, apiErr)
	}

	decoded, err := wire.DecodeAuth("refresh", resp.Body)
	if err != nil {
		s.metrics.Inc(internalmetrics.ParseFailure)
		s.metrics.Inc(internalmetrics.RefreshFailure)
		s.expire(ctx, err)
		return "", fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	}

	next := tokenstore.Pair{Access: decoded.Tokens.AccessToken, Refresh: decoded.Tokens.RefreshToken}
	if next.Refresh == "" {
		next.Refresh = refresh
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.persistFailed(ctx, opRefresh, err)
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.dispatch(action{
		kind:   actTokensUpdated,
		tokens: wire.Tokens{AccessToken: next.Access, RefreshToken: next.Refresh},
		user:   decoded.User,
	})
	s.metrics.Inc(internalmetrics.RefreshSuccess)
	return next.Access, nil
}

// expire drops both token copies and routes to login.
func (s *Session) expire(ctx context.Context, cause error) {
	s.logger.Info("session expired", zap.Error(cause))
	s.clearStore(ctx, "refresh failed")
	msg := s.cfg.Messages.SessionExpired
	s.dispatch(action{kind: actSignedOut, message: msg})
	s.notify(ctx, NotifyError, opRefresh, msg)
	s.navigate(ctx, Intent{Route: s.cfg.Routes.Login, Message: msg, Reason: ReasonSessionExpired})
}

// Restore picks up tokens persisted by an earlier run and loads the
// profile. With an empty store it returns ErrNotAuthenticated and changes
// nothing. A rejected profile request ends with the store cleared; a
// transport failure keeps the tokens so a later Restore can succeed.
func (s *Session) Restore(ctx context.Context) (*User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	pair, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if pair.Empty() {
		return nil, ErrNotAuthenticated
	}

	s.dispatch(action{
		kind:   actTokensUpdated,
		tokens: wire.Tokens{AccessToken: pair.Access, RefreshToken: pair.Refresh},
	})

	user, err := s.fetchProfile(ctx)
	if err != nil {
		s.metrics.Inc(internalmetrics.RestoreFailure)
		if errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer) {
			s.dispatch(action{kind: actErrorRaised, message: s.cfg.Messages.RequestFailed})
			return nil, err
		}
		if s.State().AccessToken != "" {
			s.clearStore(ctx, "restore rejected")
			s.dispatch(action{kind: actSignedOut})
		}
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	next := s.dispatch(action{kind: actUserLoaded, user: user})
	if !next.Authenticated() {
		s.metrics.Inc(internalmetrics.RestoreFailure)
		return nil, ErrNotAuthenticated
	}
	s.metrics.Inc(internalmetrics.RestoreSuccess)
	s.navigate(ctx, Intent{
		Route:  s.dashboard(next.User),
		Email:  next.User.Email,
		Reason: ReasonAuthenticated,
	})
	return next.User.Clone(), nil
}

// EnsureFresh refreshes ahead of expiry when the access token's exp claim
// falls within Config.Refresh.Leeway. Tokens that cannot be decoded, or
// carry no exp, are left to the 401 path.
func (s *Session) EnsureFresh(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pair, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if pair.Access == "" {
		if pair.Refresh == "" {
			return ErrNotAuthenticated
		}
		_, err := s.refreshAccess(ctx)
		return err
	}

	claims, err := jwt.Inspect(pair.Access)
	if err != nil {
		s.logger.Debug("access token not inspectable", zap.Error(err))
		return nil
	}
	if !claims.ExpiresWithin(now(), s.cfg.Refresh.Leeway) {
		return nil
	}
	_, err = s.refreshAccess(ctx)
	return err
}

// AccessClaims decodes the current access token without verifying it.
func (s *Session) AccessClaims(ctx context.Context) (*jwt.Claims, error) {
	pair, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if pair.Access == "" {
		return nil, ErrNotAuthenticated
	}
	return jwt.Inspect(pair.Access)
}
