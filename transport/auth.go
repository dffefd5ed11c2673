package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/telecare/tokenstore"
)

// Refresher obtains a new access token. Implementations own the failure
// path: on error they have already cleared credentials and redirected the
// user.
type Refresher interface {
	RefreshAccess(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) RefreshAccess(ctx context.Context) (string, error) {
	return f(ctx)
}

// AuthOption configures an Auth transport.
type AuthOption func(*Auth)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *zap.Logger) AuthOption {
	return func(a *Auth) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCoalescing makes concurrent 401s share a single refresh call.
func WithCoalescing(enabled bool) AuthOption {
	return func(a *Auth) {
		if enabled {
			a.group = &singleflight.Group{}
		} else {
			a.group = nil
		}
	}
}

// WithRetryHook is called once for every replayed request, with the status
// of the replay or 0 when the replay failed at the transport level.
func WithRetryHook(fn func(status int)) AuthOption {
	return func(a *Auth) {
		a.onRetry = fn
	}
}

// WithCoalescedHook is called when a refresh result was shared with another
// caller.
func WithCoalescedHook(fn func()) AuthOption {
	return func(a *Auth) {
		a.onShared = fn
	}
}

// Auth is the bearer-token and single refresh-retry RoundTripper.
type Auth struct {
	base      http.RoundTripper
	store     tokenstore.Store
	refresher Refresher
	logger    *zap.Logger
	group     *singleflight.Group
	onRetry   func(status int)
	onShared  func()
}

// NewAuth wraps base. A nil base uses http.DefaultTransport; a nil refresher
// disables the retry path.
func NewAuth(base http.RoundTripper, store tokenstore.Store, refresher Refresher, opts ...AuthOption) *Auth {
	if base == nil {
		base = http.DefaultTransport
	}
	a := &Auth{
		base:      base,
		store:     store,
		refresher: refresher,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Auth) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first := req.Clone(ctx)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		first.Body = body
		first.GetBody = getBody
	}

	explicit := req.Header.Get("Authorization") != ""
	if !explicit {
		if token := a.accessToken(ctx); token != "" {
			first.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := a.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if explicit || a.refresher == nil || RetryDisabled(ctx) || Retried(ctx) {
		return resp, nil
	}

	token, err := a.refresh(ctx)
	if err != nil {
		a.logger.Info("refresh after 401 failed",
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return resp, nil
	}

	replay := req.Clone(markRetried(ctx))
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return resp, nil
		}
		replay.Body = body
		replay.GetBody = getBody
	}
	replay.Header.Set("Authorization", "Bearer "+token)

	drain(resp)

	out, err := a.base.RoundTrip(replay)
	if a.onRetry != nil {
		status := 0
		if out != nil {
			status = out.StatusCode
		}
		a.onRetry(status)
	}
	return out, err
}

func (a *Auth) accessToken(ctx context.Context) string {
	if a.store == nil {
		return ""
	}
	pair, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Warn("token store unavailable, sending request without credentials", zap.Error(err))
		return ""
	}
	return pair.Access
}

func (a *Auth) refresh(ctx context.Context) (string, error) {
	if a.group == nil {
		return a.refresher.RefreshAccess(ctx)
	}
	// The shared call outlives any single caller; each waiter still honours
	// its own context.
	ch := a.group.DoChan("refresh", func() (any, error) {
		return a.refresher.RefreshAccess(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared && a.onShared != nil {
			a.onShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// replayableBody returns a body factory, buffering req.Body when the request
// does not already provide GetBody. The original body is always closed.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
