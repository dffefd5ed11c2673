package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestIDHeader is set on every outgoing request that lacks it.
const RequestIDHeader = "X-Request-ID"

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit open")

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func orDefault(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		return http.DefaultTransport
	}
	return base
}

// RequestID tags requests with a random X-Request-ID.
func RequestID(base http.RoundTripper) http.RoundTripper {
	base = orDefault(base)
	return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) != "" {
			return base.RoundTrip(req)
		}
		out := req.Clone(req.Context())
		out.Header.Set(RequestIDHeader, uuid.NewString())
		return base.RoundTrip(out)
	})
}

// Timing reports the wall time of each round trip to observe.
func Timing(base http.RoundTripper, observe func(time.Duration)) http.RoundTripper {
	base = orDefault(base)
	if observe == nil {
		return base
	}
	return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := base.RoundTrip(req)
		observe(time.Since(start))
		return resp, err
	})
}

// RateLimit blocks each request until limiter admits it or the request
// context ends.
func RateLimit(base http.RoundTripper, limiter *rate.Limiter) http.RoundTripper {
	base = orDefault(base)
	if limiter == nil {
		return base
	}
	return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		return base.RoundTrip(req)
	})
}

// BreakerSettings configures Breaker.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
	Logger      *zap.Logger
}

type serverFailure struct {
	resp *http.Response
}

func (serverFailure) Error() string { return "server error" }

// Breaker counts transport errors and 5xx responses as failures. 5xx
// responses are still returned to the caller as is.
func Breaker(base http.RoundTripper, s BreakerSettings) http.RoundTripper {
	base = orDefault(base)
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.Name == "" {
		s.Name = "telecare"
	}
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		out, err := cb.Execute(func() (interface{}, error) {
			resp, err := base.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 {
				return nil, serverFailure{resp: resp}
			}
			return resp, nil
		})

		var sf serverFailure
		switch {
		case errors.As(err, &sf):
			return sf.resp, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		case err != nil:
			return nil, err
		}
		return out.(*http.Response), nil
	})
}
