package telecare

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/telecare/consultation"
	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/notify"
	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/prescription"
	"github.com/MrEthical07/telecare/tokenstore"
	"github.com/MrEthical07/telecare/transport"
)

// Builder assembles a Session. A Builder can be used once.
type Builder struct {
	config Config

	store     tokenstore.Store
	redis     redis.UniversalClient
	navigator Navigator
	sink      NotificationSink
	logger    *zap.Logger
	base      http.RoundTripper

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL overrides Config.BaseURL.
func (b *Builder) WithBaseURL(url string) *Builder {
	b.config.BaseURL = url
	return b
}

// WithStore injects the token store. It takes precedence over
// Config.Storage and WithRedis.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis backs the token store with client when Config.Storage.Backend
// is "redis" and no store was injected.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNavigator receives routing intents. Without one they are dropped.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithNotificationSink receives user-facing notifications.
func (b *Builder) WithNotificationSink(sink NotificationSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the logger. The default is zap.NewNop.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithTransport sets the RoundTripper beneath the session's own chain.
// Tests use it to point at an in-process server.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles request and refresh latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Session in the anonymous
// phase. It performs no I/O; call Restore to pick up persisted tokens.
func (b *Builder) Build() (*Session, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, closer, err := b.resolveStore(cfg)
	if err != nil {
		return nil, err
	}

	navigator := b.navigator
	if navigator == nil {
		navigator = noopNavigator{}
	}

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		navigator:   navigator,
		metrics:     internalmetrics.New(internalmetrics.Config(cfg.Metrics)),
		subscribers: make(map[uint64]func(State)),
		state:       State{Phase: PhaseAnonymous},
		closeStore:  closer,
	}
	s.notifier = notify.NewDispatcher(notify.Config{
		Enabled:    cfg.Notifications.Enabled,
		Async:      cfg.Notifications.Async,
		BufferSize: cfg.Notifications.BufferSize,
		DropIfFull: cfg.Notifications.DropIfFull,
	}, b.sink)

	rt := b.roundTripper(cfg, logger, s)
	s.httpClient = &http.Client{Transport: rt, Timeout: cfg.HTTP.Timeout}

	api, err := rest.New(cfg.BaseURL, s.httpClient)
	if err != nil {
		return nil, err
	}
	s.api = api
	s.consultations = consultation.New(api)
	s.prescriptions = prescription.New(api)

	b.built = true
	return s, nil
}

// resolveStore returns the token store and, when the session created the
// underlying connection itself, a function that releases it.
func (b *Builder) resolveStore(cfg Config) (tokenstore.Store, func() error, error) {
	if b.store != nil {
		return b.store, nil, nil
	}
	switch cfg.Storage.Backend {
	case "file":
		return tokenstore.NewFile(cfg.Storage.Path), nil, nil
	case "redis":
		if b.redis != nil {
			return tokenstore.NewRedis(b.redis, cfg.Storage.Prefix, cfg.Storage.TTL), nil, nil
		}
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		return tokenstore.NewRedis(client, cfg.Storage.Prefix, cfg.Storage.TTL), client.Close, nil
	case "memory":
		return tokenstore.NewMemory(), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported Storage Backend %q", cfg.Storage.Backend)
}

// roundTripper stacks, from the outside in: auth, request id, timing,
// breaker, rate limit, base.
func (b *Builder) roundTripper(cfg Config, logger *zap.Logger, s *Session) http.RoundTripper {
	rt := b.base
	if rt == nil {
		rt = http.DefaultTransport
	}
	if cfg.HTTP.UserAgent != "" {
		rt = userAgent(rt, cfg.HTTP.UserAgent)
	}
	if cfg.RateLimit.Enabled {
		rt = transport.RateLimit(rt, rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst))
	}
	if cfg.Breaker.Enabled {
		rt = transport.Breaker(rt, transport.BreakerSettings{
			Name:        "telecare",
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			Logger:      logger,
		})
		rt = countCircuitOpen(rt, s.metrics)
	}
	if s.metrics.LatencyEnabled() {
		rt = transport.Timing(rt, func(d time.Duration) {
			s.metrics.Observe(internalmetrics.RequestLatency, d)
		})
	}
	rt = transport.RequestID(rt)

	return transport.NewAuth(rt, s.store, transport.RefresherFunc(s.refreshAccess),
		transport.WithLogger(logger),
		transport.WithCoalescing(cfg.Refresh.Coalesce),
		transport.WithRetryHook(func(status int) {
			s.metrics.Inc(internalmetrics.TransportRetry)
			if status == http.StatusUnauthorized {
				s.metrics.Inc(internalmetrics.TransportRetryUnauthorized)
			}
		}),
		transport.WithCoalescedHook(func() {
			s.metrics.Inc(internalmetrics.RefreshCoalesced)
		}),
	)
}

func userAgent(base http.RoundTripper, ua string) http.RoundTripper {
	return transport.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("User-Agent") != "" {
			return base.RoundTrip(req)
		}
		out := req.Clone(req.Context())
		out.Header.Set("User-Agent", ua)
		return base.RoundTrip(out)
	})
}

func countCircuitOpen(base http.RoundTripper, m *internalmetrics.Metrics) http.RoundTripper {
	return transport.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := base.RoundTrip(req)
		if errors.Is(err, transport.ErrCircuitOpen) {
			m.Inc(internalmetrics.CircuitOpen)
		}
		return resp, err
	})
}
