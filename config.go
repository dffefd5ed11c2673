package telecare

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config drives a Session. Start from DefaultConfig and override fields.
type Config struct {
	BaseURL       string              `mapstructure:"base_url"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Refresh       RefreshConfig       `mapstructure:"refresh"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Routes        RoutesConfig        `mapstructure:"routes"`
	Messages      MessagesConfig      `mapstructure:"messages"`
	Compat        CompatConfig        `mapstructure:"compat"`
}

// HTTPConfig controls the outbound client.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// StorageConfig selects the token store used by the CLI and by Build when
// no store is injected.
type StorageConfig struct {
	// Backend is "memory", "file" or "redis".
	Backend   string        `mapstructure:"backend"`
	Path      string        `mapstructure:"path"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// RefreshConfig controls token refresh.
type RefreshConfig struct {
	// Leeway is how close to expiry EnsureFresh refreshes proactively.
	Leeway time.Duration `mapstructure:"leeway"`
	// Coalesce makes concurrent 401s share one refresh call.
	Coalesce bool `mapstructure:"coalesce"`
}

// BreakerConfig controls the optional circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig controls the optional client-side limiter.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// NotificationsConfig controls notification delivery.
type NotificationsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Async      bool `mapstructure:"async"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls metric collection.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// RoutesConfig names the presentation routes carried by intents.
type RoutesConfig struct {
	Login            string `mapstructure:"login"`
	DoctorDashboard  string `mapstructure:"doctor_dashboard"`
	PatientDashboard string `mapstructure:"patient_dashboard"`
	MFAVerify        string `mapstructure:"mfa_verify"`
	MFASetup         string `mapstructure:"mfa_setup"`
}

// MessagesConfig holds the user-facing defaults used when the backend sends
// no message.
type MessagesConfig struct {
	MissingCredentials string `mapstructure:"missing_credentials"`
	InvalidCredentials string `mapstructure:"invalid_credentials"`
	LoginFailed        string `mapstructure:"login_failed"`
	LoginSuccess       string `mapstructure:"login_success"`
	MFARequired        string `mapstructure:"mfa_required"`
	MFASetupRequired   string `mapstructure:"mfa_setup_required"`
	MFAInvalid         string `mapstructure:"mfa_invalid"`
	RegisterSuccess    string `mapstructure:"register_success"`
	RegisterFailed     string `mapstructure:"register_failed"`
	LogoutSuccess      string `mapstructure:"logout_success"`
	SessionExpired     string `mapstructure:"session_expired"`
	StorageFailed      string `mapstructure:"storage_failed"`
	RequestFailed      string `mapstructure:"request_failed"`
}

// CompatConfig gates behaviour inferred from loosely specified backend
// responses.
type CompatConfig struct {
	// InferMFASetupFrom403 treats a 403 login response whose message
	// mentions MFA setup as a setup requirement.
	InferMFASetupFrom403 bool     `mapstructure:"infer_mfa_setup_from_403"`
	MFASetupKeywords     []string `mapstructure:"mfa_setup_keywords"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000/api",
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "telecare-client",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Prefix:  "telecare",
		},
		Refresh: RefreshConfig{
			Leeway:   30 * time.Second,
			Coalesce: false,
		},
		Breaker: BreakerConfig{
			Enabled:     false,
			MaxFailures: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     10,
			Burst:   20,
		},
		Notifications: NotificationsConfig{
			Enabled:    true,
			Async:      false,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Routes: RoutesConfig{
			Login:            "/login",
			DoctorDashboard:  "/doctor/dashboard",
			PatientDashboard: "/patient/dashboard",
			MFAVerify:        "/mfa/verify",
			MFASetup:         "/mfa/setup",
		},
		Messages: MessagesConfig{
			MissingCredentials: "Email and password are required",
			InvalidCredentials: "Invalid email or password",
			LoginFailed:        "Login failed",
			LoginSuccess:       "Login successful",
			MFARequired:        "Enter the verification code from your authenticator app",
			MFASetupRequired:   "Multi-factor authentication must be set up before you can continue",
			MFAInvalid:         "Invalid verification code",
			RegisterSuccess:    "Registration successful. Please log in.",
			RegisterFailed:     "Registration failed",
			LogoutSuccess:      "You have been logged out",
			SessionExpired:     "Your session has expired. Please log in again.",
			StorageFailed:      "Could not save your session",
			RequestFailed:      "Request failed",
		},
		Compat: CompatConfig{
			InferMFASetupFrom403: true,
			MFASetupKeywords:     []string{"mfa setup", "setup mfa", "set up mfa", "mfa is required", "mfa required"},
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Compat.MFASetupKeywords = append([]string(nil), cfg.Compat.MFASetupKeywords...)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BaseURL must be an absolute http(s) URL, got %q", c.BaseURL)
	}

	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP Timeout must be >= 0")
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("Storage Path is required for the file backend")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("Storage RedisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported Storage Backend %q", c.Storage.Backend)
	}
	if c.Storage.TTL < 0 {
		return errors.New("Storage TTL must be >= 0")
	}

	if c.Refresh.Leeway < 0 {
		return errors.New("Refresh Leeway must be >= 0")
	}

	if c.Breaker.Enabled {
		if c.Breaker.MaxFailures == 0 {
			return errors.New("Breaker MaxFailures must be > 0")
		}
		if c.Breaker.Timeout <= 0 {
			return errors.New("Breaker Timeout must be > 0")
		}
		if c.Breaker.Interval < 0 {
			return errors.New("Breaker Interval must be >= 0")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return errors.New("RateLimit RPS must be > 0")
		}
		if c.RateLimit.Burst <= 0 {
			return errors.New("RateLimit Burst must be > 0")
		}
	}

	if c.Notifications.Enabled && c.Notifications.Async && c.Notifications.BufferSize <= 0 {
		return errors.New("Notifications BufferSize must be > 0 when Async is true")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Routes.Login == "" || c.Routes.DoctorDashboard == "" || c.Routes.PatientDashboard == "" ||
		c.Routes.MFAVerify == "" || c.Routes.MFASetup == "" {
		return errors.New("all Routes must be set")
	}

	if c.Compat.InferMFASetupFrom403 && len(c.Compat.MFASetupKeywords) == 0 {
		return errors.New("Compat MFASetupKeywords must be set when InferMFASetupFrom403 is true")
	}

	return nil
}
