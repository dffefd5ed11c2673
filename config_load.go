package telecare

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TELECARE_BASE_URL or
// TELECARE_REFRESH_LEEWAY.
const EnvPrefix = "TELECARE"

// LoadConfig reads path (YAML, JSON or TOML by extension) over the defaults
// and applies TELECARE_* environment overrides. An empty path loads defaults
// and environment only. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("base_url", d.BaseURL)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)
	v.SetDefault("storage.redis_db", d.Storage.RedisDB)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.ttl", d.Storage.TTL)

	v.SetDefault("refresh.leeway", d.Refresh.Leeway)
	v.SetDefault("refresh.coalesce", d.Refresh.Coalesce)

	v.SetDefault("breaker.enabled", d.Breaker.Enabled)
	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.interval", d.Breaker.Interval)
	v.SetDefault("breaker.timeout", d.Breaker.Timeout)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.rps", d.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.async", d.Notifications.Async)
	v.SetDefault("notifications.buffer_size", d.Notifications.BufferSize)
	v.SetDefault("notifications.drop_if_full", d.Notifications.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("routes.login", d.Routes.Login)
	v.SetDefault("routes.doctor_dashboard", d.Routes.DoctorDashboard)
	v.SetDefault("routes.patient_dashboard", d.Routes.PatientDashboard)
	v.SetDefault("routes.mfa_verify", d.Routes.MFAVerify)
	v.SetDefault("routes.mfa_setup", d.Routes.MFASetup)

	v.SetDefault("messages.missing_credentials", d.Messages.MissingCredentials)
	v.SetDefault("messages.invalid_credentials", d.Messages.InvalidCredentials)
	v.SetDefault("messages.login_failed", d.Messages.LoginFailed)
	v.SetDefault("messages.login_success", d.Messages.LoginSuccess)
	v.SetDefault("messages.mfa_required", d.Messages.MFARequired)
	v.SetDefault("messages.mfa_setup_required", d.Messages.MFASetupRequired)
	v.SetDefault("messages.mfa_invalid", d.Messages.MFAInvalid)
	v.SetDefault("messages.register_success", d.Messages.RegisterSuccess)
	v.SetDefault("messages.register_failed", d.Messages.RegisterFailed)
	v.SetDefault("messages.logout_success", d.Messages.LogoutSuccess)
	v.SetDefault("messages.session_expired", d.Messages.SessionExpired)
	v.SetDefault("messages.storage_failed", d.Messages.StorageFailed)
	v.SetDefault("messages.request_failed", d.Messages.RequestFailed)

	v.SetDefault("compat.infer_mfa_setup_from_403", d.Compat.InferMFASetupFrom403)
	v.SetDefault("compat.mfa_setup_keywords", d.Compat.MFASetupKeywords)
}
