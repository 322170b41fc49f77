package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/signin/pkg/httpx"
)

// Config is the process configuration. Keys are flat so that every setting
// maps onto an environment variable of the same name in upper case.
type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	BasePath string // Optional: path prefix of every endpoint (default: none)
	SiteName string // Optional: shown in page titles (default: Sign in)
	Issuer   string // Optional: issuer of session cookies (default: signin)

	DatabaseFile   string // Optional: path to SQLite database file (default: ./signin.db)
	PepperFile     string // Optional: password hashing pepper (default: ./pepper)
	SessionKeyFile string // Optional: HS256 key of the session cookie (default: ./session.key)
	KeysetFile     string // Optional: tink keyset sealing cookies (default: ./cookies.keyset)

	// RedisURL moves sign-in messages server side. Empty keeps them in
	// sealed cookies.
	RedisURL   string
	MessageTTL time.Duration // Optional: lifetime of sign-in messages (default: 15m)

	CookieSecure       bool          // Optional: mark cookies Secure (default: true)
	RememberMeDuration time.Duration // Optional: persistent session lifetime (default: 30 days)

	InvalidSignInRedirectURL string // Optional: where a browser without a sign-in goes
	EnableSignOutPrompt      bool   // Optional (default: true)
	RequireSignOutPrompt     bool   // Optional (default: false)
	PostSignOutAutoRedirect  bool   // Optional (default: false)
	PostSignOutRedirectDelay int    // Optional: seconds before the redirect (default: 0)

	Registration bool   // Optional: first federated login creates an account (default: false)
	TOTPIssuer   string // Optional: account label in authenticator apps (default: signin)

	ResetEnabled     bool          // Optional: password reset flow (default: true)
	ResetCodeTTL     time.Duration // Optional: lifetime of a reset code (default: 15m)
	ResetMaxAttempts int           // Optional: wrong proofs before a reset is burnt (default: 5)

	// TrustProxyHeaders honours X-Forwarded-Proto and X-Forwarded-For.
	// Only enable behind a proxy that overwrites them (default: false).
	TrustProxyHeaders bool

	// Limits are read from RATELIMIT_{STRICT,MODERATE,LENIENT}_{REQUESTS,WINDOW,BURST}.
	Limits httpx.Limits

	Providers []ProviderConfig
}

// ProviderConfig is one OpenID Connect provider, read from
// SIGNIN_PROVIDER_<NAME>_*.
type ProviderConfig struct {
	Name         string
	Caption      string
	Hidden       bool
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Configuration keys.
const (
	KeyEnv                  = "env"
	KeyLogLevel             = "log_level"
	KeyLogFormat            = "log_format"
	KeyPort                 = "port"
	KeyShutdownGracePeriod  = "shutdown_grace_period"
	KeyHousekeepingInterval = "housekeeping_interval"

	KeyBasePath                 = "signin_base_path"
	KeySiteName                 = "signin_site_name"
	KeyIssuer                   = "signin_issuer"
	KeyDatabaseFile             = "signin_database_file"
	KeyPepperFile               = "signin_pepper_file"
	KeySessionKeyFile           = "signin_session_key_file"
	KeyKeysetFile               = "signin_keyset_file"
	KeyRedisURL                 = "signin_redis_url"
	KeyMessageTTL               = "signin_message_ttl"
	KeyCookieSecure             = "signin_cookie_secure"
	KeyRememberMeDuration       = "signin_remember_me_duration"
	KeyInvalidSignInRedirectURL = "signin_invalid_signin_redirect_url"
	KeyEnableSignOutPrompt      = "signin_enable_signout_prompt"
	KeyRequireSignOutPrompt     = "signin_require_signout_prompt"
	KeyPostSignOutAutoRedirect  = "signin_post_signout_auto_redirect"
	KeyPostSignOutRedirectDelay = "signin_post_signout_redirect_delay"
	KeyRegistration             = "signin_registration"
	KeyTOTPIssuer               = "signin_totp_issuer"
	KeyResetEnabled             = "signin_reset_enabled"
	KeyResetCodeTTL             = "signin_reset_code_ttl"
	KeyResetMaxAttempts         = "signin_reset_max_attempts"
	KeyProviders                = "signin_providers"
	KeyTrustProxyHeaders        = "signin_trust_proxy_headers"
)

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyEnv, "dev")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyShutdownGracePeriod, 10*time.Second)
	v.SetDefault(KeyHousekeepingInterval, time.Hour)

	v.SetDefault(KeySiteName, "Sign in")
	v.SetDefault(KeyIssuer, "signin")
	v.SetDefault(KeyDatabaseFile, "signin.db")
	v.SetDefault(KeyPepperFile, "pepper")
	v.SetDefault(KeySessionKeyFile, "session.key")
	v.SetDefault(KeyKeysetFile, "cookies.keyset")
	v.SetDefault(KeyMessageTTL, 15*time.Minute)
	v.SetDefault(KeyCookieSecure, true)
	v.SetDefault(KeyRememberMeDuration, 30*24*time.Hour)
	v.SetDefault(KeyEnableSignOutPrompt, true)
	v.SetDefault(KeyTOTPIssuer, "signin")
	v.SetDefault(KeyResetEnabled, true)
	v.SetDefault(KeyResetCodeTTL, 15*time.Minute)
	v.SetDefault(KeyResetMaxAttempts, 5)
	v.SetDefault(KeyTrustProxyHeaders, false)
}

// NewViper returns a viper instance with defaults and environment lookup.
// A non-empty configFile is read as well; environment values win over it.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// LoadConfig reads Config from v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:                  v.GetString(KeyEnv),
		LogLevel:             v.GetString(KeyLogLevel),
		LogFormat:            v.GetString(KeyLogFormat),
		Port:                 v.GetInt(KeyPort),
		ShutdownGracePeriod:  v.GetDuration(KeyShutdownGracePeriod),
		HousekeepingInterval: v.GetDuration(KeyHousekeepingInterval),

		BasePath: strings.TrimSuffix(v.GetString(KeyBasePath), "/"),
		SiteName: v.GetString(KeySiteName),
		Issuer:   v.GetString(KeyIssuer),

		DatabaseFile:   v.GetString(KeyDatabaseFile),
		PepperFile:     v.GetString(KeyPepperFile),
		SessionKeyFile: v.GetString(KeySessionKeyFile),
		KeysetFile:     v.GetString(KeyKeysetFile),

		RedisURL:   v.GetString(KeyRedisURL),
		MessageTTL: v.GetDuration(KeyMessageTTL),

		CookieSecure:       v.GetBool(KeyCookieSecure),
		RememberMeDuration: v.GetDuration(KeyRememberMeDuration),

		InvalidSignInRedirectURL: v.GetString(KeyInvalidSignInRedirectURL),
		EnableSignOutPrompt:      v.GetBool(KeyEnableSignOutPrompt),
		RequireSignOutPrompt:     v.GetBool(KeyRequireSignOutPrompt),
		PostSignOutAutoRedirect:  v.GetBool(KeyPostSignOutAutoRedirect),
		PostSignOutRedirectDelay: v.GetInt(KeyPostSignOutRedirectDelay),

		Registration: v.GetBool(KeyRegistration),
		TOTPIssuer:   v.GetString(KeyTOTPIssuer),

		ResetEnabled:     v.GetBool(KeyResetEnabled),
		ResetCodeTTL:     v.GetDuration(KeyResetCodeTTL),
		ResetMaxAttempts: v.GetInt(KeyResetMaxAttempts),

		TrustProxyHeaders: v.GetBool(KeyTrustProxyHeaders),
	}

	defaults := httpx.DefaultLimits()
	cfg.Limits = httpx.Limits{
		Strict:   loadLimit(v, "strict", defaults.Strict),
		Moderate: loadLimit(v, "moderate", defaults.Moderate),
		Lenient:  loadLimit(v, "lenient", defaults.Lenient),
	}

	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		cfg.BasePath = "/" + cfg.BasePath
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid %s %d", KeyPort, cfg.Port)
	}

	for _, name := range splitList(v.GetStringSlice(KeyProviders)) {
		p, err := loadProvider(v, name)
		if err != nil {
			return Config{}, err
		}
		cfg.Providers = append(cfg.Providers, p)
	}

	return cfg, nil
}

func loadProvider(v *viper.Viper, name string) (ProviderConfig, error) {
	key := func(field string) string {
		return "signin_provider_" + strings.ToLower(name) + "_" + field
	}

	p := ProviderConfig{
		Name:         name,
		Caption:      v.GetString(key("caption")),
		Hidden:       v.GetBool(key("hidden")),
		Issuer:       v.GetString(key("issuer")),
		ClientID:     v.GetString(key("client_id")),
		ClientSecret: v.GetString(key("client_secret")),
		Scopes:       splitList(v.GetStringSlice(key("scopes"))),
	}
	if p.Issuer == "" || p.ClientID == "" {
		return ProviderConfig{}, errors.New("provider " + name + " needs " +
			strings.ToUpper(key("issuer")) + " and " + strings.ToUpper(key("client_id")))
	}
	return p, nil
}

// loadLimit overrides def with positive values only.
func loadLimit(v *viper.Viper, profile string, def httpx.RateLimitConfig) httpx.RateLimitConfig {
	prefix := "ratelimit_" + profile + "_"
	if n := v.GetInt(prefix + "requests"); n > 0 {
		def.RequestsPerWindow = n
	}
	if d := v.GetDuration(prefix + "window"); d > 0 {
		def.Window = d
	}
	if n := v.GetInt(prefix + "burst"); n > 0 {
		def.Burst = n
	}
	return def
}

// splitList accepts both list values and comma separated strings.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
