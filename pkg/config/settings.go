package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultBaseURL is the production API used when nothing else is configured.
const DefaultBaseURL = "https://backend-v2-1vxq.onrender.com/api"

const (
	KeyAPIBaseURL       = "api.base_url"
	KeyAPITimeout       = "api.timeout"
	KeyAPIUploadTimeout = "api.upload_timeout"
	KeyAPICookies       = "api.cookies"
	KeyUploadMaxBytes   = "upload.max_bytes"
	KeySessionBackend   = "session.backend"
	KeySessionPath      = "session.path"
	KeySessionRedisAddr = "session.redis_addr"
	KeySessionRedisKey  = "session.redis_prefix"
	KeySessionSealKey   = "session.encryption_key"
	KeyLogLevel         = "log.level"
	KeyLogEncoding      = "log.encoding"
	KeyTracingEnabled   = "tracing.enabled"
	KeyTracingEndpoint  = "tracing.endpoint"
	KeyRateLimitRPS     = "client.rate_limit_rps"
	KeyRateLimitBurst   = "client.rate_limit_burst"
	KeyRefreshBuffer    = "client.refresh_buffer"
	KeyBreakerEnabled   = "breaker.enabled"
	KeyBreakerFailures  = "breaker.failures"
	KeyBreakerCooldown  = "breaker.cooldown"
)

// Session storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ClientSettings is the typed view over the keys above.
type ClientSettings struct {
	BaseURL        string
	Timeout        time.Duration
	UploadTimeout  time.Duration
	Cookies        bool
	MaxUploadBytes int64

	SessionBackend string
	SessionPath    string
	RedisAddr      string
	RedisPrefix    string
	SealKey        []byte

	LogLevel    string
	LogEncoding string

	TracingEnabled  bool
	TracingEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int
	RefreshBuffer  time.Duration

	BreakerEnabled  bool
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// ClientDefaults returns the default value of every client key.
func ClientDefaults() map[string]any {
	return map[string]any{
		KeyAPIBaseURL:       DefaultBaseURL,
		KeyAPITimeout:       30 * time.Second,
		KeyAPIUploadTimeout: 120 * time.Second,
		KeyAPICookies:       false,
		KeyUploadMaxBytes:   int64(100 << 20),
		KeySessionBackend:   BackendSQLite,
		KeySessionRedisKey:  "feedclient:session:",
		KeyLogLevel:         "info",
		KeyLogEncoding:      "console",
		KeyTracingEnabled:   false,
		KeyRateLimitRPS:     0.0,
		KeyRateLimitBurst:   1,
		KeyRefreshBuffer:    time.Duration(0),
		KeyBreakerEnabled:   false,
		KeyBreakerFailures:  5,
		KeyBreakerCooldown:  30 * time.Second,
	}
}

// SensitiveKeys lists keys masked by MaskedSettings.
func SensitiveKeys() []string {
	return []string{KeySessionSealKey}
}

// LoadClientSettings reads and validates ClientSettings from cfg.
func LoadClientSettings(cfg *Config) (ClientSettings, error) {
	s := ClientSettings{
		BaseURL:         strings.TrimRight(cfg.GetStringD(KeyAPIBaseURL, DefaultBaseURL), "/"),
		Timeout:         cfg.GetDurationD(KeyAPITimeout, 30*time.Second),
		UploadTimeout:   cfg.GetDurationD(KeyAPIUploadTimeout, 120*time.Second),
		Cookies:         cfg.GetBoolD(KeyAPICookies, false),
		MaxUploadBytes:  cfg.GetInt64D(KeyUploadMaxBytes, 100<<20),
		SessionBackend:  strings.ToLower(cfg.GetStringD(KeySessionBackend, BackendSQLite)),
		SessionPath:     cfg.GetString(KeySessionPath),
		RedisAddr:       cfg.GetString(KeySessionRedisAddr),
		RedisPrefix:     cfg.GetStringD(KeySessionRedisKey, "feedclient:session:"),
		LogLevel:        cfg.GetStringD(KeyLogLevel, "info"),
		LogEncoding:     cfg.GetStringD(KeyLogEncoding, "console"),
		TracingEnabled:  cfg.GetBoolD(KeyTracingEnabled, false),
		TracingEndpoint: cfg.GetString(KeyTracingEndpoint),
		RateLimitRPS:    cfg.GetFloat64D(KeyRateLimitRPS, 0),
		RateLimitBurst:  cfg.GetIntD(KeyRateLimitBurst, 1),
		RefreshBuffer:   cfg.GetDurationD(KeyRefreshBuffer, 0),
		BreakerEnabled:  cfg.GetBoolD(KeyBreakerEnabled, false),
		BreakerFailures: uint32(cfg.GetIntD(KeyBreakerFailures, 5)),
		BreakerCooldown: cfg.GetDurationD(KeyBreakerCooldown, 30*time.Second),
	}

	if key := cfg.GetString(KeySessionSealKey); key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil {
			return s, fmt.Errorf("%s: not hex: %w", KeySessionSealKey, err)
		}
		if len(raw) != 32 {
			return s, fmt.Errorf("%s: want 32 bytes, got %d", KeySessionSealKey, len(raw))
		}
		s.SealKey = raw
	}

	return s, s.Validate()
}

// Validate checks ranges and enum values.
func (s ClientSettings) Validate() error {
	var problems []string
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		problems = append(problems, fmt.Sprintf("%s must be an http(s) URL", KeyAPIBaseURL))
	}
	if s.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive", KeyAPITimeout))
	}
	if s.UploadTimeout < s.Timeout {
		problems = append(problems, fmt.Sprintf("%s must be at least %s", KeyAPIUploadTimeout, KeyAPITimeout))
	}
	if s.MaxUploadBytes <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive", KeyUploadMaxBytes))
	}
	switch s.SessionBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if s.RedisAddr == "" {
			problems = append(problems, fmt.Sprintf("%s is required for the redis backend", KeySessionRedisAddr))
		}
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown backend %q", KeySessionBackend, s.SessionBackend))
	}
	if s.RateLimitRPS < 0 {
		problems = append(problems, fmt.Sprintf("%s must not be negative", KeyRateLimitRPS))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}
