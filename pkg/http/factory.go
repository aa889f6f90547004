package http

import (
	"github.com/milan604/feedclient/pkg/config"
	"github.com/milan604/feedclient/pkg/logger"
)

// NewClientFromConfig builds a Client from loaded settings. Extra options are applied last.
func NewClientFromConfig(log logger.LogManager, s config.ClientSettings, store TokenStore, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithBaseURL(s.BaseURL),
		WithTimeout(s.Timeout),
		WithUploadTimeout(s.UploadTimeout),
		WithLogger(log),
		WithSession(store),
	}
	if s.Cookies {
		base = append(base, WithCookieJar())
	}
	if s.RateLimitRPS > 0 {
		base = append(base, WithRateLimit(s.RateLimitRPS, s.RateLimitBurst))
	}
	if s.BreakerEnabled {
		base = append(base, WithCircuitBreaker(s.BreakerFailures, s.BreakerCooldown))
	}
	if s.RefreshBuffer > 0 {
		base = append(base, WithProactiveRefresh(s.RefreshBuffer))
	}
	return NewClient(append(base, opts...)...)
}
