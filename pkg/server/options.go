package server

import (
	"net"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/config"
	"github.com/milan604/feedclient/pkg/logger"
	middleware "github.com/milan604/feedclient/pkg/server/middleware"
	"github.com/milan604/feedclient/pkg/validator"
)

// StartOption configures Start behavior (functional options)
type StartOption func(*startOptions)

type startOptions struct {
	cfg    *config.Config
	logger logger.LogManager

	// server-level: graceful shutdown timeout
	shutdownTimeout time.Duration

	// TLS
	tlsCertFile string
	tlsKeyFile  string
	addr        string

	onReady func(net.Addr)
}

// StartWithConfig reads server.host and server.port from c when no address is given.
func StartWithConfig(c *config.Config) StartOption {
	return func(o *startOptions) { o.cfg = c }
}

// StartWithLogger passes a logger
func StartWithLogger(l logger.LogManager) StartOption {
	return func(o *startOptions) { o.logger = l }
}

// StartWithShutdownTimeout custom shutdown timeout
func StartWithShutdownTimeout(d time.Duration) StartOption {
	return func(o *startOptions) { o.shutdownTimeout = d }
}

// StartWithAddr override listen address (host:port)
func StartWithAddr(addr string) StartOption {
	return func(o *startOptions) { o.addr = addr }
}

// StartWithTLS enables TLS with cert/key files
func StartWithTLS(certFile, keyFile string) StartOption {
	return func(o *startOptions) {
		o.tlsCertFile = certFile
		o.tlsKeyFile = keyFile
	}
}

// StartWithReady is called with the bound address once the listener is open. Useful with port 0.
func StartWithReady(fn func(net.Addr)) StartOption {
	return func(o *startOptions) { o.onReady = fn }
}

// EngineOption configures NewEngine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger           logger.LogManager
	recovery         bool
	corsConfig       middleware.CorsConfig
	prometheus       bool
	metricsNamespace string
	rateLimitConfig  *middleware.RateLimitConfig
	validator        *validator.Validator
	addMiddleware    []gin.HandlerFunc
}

// WithRateLimit enables per-IP rate limiting.
func WithRateLimit(cfg *middleware.RateLimitConfig) EngineOption {
	return func(e *engineOptions) {
		e.rateLimitConfig = cfg
	}
}

func WithLogger(l logger.LogManager) EngineOption {
	return func(e *engineOptions) { e.logger = l }
}

func WithRecovery(enabled bool) EngineOption {
	return func(e *engineOptions) { e.recovery = enabled }
}

func WithCors(c middleware.CorsConfig) EngineOption {
	return func(e *engineOptions) { e.corsConfig = c }
}

// WithPrometheus serves request metrics on /metrics, prefixed with namespace.
func WithPrometheus(enabled bool, namespace string) EngineOption {
	return func(e *engineOptions) {
		e.prometheus = enabled
		e.metricsNamespace = namespace
	}
}

// WithValidator makes vi available to handlers through middleware.GetValidator.
func WithValidator(vi *validator.Validator) EngineOption {
	return func(e *engineOptions) { e.validator = vi }
}

func WithMiddleware(m ...gin.HandlerFunc) EngineOption {
	return func(e *engineOptions) { e.addMiddleware = append(e.addMiddleware, m...) }
}
