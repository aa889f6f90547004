// Package server builds gin engines with the standard middleware chain and runs them with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/logger"
	middleware "github.com/milan604/feedclient/pkg/server/middleware"
	"github.com/milan604/feedclient/pkg/version"
)

// Config keys read by StartWithConfig.
const (
	KeyServerHost = "server.host"
	KeyServerPort = "server.port"
)

// NewEngine creates a Gin engine with the middleware chain in a fixed order.
func NewEngine(opts ...EngineOption) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	var opt engineOptions
	for _, o := range opts {
		o(&opt)
	}

	logMgr := opt.logger
	if logMgr == nil {
		logMgr = logger.NewNop()
	}

	// 1. Request ID
	engine.Use(middleware.RequestIDMiddleware())

	// 2. Access Logger
	engine.Use(middleware.AccessLoggerMiddleware(logMgr))

	// 3. App Logger Injector
	engine.Use(middleware.AppLoggerMiddleware(logMgr))

	// 4. CORS (optional)
	if opt.corsConfig.Enabled {
		engine.Use(middleware.CORSMiddleware(opt.corsConfig))
	}

	// 5. Prometheus (optional), before rate limiting so throttled requests are counted
	if opt.prometheus {
		prom := middleware.NewPrometheusCollector(opt.metricsNamespace, "/metrics")
		engine.Use(prom.PrometheusMiddleware())
		prom.RegisterMetricsEndpoint(engine)
	}

	// 6. Rate Limiting (optional)
	if opt.rateLimitConfig != nil && opt.rateLimitConfig.Enabled {
		engine.Use(opt.rateLimitConfig.Middleware())
	}

	// 7. Validator
	if opt.validator != nil {
		engine.Use(middleware.ValidatorMiddleware(opt.validator))
	}

	// 8. Error Handler
	engine.Use(middleware.ErrorHandlerMiddleware())

	// 9. User-provided middlewares
	for _, m := range opt.addMiddleware {
		engine.Use(m)
	}

	// 10. Recovery (optional, last)
	if opt.recovery {
		engine.Use(middleware.RecoveryMiddleware(logMgr))
	}

	return engine
}

func resolveAddress(so *startOptions) string {
	if so.addr != "" {
		return so.addr
	}
	if so.cfg != nil {
		host := so.cfg.GetStringD(KeyServerHost, "127.0.0.1")
		port := so.cfg.GetStringD(KeyServerPort, "8000")
		return net.JoinHostPort(host, port)
	}
	return "127.0.0.1:8000"
}

// Start serves engine until ctx is done or the process receives SIGINT/SIGTERM, then shuts down
// gracefully. It returns nil after a clean shutdown.
func Start(ctx context.Context, engine *gin.Engine, opts ...StartOption) error {
	so := &startOptions{shutdownTimeout: 15 * time.Second, logger: logger.NewNop()}
	for _, o := range opts {
		o(so)
	}
	if so.logger == nil {
		so.logger = logger.NewNop()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := resolveAddress(so)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		so.logger.ErrorF("cannot listen on %s: %v", addr, err)
		return err
	}

	srv := &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	tls := so.tlsCertFile != "" && so.tlsKeyFile != ""
	so.logger.With("version", version.Version, "tls", tls).
		InfoF("%s listening on %s", version.Product, ln.Addr())
	if so.onReady != nil {
		so.onReady(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		if tls {
			errCh <- srv.ServeTLS(ln, so.tlsCertFile, so.tlsKeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		so.logger.ErrorF("serve error: %v", err)
		return err
	case <-ctx.Done():
	}

	so.logger.InfoF("shutdown initiated")
	sctx, cancel := context.WithTimeout(context.Background(), so.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		so.logger.ErrorF("server shutdown error: %v", err)
		return err
	}
	so.logger.InfoF("server stopped gracefully")
	return nil
}
