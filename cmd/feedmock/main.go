// Command feedmock serves the in-memory feed API for local development.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/milan604/feedclient/internal/mockapi"
	"github.com/milan604/feedclient/pkg/config"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/server"
	"github.com/milan604/feedclient/pkg/server/middleware"
	"github.com/milan604/feedclient/pkg/version"
)

const (
	keySecret     = "mock.secret"
	keyAccessTTL  = "mock.access_ttl"
	keyRefreshTTL = "mock.refresh_ttl"
	keyRotate     = "mock.rotate"
	keyAutoVerify = "mock.auto_verify"
	keyLoginUser  = "mock.login_user"
	keySeed       = "mock.seed"
	keyPageSize   = "mock.page_size"
	keyMaxUpload  = "mock.max_upload"
	keyRateRPS    = "mock.rate_limit_rps"
	keyRateBurst  = "mock.rate_limit_burst"
	keyCORSOrigin = "mock.cors_origins"
	keyLatency    = "mock.latency"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "feedmock:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("feedmock", pflag.ExitOnError)
	flags.String(server.KeyServerHost, "127.0.0.1", "listen host")
	flags.Int(server.KeyServerPort, 8000, "listen port")
	flags.String(keySecret, "", "token signing secret (random when empty)")
	flags.Duration(keyAccessTTL, mockapi.DefaultAccessTTL, "access token lifetime")
	flags.Duration(keyRefreshTTL, mockapi.DefaultRefreshTTL, "refresh token lifetime")
	flags.Bool(keyRotate, false, "rotate refresh tokens")
	flags.Bool(keyAutoVerify, false, "mark new accounts verified")
	flags.Bool(keyLoginUser, true, "include the user object in login replies")
	flags.Bool(keySeed, true, "create the demo account")
	flags.Int(keyPageSize, mockapi.DefaultPageSize, "page size of listings")
	flags.Int64(keyMaxUpload, mockapi.DefaultMaxUploadBytes, "largest accepted upload in bytes")
	flags.Float64(keyRateRPS, 0, "per client request rate, 0 disables")
	flags.Int(keyRateBurst, 20, "per client burst")
	flags.StringSlice(keyCORSOrigin, []string{"*"}, "allowed CORS origins")
	flags.Duration(keyLatency, 0, "delay added to every request")
	flags.String(config.KeyLogLevel, "info", "log level")
	configFile := flags.String("config", "", "config file, watched for log level changes")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version.UserAgent())
		return nil
	}

	log, err := logger.NewLogger(logger.LoggerOptions{
		Level:    flagString(flags, config.KeyLogLevel),
		Encoding: "console",
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := []config.Option{config.WithLogger(log)}
	if *configFile != "" {
		opts = append(opts, config.WithFile(*configFile))
	}
	var cfg *config.Config
	opts = append(opts,
		config.WithEnv("FEEDMOCK"),
		config.WithDotEnv(""),
		config.WithPFlags(flags),
		config.WithWatch(func() {
			if err := log.SetLogLevel(cfg.GetStringD(config.KeyLogLevel, "info")); err != nil {
				log.WarnF("config reload: %v", err)
			}
		}),
	)
	if cfg, err = config.New(opts...); err != nil {
		return err
	}
	if err := log.SetLogLevel(cfg.GetStringD(config.KeyLogLevel, "info")); err != nil {
		return err
	}

	engineOpts := []server.EngineOption{
		server.WithPrometheus(true, "feedmock"),
	}
	cors := middleware.DefaultCorsConfig()
	cors.AllowOrigins = cfg.GetStringSlice(keyCORSOrigin)
	engineOpts = append(engineOpts, server.WithCors(cors))
	if rps := cfg.GetFloat64D(keyRateRPS, 0); rps > 0 {
		rl := middleware.NewRateLimitConfig(true, rps, cfg.GetIntD(keyRateBurst, 20), time.Minute)
		defer rl.Stop()
		engineOpts = append(engineOpts, server.WithRateLimit(rl))
	}

	if d := cfg.GetDurationD(keyLatency, 0); d > 0 {
		engineOpts = append(engineOpts, server.WithMiddleware(func(c *gin.Context) {
			select {
			case <-time.After(d):
			case <-c.Request.Context().Done():
			}
			c.Next()
		}))
	}

	apiOpts := []mockapi.Option{
		mockapi.WithLogger(log),
		mockapi.WithAccessTTL(cfg.GetDurationD(keyAccessTTL, mockapi.DefaultAccessTTL)),
		mockapi.WithRefreshTTL(cfg.GetDurationD(keyRefreshTTL, mockapi.DefaultRefreshTTL)),
		mockapi.WithRotation(cfg.GetBoolD(keyRotate, false)),
		mockapi.WithAutoVerify(cfg.GetBoolD(keyAutoVerify, false)),
		mockapi.WithLoginUser(cfg.GetBoolD(keyLoginUser, true)),
		mockapi.WithPageSize(cfg.GetIntD(keyPageSize, mockapi.DefaultPageSize)),
		mockapi.WithMaxUploadBytes(cfg.GetInt64D(keyMaxUpload, mockapi.DefaultMaxUploadBytes)),
		mockapi.WithEngineOptions(engineOpts...),
	}
	if secret := cfg.GetString(keySecret); secret != "" {
		apiOpts = append(apiOpts, mockapi.WithSecret([]byte(secret)))
	}
	api := mockapi.New(apiOpts...)

	if cfg.GetBoolD(keySeed, true) {
		username, _, password, err := api.Seed()
		if err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
		log.InfoF("demo account: %s / %s", username, password)
	}

	return server.Start(context.Background(), api.Handler(),
		server.StartWithConfig(cfg),
		server.StartWithLogger(log),
		server.StartWithReady(func(addr net.Addr) {
			log.InfoF("feed API at http://%s/api, metrics at http://%s/metrics", addr, addr)
		}),
	)
}

func flagString(flags *pflag.FlagSet, name string) string {
	v, _ := flags.GetString(name)
	return v
}
