// Command feedctl is a terminal client for the feed API.
//
//	feedctl [global flags] <command> [flags] [args]
//
// Settings come from flags, FEED_* environment variables, a .env file and
// feedctl.{yaml,json,toml} in the user config directory, in that order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/auth"
	"github.com/milan604/feedclient/pkg/config"
	"github.com/milan604/feedclient/pkg/feed"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/i18n"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/observability"
	"github.com/milan604/feedclient/pkg/session"
)

type app struct {
	log     logger.LogManager
	tr      *i18n.Translator
	obs     *observability.Observability
	store   *session.Store
	client  *feedhttp.Client
	auth    *auth.Service
	feed    *feed.Service
	out     io.Writer
	errOut  io.Writer
	in      io.Reader
	expired atomic.Bool
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":    {"login --email E [--password P]", cmdLogin},
	"register": {"register --name N --email E [--password P]", cmdRegister},
	"logout":   {"logout", cmdLogout},
	"whoami":   {"whoami", cmdWhoami},
	"verify":   {"verify TOKEN", cmdVerify},
	"resend":   {"resend EMAIL", cmdResend},
	"feed":     {"feed [--page N] [--type T] [--author U]", cmdFeed},
	"post":     {"post SLUG", cmdPost},
	"create":   {"create [--title T] [--content C] [--type T] [--tags a,b] [--step S]... [--file PATH]", cmdCreate},
	"like":     {"like POST_ID", cmdLike},
	"bookmark": {"bookmark POST_ID", cmdBookmark},
	"share":    {"share POST_ID", cmdShare},
	"comments": {"comments POST_ID [--page N]", cmdComments},
	"comment":  {"comment POST_ID TEXT [--parent ID]", cmdComment},
	"search":   {"search [QUERY] [--tags a,b] [--author U] [--type T] [--page N]", cmdSearch},
	"profile":  {"profile [USERNAME] | profile --bio B --location L --website W --display-name N --avatar PATH", cmdProfile},
	"version":  {"version", cmdVersion},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := pflag.NewFlagSet("feedctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.String(config.KeyAPIBaseURL, config.DefaultBaseURL, "API base URL")
	global.String(config.KeySessionBackend, config.BackendSQLite, "session storage: sqlite, memory or redis")
	global.String(config.KeySessionPath, "", "SQLite session file")
	global.String(config.KeyLogLevel, "warn", "log level")
	configFile := global.String("config", "", "config file")
	global.Usage = func() { usage(os.Stderr, global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(os.Stderr, global)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "feedctl: unknown command %q\n", rest[0])
		usage(os.Stderr, global)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rest[0] == "version" {
		return report(os.Stderr, cmd.run(ctx, &app{out: os.Stdout}, rest[1:]))
	}

	a, cleanup, err := bootstrap(ctx, global, *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "feedctl:", err)
		return 1
	}
	defer cleanup()

	err = cmd.run(ctx, a, rest[1:])
	if a.expired.Load() {
		return 1
	}
	return report(a.errOut, err)
}

func usage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: feedctl [global flags] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	global.SetOutput(w)
	global.PrintDefaults()
}

func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	fmt.Fprintln(w, "error:", apperr.UserMessage(err))
	return 1
}

func bootstrap(ctx context.Context, global *pflag.FlagSet, configFile string) (*app, func(), error) {
	opts := []config.Option{
		config.WithDefaults(config.ClientDefaults()),
		config.WithSensitiveKeys(config.SensitiveKeys()...),
	}
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	} else if dir, err := os.UserConfigDir(); err == nil {
		opts = append(opts, config.WithConfigNamePaths("feedctl", filepath.Join(dir, "feedclient")))
	}
	opts = append(opts,
		config.WithEnv("FEED"),
		config.WithEnvAlias(config.KeyAPIBaseURL, "FEED_API_URL"),
		config.WithDotEnv(""),
		config.WithPFlags(global),
	)
	cfg, err := config.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.LoadClientSettings(cfg)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLogger(logger.LoggerOptions{Level: settings.LogLevel, Encoding: settings.LogEncoding})
	if err != nil {
		return nil, nil, err
	}

	obs, err := observability.New(ctx, log, "feedctl", settings)
	if err != nil {
		return nil, nil, err
	}

	storage, err := session.OpenStorage(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session storage: %w", err)
	}
	store := session.NewStore(storage, session.WithLogger(log))

	a := &app{
		log:    log,
		tr:     i18n.Default(),
		obs:    obs,
		store:  store,
		out:    os.Stdout,
		errOut: os.Stderr,
		in:     os.Stdin,
	}
	a.client = feedhttp.NewClientFromConfig(log, settings, store,
		feedhttp.WithTracer(obs.GetTracer()),
		feedhttp.WithLoginRedirect(feedhttp.NavigatorFunc(func(context.Context) {
			if a.expired.CompareAndSwap(false, true) {
				fmt.Fprintln(a.errOut, "Session expired, run `feedctl login`")
			}
		})),
	)
	a.auth = auth.NewService(a.client, store, auth.WithLogger(log), auth.WithTranslator(a.tr))
	a.feed = feed.NewService(a.client,
		feed.WithLogger(log),
		feed.WithTranslator(a.tr),
		feed.WithSession(store),
		feed.WithMaxUploadBytes(settings.MaxUploadBytes),
	)

	if _, err := a.auth.Restore(ctx); err != nil {
		log.WarnFCtx(ctx, "restoring session: %v", err)
	}

	cleanup := func() {
		if err := obs.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.DebugF("tracing shutdown: %v", err)
		}
		if err := store.Close(); err != nil {
			log.WarnF("closing session storage: %v", err)
		}
		_ = log.Sync()
	}
	return a, cleanup, nil
}
