package config

import (
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/milan604/feedclient/pkg/logger"
)

const redacted = "***REDACTED***"

// Config is the wrapper around viper with extra helpers.
type Config struct {
	*viper.Viper

	log           logger.LogManager
	sensitiveKeys map[string]struct{}
	onChange      func()
	hasSource     bool
	loaded        bool
	watch         bool
}

// Option is a functional option for New.
type Option func(*Config) error

// New creates a Config instance. Use options to customize behavior.
// Example:
//
//	cfg, err := config.New(
//	  config.WithDefaults(config.ClientDefaults()),
//	  config.WithConfigNamePaths("feedctl", dir),
//	  config.WithEnv("FEED"),
//	  config.WithPFlags(flags),
//	)
func New(opts ...Option) (*Config, error) {
	cfg := &Config{
		Viper:         viper.New(),
		log:           logger.NewNop(),
		sensitiveKeys: map[string]struct{}{},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("config: applying option: %w", err)
		}
	}

	if err := cfg.readConfigIfPossible(); err != nil {
		return nil, err
	}
	if cfg.watch && cfg.loaded {
		cfg.WatchConfig()
	}
	return cfg, nil
}

// readConfigIfPossible reads the configured file. A missing file found by name search is not an
// error; a file named explicitly must exist.
func (c *Config) readConfigIfPossible() error {
	if !c.hasSource {
		return nil
	}
	err := c.ReadInConfig()
	if err == nil {
		c.loaded = true
		c.log.DebugF("config: loaded %s", c.ConfigFileUsed())
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if stdErrors.As(err, &notFound) {
		c.log.DebugF("config: no config file found, using defaults and environment")
		return nil
	}
	return fmt.Errorf("config: reading %s: %w", c.ConfigFileUsed(), err)
}

/* ---------------------------
   Options
----------------------------*/

// WithLogger routes config diagnostics (reloads, missing files) to log.
func WithLogger(log logger.LogManager) Option {
	return func(c *Config) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// WithDefaults sets default values (applied first)
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) error {
		for k, v := range defaults {
			c.SetDefault(k, v)
		}
		return nil
	}
}

// WithFile sets an exact config file; the extension determines its type.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			return err
		}
		c.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			c.SetConfigType(ext)
		}
		c.hasSource = true
		return nil
	}
}

// WithConfigNamePaths sets config name (without ext) and search paths.
func WithConfigNamePaths(name string, paths ...string) Option {
	return func(c *Config) error {
		if name == "" {
			return nil
		}
		c.SetConfigName(name)
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			c.AddConfigPath(p)
		}
		c.hasSource = true
		return nil
	}
}

// WithFormat forces config format (yaml/json/toml/etc.) when files don't have extension.
func WithFormat(format string) Option {
	return func(c *Config) error {
		if format != "" {
			c.SetConfigType(format)
		}
		return nil
	}
}

// WithEnv enables environment variable overrides.
// prefix = "FEED" means FEED_API_TIMEOUT overrides api.timeout.
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if prefix != "" {
			c.SetEnvPrefix(prefix)
		}
		c.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		c.AutomaticEnv()
		return nil
	}
}

// WithEnvAlias binds key to explicit environment variable names in addition to the prefixed one.
func WithEnvAlias(key string, envs ...string) Option {
	return func(c *Config) error {
		return c.BindEnv(append([]string{key}, envs...)...)
	}
}

// WithPFlags binds a pflag.FlagSet to viper. If flags are nil, we bind the default command line.
// Only flags the user actually changed override file and env values.
func WithPFlags(flags *pflag.FlagSet) Option {
	return func(c *Config) error {
		if flags == nil {
			flags = pflag.CommandLine
		}
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = c.BindPFlag(f.Name, f)
		})
		return bindErr
	}
}

// WithDotEnv reads key=val lines from a .env file (path) and merges into viper.
// If path is empty, attempts ".env" in working directory.
func WithDotEnv(path string) Option {
	return func(c *Config) error {
		if path == "" {
			path = ".env"
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		envV := viper.New()
		envV.SetConfigFile(path)
		envV.SetConfigType("env")
		if err := envV.ReadInConfig(); err != nil {
			return err
		}
		for _, k := range envV.AllKeys() {
			c.Set(dotEnvKey(k), envV.Get(k))
		}
		return nil
	}
}

// dotEnvKey maps FEED_API_URL style names onto api.url style keys.
func dotEnvKey(k string) string {
	k = strings.ToLower(k)
	k = strings.TrimPrefix(k, "feed_")
	return strings.Replace(k, "_", ".", 1)
}

// WithWatch enables hot-reload once a config file has been read. onChange is called after each reload.
func WithWatch(onChange func()) Option {
	return func(c *Config) error {
		c.watch = true
		c.onChange = onChange
		c.OnConfigChange(func(e fsnotify.Event) {
			c.log.InfoF("config: file changed: %s (%s)", e.Name, e.Op)
			if c.onChange != nil {
				c.onChange()
			}
		})
		return nil
	}
}

// WithSensitiveKeys registers keys which should be redacted when printing/logging.
func WithSensitiveKeys(keys ...string) Option {
	return func(c *Config) error {
		for _, k := range keys {
			c.sensitiveKeys[strings.ToLower(k)] = struct{}{}
		}
		return nil
	}
}

/* ---------------------------
   Typed getters with defaults
----------------------------*/

// GetStringD returns string or def
func (c *Config) GetStringD(key, def string) string {
	if val := c.GetString(key); val != "" {
		return val
	}
	return def
}

// GetIntD returns int or def
func (c *Config) GetIntD(key string, def int) int {
	if c.IsSet(key) {
		return c.GetInt(key)
	}
	return def
}

// GetInt64D returns int64 or def
func (c *Config) GetInt64D(key string, def int64) int64 {
	if c.IsSet(key) {
		return c.GetInt64(key)
	}
	return def
}

// GetFloat64D returns float64 or def
func (c *Config) GetFloat64D(key string, def float64) float64 {
	if c.IsSet(key) {
		return c.GetFloat64(key)
	}
	return def
}

// GetBoolD returns bool or def
func (c *Config) GetBoolD(key string, def bool) bool {
	if c.IsSet(key) {
		return c.GetBool(key)
	}
	return def
}

// GetDurationD returns time.Duration or def
func (c *Config) GetDurationD(key string, def time.Duration) time.Duration {
	if c.IsSet(key) {
		return c.GetDuration(key)
	}
	return def
}

/* ---------------------------
   Validation & Utilities
----------------------------*/

// ValidateRequired ensures keys exist and are non-empty.
func (c *Config) ValidateRequired(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !c.IsSet(k) || c.GetString(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys: %v", strings.Join(missing, ", "))
	}
	return nil
}

// MaskedSettings returns the flattened effective settings with sensitive keys redacted.
func (c *Config) MaskedSettings() map[string]any {
	out := map[string]any{}
	for _, k := range c.AllKeys() {
		if _, ok := c.sensitiveKeys[k]; ok && c.GetString(k) != "" {
			out[k] = redacted
			continue
		}
		out[k] = c.Get(k)
	}
	return out
}

// SortedKeys lists every known key in lexical order, for stable printing.
func (c *Config) SortedKeys() []string {
	keys := c.AllKeys()
	sort.Strings(keys)
	return keys
}
