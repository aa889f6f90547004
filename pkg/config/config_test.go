package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientSettingsDefaults(t *testing.T) {
	cfg, err := New(WithDefaults(ClientDefaults()))
	require.NoError(t, err)

	s, err := LoadClientSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, 120*time.Second, s.UploadTimeout)
	assert.Equal(t, int64(100<<20), s.MaxUploadBytes)
	assert.Equal(t, BackendSQLite, s.SessionBackend)
	assert.Nil(t, s.SealKey)
}

func TestEnvOverridesAndAlias(t *testing.T) {
	t.Setenv("FEED_API_URL", "http://localhost:9000/api/")
	t.Setenv("FEED_API_TIMEOUT", "45s")

	cfg, err := New(
		WithDefaults(ClientDefaults()),
		WithEnv("FEED"),
		WithEnvAlias(KeyAPIBaseURL, "FEED_API_URL"),
	)
	require.NoError(t, err)

	s, err := LoadClientSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/api", s.BaseURL)
	assert.Equal(t, 45*time.Second, s.Timeout)
}

func TestFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  timeout: 50s\nsession:\n  backend: memory\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyLogLevel, "info", "")
	require.NoError(t, flags.Parse([]string{"--log.level=debug"}))

	cfg, err := New(WithDefaults(ClientDefaults()), WithFile(path), WithPFlags(flags))
	require.NoError(t, err)

	s, err := LoadClientSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, s.Timeout)
	assert.Equal(t, BackendMemory, s.SessionBackend)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestMissingNamedConfigIsNotAnError(t *testing.T) {
	_, err := New(WithConfigNamePaths("absent", t.TempDir()))
	assert.NoError(t, err)
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := New(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg, err := New(WithDefaults(ClientDefaults()))
	require.NoError(t, err)
	cfg.Set(KeyAPIBaseURL, "ftp://example")
	cfg.Set(KeySessionBackend, "redis")

	_, err = LoadClientSettings(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyAPIBaseURL)
	assert.Contains(t, err.Error(), KeySessionRedisAddr)
}

func TestSealKeyAndMasking(t *testing.T) {
	key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	cfg, err := New(WithDefaults(ClientDefaults()), WithSensitiveKeys(SensitiveKeys()...))
	require.NoError(t, err)
	cfg.Set(KeySessionSealKey, key)

	s, err := LoadClientSettings(cfg)
	require.NoError(t, err)
	assert.Len(t, s.SealKey, 32)
	assert.Equal(t, redacted, cfg.MaskedSettings()[KeySessionSealKey])

	cfg.Set(KeySessionSealKey, "abcd")
	_, err = LoadClientSettings(cfg)
	assert.Error(t, err)
}

func TestTypedGettersFallBack(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.GetStringD("missing", "x"))
	assert.Equal(t, 7, cfg.GetIntD("missing", 7))
	assert.True(t, cfg.GetBoolD("missing", true))
	assert.Equal(t, time.Second, cfg.GetDurationD("missing", time.Second))
	assert.Error(t, cfg.ValidateRequired("missing"))
}

func TestWatchReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedmock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	changed := make(chan struct{}, 8)
	cfg, err := New(WithFile(path), WithWatch(func() { changed <- struct{}{} }))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.GetString(KeyLogLevel))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the file changed")
	}
	assert.Eventually(t, func() bool { return cfg.GetString(KeyLogLevel) == "debug" }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchWithoutFileIsInert(t *testing.T) {
	cfg, err := New(WithWatch(func() { t.Error("unexpected reload") }))
	require.NoError(t, err)
	assert.False(t, cfg.loaded)
}
