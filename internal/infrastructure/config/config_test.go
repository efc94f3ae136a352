package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/envproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Sandbox and proxy config
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, "1", cfg.Proxy.Level)
	assert.True(t, cfg.Proxy.Deep)
	assert.Equal(t, "offline", cfg.Network.Mode)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"ENVTRACE_SERVER_PORT":        "9000",
		"ENVTRACE_SERVER_HOST":        "127.0.0.1",
		"ENVTRACE_LOG_LEVEL":          "debug",
		"ENVTRACE_LOG_DEV":            "true",
		"ENVTRACE_RATE_LIMIT_RPS":     "500",
		"ENVTRACE_RATE_LIMIT_BURST":   "1000",
		"ENVTRACE_RATE_LIMIT_ENABLED": "false",
		"ENVTRACE_SANDBOX_POOL_SIZE":  "8",
		"ENVTRACE_SANDBOX_TIMEOUT":    "250ms",
		"ENVTRACE_PROXY_PATHS":        "window,navigator",
		"ENVTRACE_PROXY_LEVEL":        "HIGH",
		"ENVTRACE_PROXY_OPERATIONS":   "get,set",
		"ENVTRACE_PROXY_DEEP":         "false",
		"ENVTRACE_NETWORK_MODE":       "live",
		"ENVTRACE_NETWORK_RATE_LIMIT": "2.5",
		"ENVTRACE_PROFILE":            "env.yaml",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Equal(t, []string{"window", "navigator"}, cfg.Proxy.Paths)
	assert.Equal(t, "HIGH", cfg.Proxy.Level)
	assert.Equal(t, []string{"get", "set"}, cfg.Proxy.Operations)
	assert.False(t, cfg.Proxy.Deep)
	assert.Equal(t, "live", cfg.Network.Mode)
	assert.Equal(t, 2.5, cfg.Network.RateLimit)
	assert.Equal(t, "env.yaml", cfg.Profile)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("ENVTRACE_SANDBOX_POOL_SIZE", "many")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}

func TestProxyConfigOptions(t *testing.T) {
	opts, err := ProxyConfig{Level: "1"}.Options(true)
	require.NoError(t, err)
	assert.Nil(t, opts)

	opts, err = ProxyConfig{Paths: []string{"window"}, Level: "TRACE", Ignore: []string{"toString"}}.Options(false)
	require.NoError(t, err)

	resolved, err := opts.Resolve()
	require.NoError(t, err)
	assert.Equal(t, envproxy.LevelTrace, resolved.LogConfig.Level)
	assert.False(t, resolved.LogConfig.EnableColors)
	assert.False(t, resolved.IsDeepProxy)
	assert.True(t, resolved.Ignores("toString"))

	_, err = ProxyConfig{Paths: []string{"window"}, Level: "LOUD"}.Options(false)
	assert.ErrorIs(t, err, envproxy.ErrInvalidLevel)
}

const yamlProfile = `
proxy:
  paths: [window, navigator]
  level: HIGH
  operations: [get, has]
  ignore: [toString]
  deep: false
  colors: false
browser:
  user_agent: TestAgent/1.0
  platform: Linux x86_64
  local_storage:
    token: abc
fixtures:
  - method: post
    url: https://api.example.com/collect
    status: 204
  - url: https://api.example.com/config
    body: '{"ok":true}'
bootstrap:
  - env.js
  - /abs/gen.js
`

const tomlProfile = `
bootstrap = ["env.js"]

[proxy]
paths = ["document"]
level = "0"

[browser]
user_agent = "TomlAgent"
html = "<title>T</title>"

[[fixtures]]
url = "/x"
body = "y"
`

const jsonProfile = `{
  "proxy": {"paths": ["location"], "level": "TRACE", "colors": true},
  "browser": {"href": "https://json.example/"}
}`

func TestDecodeProfile(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		p, err := DecodeProfile([]byte(yamlProfile), ".yaml")
		require.NoError(t, err)

		assert.Equal(t, "TestAgent/1.0", p.Browser.UserAgent)
		assert.Equal(t, "Linux x86_64", p.Browser.Platform)
		assert.Equal(t, map[string]string{"token": "abc"}, p.Browser.LocalStorage)
		// Fields absent from the file keep their defaults.
		assert.Equal(t, browserenv.DefaultProfile().Href, p.Browser.Href)

		merged := Default().Proxy.Merge(p.Proxy)
		assert.Equal(t, "never", merged.Color)
		opts, err := merged.Options(false)
		require.NoError(t, err)
		resolved, err := opts.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"window", "navigator"}, resolved.Paths)
		assert.Equal(t, envproxy.LevelHigh, resolved.LogConfig.Level)
		assert.Equal(t, []string{"get", "has"}, resolved.AllowedOperations.Names())
		assert.False(t, resolved.IsDeepProxy)
		assert.True(t, resolved.Ignores("toString"))

		transport, ok := p.Transport().(browserenv.FixtureTransport)
		require.True(t, ok)
		assert.Equal(t, 204, transport["POST https://api.example.com/collect"].Status)
		assert.Equal(t, `{"ok":true}`, transport["https://api.example.com/config"].Body)
	})

	t.Run("toml", func(t *testing.T) {
		p, err := DecodeProfile([]byte(tomlProfile), "toml")
		require.NoError(t, err)

		assert.Equal(t, "TomlAgent", p.Browser.UserAgent)
		assert.Equal(t, "<title>T</title>", p.Browser.HTML)
		assert.Equal(t, []string{"env.js"}, p.Bootstrap)

		merged := Default().Proxy.Merge(p.Proxy)
		assert.Equal(t, []string{"document"}, merged.Paths)
		assert.Equal(t, "0", merged.Level)
		assert.Equal(t, "auto", merged.Color, "colors left unset keep the environment mode")
		assert.True(t, merged.Deep, "deep left unset keeps the environment value")
		assert.NotNil(t, p.Transport())
	})

	t.Run("json", func(t *testing.T) {
		p, err := DecodeProfile([]byte(jsonProfile), "JSON")
		require.NoError(t, err)

		assert.Equal(t, "https://json.example/", p.Browser.Href)
		assert.Equal(t, browserenv.DefaultProfile().UserAgent, p.Browser.UserAgent)
		assert.Nil(t, p.Transport())

		merged := Default().Proxy.Merge(p.Proxy)
		assert.Equal(t, "TRACE", merged.Level)
		assert.Equal(t, "always", merged.Color)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := DecodeProfile([]byte("x"), ".ini")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeProfile([]byte("{"), "json")
		assert.Error(t, err)
	})

	t.Run("bad level", func(t *testing.T) {
		p, err := DecodeProfile([]byte(`{"proxy": {"paths": ["a"], "level": "9"}}`), "json")
		require.NoError(t, err)
		_, err = Default().Proxy.Merge(p.Proxy).Options(false)
		assert.ErrorIs(t, err, envproxy.ErrInvalidLevel)
	})
}

func TestLoadProfileResolvesBootstrap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlProfile), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "env.js"), "/abs/gen.js"}, p.BootstrapPaths())

	_, err = LoadProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadProfileHTMLFile(t *testing.T) {
	dir := t.TempDir()
	page := append([]byte(`<html><head><meta charset="windows-1252"><title>Caf`), 0xe9, '<', '/', 't', 'i', 't', 'l', 'e', '>', '<', '/', 'h', 'e', 'a', 'd', '>', '<', '/', 'h', 't', 'm', 'l', '>')
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), page, 0o644))
	path := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"html_file": "page.html"}`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Contains(t, p.Browser.HTML, "<title>Café</title>")

	require.NoError(t, os.WriteFile(path, []byte(`{"html_file": "gone.html"}`), 0o644))
	_, err = LoadProfile(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
