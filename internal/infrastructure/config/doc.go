// Package config provides 12-factor configuration management for envtrace.
//
// Configuration is loaded from ENVTRACE_* environment variables with
// sensible defaults. CLI flags override environment variables, and an
// optional profile file (YAML, TOML or JSON) describes a complete audit
// setup: proxy options, stand-in browser values, network fixtures and
// bootstrap scripts.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Sandbox: Runtime pool size and execution limits
//   - Proxy: Interception paths, level, operation filter
//   - Network: Offline or live XMLHttpRequest transport
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - ENVTRACE_SERVER_PORT, ENVTRACE_SERVER_HOST
//   - ENVTRACE_LOG_LEVEL, ENVTRACE_LOG_DEV
//   - ENVTRACE_RATE_LIMIT_RPS, ENVTRACE_RATE_LIMIT_BURST
//   - ENVTRACE_SANDBOX_POOL_SIZE, ENVTRACE_SANDBOX_TIMEOUT
//   - ENVTRACE_PROXY_PATHS, ENVTRACE_PROXY_LEVEL, ENVTRACE_PROXY_OPERATIONS
//   - ENVTRACE_NETWORK_MODE, ENVTRACE_PROFILE
package config
