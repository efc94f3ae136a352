package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/envtrace/internal/sandbox"
)

var (
	// ErrUnknownNetworkMode is returned for a Network.Mode other than offline or live.
	ErrUnknownNetworkMode = errors.New("unknown network mode")
	// ErrUnknownColorMode is returned for a color mode other than auto, always or never.
	ErrUnknownColorMode = errors.New("unknown color mode")
)

// Colors resolves the color mode. isTerminal is consulted only for "auto".
func (c ProxyConfig) Colors(isTerminal func() bool) (bool, error) {
	switch strings.ToLower(c.Color) {
	case "", "auto":
		return isTerminal != nil && isTerminal(), nil
	case "always", "true":
		return true, nil
	case "never", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownColorMode, c.Color)
	}
}

// Transport builds the XMLHttpRequest transport. In offline mode fixtures,
// when non-nil, answer instead of failing every request. onBreak, if set,
// is told about circuit breaker transitions of the live transport.
func (n NetworkConfig) Transport(fixtures browserenv.Transport, userAgent string, onBreak func(host string, from, to resilience.State)) (browserenv.Transport, error) {
	switch strings.ToLower(n.Mode) {
	case "", "offline":
		if fixtures != nil {
			return fixtures, nil
		}
		return browserenv.OfflineTransport{}, nil
	case "live":
		return browserenv.NewHTTPTransport(browserenv.HTTPConfig{
			Timeout:    n.Timeout,
			MaxRetries: n.MaxRetries,
			RateLimit:  n.RateLimit,
			UserAgent:  userAgent,
			Breakers: resilience.NewGroup(resilience.Settings{
				Threshold:     n.BreakerThreshold,
				Cooldown:      n.BreakerCooldown,
				OnStateChange: onBreak,
			}),
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetworkMode, n.Mode)
	}
}

// RuntimeOptions carries the values that do not come from the environment.
type RuntimeOptions struct {
	// Profile supplies the browser identity, fixtures and bootstrap
	// scripts. May be nil. Its proxy section is not read here; merge it
	// into Config.Proxy first with ProxyConfig.Merge.
	Profile *Profile
	// IsTerminal decides the "auto" color mode.
	IsTerminal func() bool
	// OnBreak receives circuit breaker transitions in live network mode.
	OnBreak func(host string, from, to resilience.State)
}

// WithProfile returns a copy of c with the profile's proxy section merged
// over the environment settings. A nil profile gives an unchanged copy.
func (c *Config) WithProfile(p *Profile) *Config {
	merged := *c
	if p != nil {
		merged.Proxy = c.Proxy.Merge(p.Proxy)
	}
	return &merged
}

// Runtime assembles a sandbox configuration. Logging and output sinks are
// left for the caller to set.
func (c *Config) Runtime(opts RuntimeOptions) (sandbox.Config, error) {
	sc := sandbox.DefaultConfig()
	sc.Timeout = c.Sandbox.Timeout
	sc.AcquireTimeout = c.Sandbox.AcquireTimeout
	sc.MaxCallStack = c.Sandbox.MaxCallStack
	sc.ExposeHelpers = c.Sandbox.Helpers

	colors, err := c.Proxy.Colors(opts.IsTerminal)
	if err != nil {
		return sc, err
	}
	sc.Proxy, err = c.Proxy.Options(colors)
	if err != nil {
		return sc, fmt.Errorf("proxy config: %w", err)
	}

	var fixtures browserenv.Transport
	if p := opts.Profile; p != nil {
		sc.Profile = p.Browser
		fixtures = p.Transport()

		scripts, err := readScripts(p.BootstrapPaths())
		if err != nil {
			return sc, err
		}
		sc.Bootstrap = scripts
	}

	sc.Transport, err = c.Network.Transport(fixtures, sc.Profile.UserAgent, opts.OnBreak)
	if err != nil {
		return sc, err
	}
	return sc, nil
}

func readScripts(paths []string) ([]sandbox.Script, error) {
	scripts := make([]sandbox.Script, 0, len(paths))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap script: %w", err)
		}
		scripts = append(scripts, sandbox.Script{Name: filepath.Base(path), Source: string(src)})
	}
	return scripts, nil
}
