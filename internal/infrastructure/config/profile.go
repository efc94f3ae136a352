package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/envproxy"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnsupportedFormat is returned for profile files that are not YAML, TOML or JSON.
var ErrUnsupportedFormat = errors.New("config: unsupported profile format")

// Profile describes one audit setup: what to intercept, what the stand-in
// browser reports and how the network answers.
type Profile struct {
	Proxy   ProxySection       `json:"proxy" yaml:"proxy" toml:"proxy"`
	Browser browserenv.Profile `json:"browser" yaml:"browser" toml:"browser"`
	// HTMLFile names a saved page, relative to the profile, that replaces
	// browser.html. Its encoding is detected.
	HTMLFile  string    `json:"html_file" yaml:"html_file" toml:"html_file"`
	Fixtures  []Fixture `json:"fixtures" yaml:"fixtures" toml:"fixtures"`
	Bootstrap []string  `json:"bootstrap" yaml:"bootstrap" toml:"bootstrap"`

	dir string
}

// ProxySection mirrors the setEnvProxy options. Level takes a name or 0-3.
type ProxySection struct {
	Paths      []string `json:"paths" yaml:"paths" toml:"paths"`
	Level      string   `json:"level" yaml:"level" toml:"level"`
	Operations []string `json:"operations" yaml:"operations" toml:"operations"`
	Ignore     []string `json:"ignore" yaml:"ignore" toml:"ignore"`
	Deep       *bool    `json:"deep" yaml:"deep" toml:"deep"`
	Colors     *bool    `json:"colors" yaml:"colors" toml:"colors"`
}

// Fixture is a canned XMLHttpRequest response. An empty Method matches any.
type Fixture struct {
	Method  string            `json:"method" yaml:"method" toml:"method"`
	URL     string            `json:"url" yaml:"url" toml:"url"`
	Status  int               `json:"status" yaml:"status" toml:"status"`
	Headers map[string]string `json:"headers" yaml:"headers" toml:"headers"`
	Body    string            `json:"body" yaml:"body" toml:"body"`
}

// LoadProfile reads a profile, picking the decoder from the file extension.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := DecodeProfile(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)

	if p.HTMLFile != "" {
		page, err := os.ReadFile(p.resolve(p.HTMLFile))
		if err != nil {
			return nil, fmt.Errorf("read html_file: %w", err)
		}
		p.Browser.HTML = browserenv.DecodeHTML(page)
	}
	return p, nil
}

// DecodeProfile parses data in the given format (yaml, yml, toml or json,
// with or without a leading dot). Browser fields left out of the document
// keep their DefaultProfile values.
func DecodeProfile(data []byte, format string) (*Profile, error) {
	p := &Profile{Browser: browserenv.DefaultProfile()}

	var err error
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, p)
	case "toml":
		err = toml.Unmarshal(data, p)
	case "json":
		err = sonic.Unmarshal(data, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// Merge overlays the fields set in s onto c. Lists replace rather than
// append, and a set Colors forces the color mode.
func (c ProxyConfig) Merge(s ProxySection) ProxyConfig {
	if len(s.Paths) > 0 {
		c.Paths = s.Paths
	}
	if s.Level != "" {
		c.Level = s.Level
	}
	if len(s.Operations) > 0 {
		c.Operations = s.Operations
	}
	if len(s.Ignore) > 0 {
		c.Ignore = s.Ignore
	}
	if s.Deep != nil {
		c.Deep = *s.Deep
	}
	if s.Colors != nil {
		c.Color = "never"
		if *s.Colors {
			c.Color = "always"
		}
	}
	return c
}

// Transport returns the fixtures as a transport, or nil when there are none.
func (p *Profile) Transport() browserenv.Transport {
	if len(p.Fixtures) == 0 {
		return nil
	}
	t := make(browserenv.FixtureTransport, len(p.Fixtures))
	for _, f := range p.Fixtures {
		key := f.URL
		if f.Method != "" {
			key = strings.ToUpper(f.Method) + " " + f.URL
		}
		t[key] = browserenv.Response{Status: f.Status, Headers: f.Headers, Body: f.Body}
	}
	return t
}

// BootstrapPaths resolves bootstrap script paths against the profile's directory.
func (p *Profile) BootstrapPaths() []string {
	paths := make([]string, len(p.Bootstrap))
	for i, b := range p.Bootstrap {
		paths[i] = p.resolve(b)
	}
	return paths
}

func (p *Profile) resolve(path string) string {
	if filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// Options converts the environment form of the proxy settings. colors is
// the already resolved color decision. It returns nil when no paths are set.
func (c ProxyConfig) Options(colors bool) (*envproxy.Options, error) {
	if len(c.Paths) == 0 {
		return nil, nil
	}
	level, err := envproxy.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	deep := c.Deep
	return &envproxy.Options{
		Paths:             c.Paths,
		IgnoredProperties: c.Ignore,
		IsDeepProxy:       &deep,
		AllowedOperations: c.Operations,
		LogConfig:         &envproxy.LogOptions{Level: &level, EnableColors: &colors},
	}, nil
}
