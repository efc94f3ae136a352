package envproxy

import (
	"errors"
	"slices"
)

var (
	ErrNoPaths          = errors.New("envproxy: paths must be a non-empty list")
	ErrUnknownOperation = errors.New("envproxy: unknown operation")
	ErrInvalidLevel     = errors.New("envproxy: invalid log level")
)

// LogConfig controls what is printed and how.
type LogConfig struct {
	Level        Level
	EnableColors bool

	// ShowStackTrace is derived from Level and only true at LevelTrace.
	ShowStackTrace bool

	// CustomFormatter replaces the built-in line layout when set.
	CustomFormatter func(LogEntry) string
}

// DefaultLogConfig returns the configuration used when none is supplied.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        LevelMedium,
		EnableColors: true,
	}
}

// ProxyConfig is the resolved configuration for one installation.
// It must not be mutated once handed to an Installer.
type ProxyConfig struct {
	Paths             []string
	LogConfig         LogConfig
	IgnoredProperties map[string]struct{}
	IsDeepProxy       bool
	AllowedOperations OperationSet
}

// Ignores reports whether a rendered property key is in the ignore set.
func (c *ProxyConfig) Ignores(key string) bool {
	_, ok := c.IgnoredProperties[key]
	return ok
}

// LogOptions is the user-facing subset of LogConfig.
type LogOptions struct {
	Level           *Level
	EnableColors    *bool
	CustomFormatter func(LogEntry) string
}

// Options mirrors the setEnvProxy argument. Nil pointers take defaults.
type Options struct {
	Paths             []string
	LogConfig         *LogOptions
	IgnoredProperties []string
	IsDeepProxy       *bool

	// AllowedOperations is nil (or contains "all") for no restriction.
	AllowedOperations []string
}

// Resolve validates the options and merges them over the defaults.
func (o Options) Resolve() (*ProxyConfig, error) {
	if len(o.Paths) == 0 {
		return nil, ErrNoPaths
	}

	logCfg := DefaultLogConfig()
	if o.LogConfig != nil {
		if o.LogConfig.Level != nil {
			if !o.LogConfig.Level.Valid() {
				return nil, ErrInvalidLevel
			}
			logCfg.Level = *o.LogConfig.Level
		}
		if o.LogConfig.EnableColors != nil {
			logCfg.EnableColors = *o.LogConfig.EnableColors
		}
		logCfg.CustomFormatter = o.LogConfig.CustomFormatter
	}
	logCfg.ShowStackTrace = logCfg.Level == LevelTrace

	ignored := make(map[string]struct{}, len(o.IgnoredProperties))
	for _, key := range o.IgnoredProperties {
		ignored[key] = struct{}{}
	}

	var allowed OperationSet
	if len(o.AllowedOperations) > 0 && !slices.Contains(o.AllowedOperations, "all") {
		allowed = make(OperationSet, len(o.AllowedOperations))
		for _, name := range o.AllowedOperations {
			op, err := ParseOperation(name)
			if err != nil {
				return nil, err
			}
			allowed[op] = struct{}{}
		}
	}

	deep := true
	if o.IsDeepProxy != nil {
		deep = *o.IsDeepProxy
	}

	return &ProxyConfig{
		Paths:             slices.Clone(o.Paths),
		LogConfig:         logCfg,
		IgnoredProperties: ignored,
		IsDeepProxy:       deep,
		AllowedOperations: allowed,
	}, nil
}
