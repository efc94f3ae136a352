package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/envtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	profile  string
	logLevel string
	dev      bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "envtrace",
		Short: "Audit how scripts probe the browser environment",
		Long: `envtrace runs JavaScript inside an emulated browser and logs every
access to the globals you choose to watch: which properties were read,
which were probed with "in", what was enumerated and what was called.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.profile, "profile", "", "YAML, TOML or JSON audit profile (overrides $ENVTRACE_PROFILE)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides $ENVTRACE_LOG_LEVEL)")
	pf.BoolVar(&g.dev, "dev", false, "development logging")

	cmd.AddCommand(newRunCmd(g), newServeCmd(g))
	return cmd
}

// load reads the environment, applies the persistent flags, loads the
// profile if one is named and builds the logger.
func (g *globalOptions) load() (*config.Config, *config.Profile, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if g.profile != "" {
		cfg.Profile = g.profile
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.dev {
		cfg.Logging.Development = true
	}

	var profile *config.Profile
	if cfg.Profile != "" {
		profile, err = config.LoadProfile(cfg.Profile)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, profile, logger, nil
}
