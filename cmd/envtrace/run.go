package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/envtrace/internal/sandbox"
)

var (
	errNoMatch       = errors.New("no files match")
	errScriptsFailed = errors.New("one or more scripts failed")
)

type runOptions struct {
	paths   []string
	level   string
	ops     []string
	ignore  []string
	deep    bool
	color   string
	network string
	timeout time.Duration

	generate bool
	payload  string
	asJSON   bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <script|glob>...",
		Short: "Run scripts in one emulated page and log environment access",
		Long: `Runs the matching scripts in order inside a single emulated page, the
way script tags share a window. Globs follow doublestar syntax, so
"dist/**/*.js" works; a directory runs every .js, .mjs and .cjs file below
it. Interception lines go to stdout, or to stderr with
--json so that stdout carries only the report.`,
		Example: `  envtrace run --paths navigator,document,screen page.js
  envtrace run --paths window --level HIGH --ops get,has "vendor/**/*.js"
  envtrace run --profile audit.yaml --generate --payload '{"q":1}' sign.js`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, g, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&o.paths, "paths", nil, "global paths to intercept, e.g. navigator,document.cookie")
	f.StringVar(&o.level, "level", "1", "log level: 0-3 or LOW, MEDIUM, HIGH, TRACE")
	f.StringSliceVar(&o.ops, "ops", nil, "only log these operations, e.g. get,has,ownKeys")
	f.StringSliceVar(&o.ignore, "ignore", nil, "property names never logged")
	f.BoolVar(&o.deep, "deep", true, "wrap values reached through intercepted objects")
	f.StringVar(&o.color, "color", "auto", "color interception lines: auto, always, never")
	f.StringVar(&o.network, "network", "offline", "XMLHttpRequest transport: offline or live")
	f.DurationVar(&o.timeout, "timeout", 5*time.Second, "per-script execution limit")
	f.BoolVar(&o.generate, "generate", false, "call generateData after the scripts have run")
	f.StringVar(&o.payload, "payload", "", "JSON argument passed to generateData")
	f.BoolVar(&o.asJSON, "json", false, "print a JSON report instead of text")
	return cmd
}

// apply overlays the flags the user actually set onto cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("paths") {
		cfg.Proxy.Paths = o.paths
	}
	if f.Changed("level") {
		cfg.Proxy.Level = o.level
	}
	if f.Changed("ops") {
		cfg.Proxy.Operations = o.ops
	}
	if f.Changed("ignore") {
		cfg.Proxy.Ignore = o.ignore
	}
	if f.Changed("deep") {
		cfg.Proxy.Deep = o.deep
	}
	if f.Changed("color") {
		cfg.Proxy.Color = o.color
	}
	if f.Changed("network") {
		cfg.Network.Mode = o.network
	}
	if f.Changed("timeout") {
		cfg.Sandbox.Timeout = o.timeout
	}
}

func (o *runOptions) run(cmd *cobra.Command, g *globalOptions, args []string) error {
	files, err := expandScripts(args)
	if err != nil {
		return err
	}

	cfg, profile, logger, err := g.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg = cfg.WithProfile(profile)
	o.apply(cmd, cfg)

	out := cmd.OutOrStdout()
	lines := out
	if o.asJSON {
		lines = cmd.ErrOrStderr()
	}

	sc, err := cfg.Runtime(config.RuntimeOptions{
		Profile:    profile,
		IsTerminal: func() bool { return isTerminal(lines) },
	})
	if err != nil {
		return err
	}
	sc.Output = lines
	sc.Audit = logger.Audit()

	rt, err := sandbox.New(sc)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	reports := make([]scriptReport, 0, len(files)+1)
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		result, err := rt.Execute(ctx, sandbox.Script{Name: file, Source: string(src)})
		reports = append(reports, newReport(file, src, result, err))
		if ctx.Err() != nil {
			break
		}
	}

	if o.generate && ctx.Err() == nil {
		var payload interface{}
		if o.payload != "" {
			payload = []byte(o.payload)
		}
		result, err := rt.Generate(ctx, nil, payload)
		reports = append(reports, newReport("generateData", nil, result, err))
	}

	if err := writeReports(out, reports, o.asJSON); err != nil {
		return err
	}
	for _, r := range reports {
		if r.Error != "" {
			return errScriptsFailed
		}
	}
	return ctx.Err()
}

// scriptExts are the file extensions a directory argument expands to.
var scriptExts = map[string]bool{".js": true, ".mjs": true, ".cjs": true}

// expandScripts resolves each argument as a doublestar glob, or, for a
// directory, as every script below it outside node_modules. Matches keep
// argument order, are sorted within one argument and appear once.
func expandScripts(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		var matches []string
		var err error
		if info, statErr := os.Stat(pattern); statErr == nil && info.IsDir() {
			matches, err = walkScripts(pattern)
		} else {
			matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", errNoMatch, pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func walkScripts(dir string) ([]string, error) {
	var mu sync.Mutex
	var found []string
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if scriptExts[filepath.Ext(p)] {
			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
		return nil
	})
	return found, err
}

func isTerminal(w io.Writer) bool {
	return termenv.NewOutput(w).ColorProfile() != termenv.Ascii
}

type scriptReport struct {
	Script     string               `json:"script"`
	Digest     string               `json:"digest,omitempty"`
	Value      interface{}          `json:"value,omitempty"`
	Console    []sandbox.LogEntry   `json:"console,omitempty"`
	Requests   []browserenv.Request `json:"requests,omitempty"`
	DurationMS float64              `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`

	display string
}

// newReport summarizes one run. The digest is BLAKE2b-256 of the source,
// so reports from different builds of a script can be told apart.
func newReport(name string, src []byte, result *sandbox.Result, err error) scriptReport {
	r := scriptReport{Script: name}
	if src != nil {
		sum := blake2b.Sum256(src)
		r.Digest = hex.EncodeToString(sum[:])
	}
	if result != nil {
		r.Console = result.Console
		r.Requests = result.Requests
		r.DurationMS = float64(result.Duration.Microseconds()) / 1000
		r.display = fmt.Sprint(result.Value)
		if result.JSON != "" {
			r.display = result.JSON
			var v interface{}
			if sonic.UnmarshalString(result.JSON, &v) == nil {
				r.Value = v
			}
		}
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func writeReports(w io.Writer, reports []scriptReport, asJSON bool) error {
	if asJSON {
		data, err := sonic.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	for _, r := range reports {
		for _, e := range r.Console {
			if _, err := fmt.Fprintf(w, "  console.%s: %s\n", e.Level, e.Message); err != nil {
				return err
			}
		}
		var err error
		if r.Error != "" {
			_, err = fmt.Fprintf(w, "!! %s: %s\n", r.Script, r.Error)
		} else {
			_, err = fmt.Fprintf(w, "=> %s (%.1fms): %s\n", r.Script, r.DurationMS, r.display)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
