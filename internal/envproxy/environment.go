package envproxy

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Environment is the explicit context an installation works against: one
// goja runtime, its global root and the set of wrappers created in it.
// An Environment is bound to its runtime and must be used from the
// goroutine that drives that runtime.
type Environment struct {
	vm       *goja.Runtime
	global   *goja.Object
	refl     *reflector
	registry *registry
	values   *ValueFormatter

	out      io.Writer
	audit    *zap.Logger
	recorder Recorder
}

// NewEnvironment prepares vm for interception.
func NewEnvironment(vm *goja.Runtime) (*Environment, error) {
	if vm == nil {
		return nil, errors.New("envproxy: nil runtime")
	}
	refl, err := newReflector(vm)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		vm:       vm,
		global:   vm.GlobalObject(),
		refl:     refl,
		registry: newRegistry(),
		out:      os.Stdout,
	}
	env.values = newValueFormatter(refl, env.registry.unwrap)
	return env, nil
}

// WithOutput sets where installations created afterwards write log lines.
func (e *Environment) WithOutput(w io.Writer) *Environment {
	if w != nil {
		e.out = w
	}
	return e
}

// WithAudit mirrors emitted entries of later installations to logger.
func (e *Environment) WithAudit(logger *zap.Logger) *Environment {
	e.audit = logger
	return e
}

// WithRecorder counts operations of later installations.
func (e *Environment) WithRecorder(r Recorder) *Environment {
	e.recorder = r
	return e
}

// Runtime returns the underlying goja runtime.
func (e *Environment) Runtime() *goja.Runtime { return e.vm }

// Global returns the global root paths are resolved against.
func (e *Environment) Global() *goja.Object { return e.global }

// Values returns the formatter used for log output.
func (e *Environment) Values() *ValueFormatter { return e.values }

// IsWrapper reports whether v is an interception wrapper created in this
// environment.
func (e *Environment) IsWrapper(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	return ok && obj != nil && e.registry.contains(obj)
}

// Unwrap returns the original behind a wrapper. Any other value is returned
// as is.
func (e *Environment) Unwrap(v goja.Value) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return v
	}
	return e.registry.unwrap(obj)
}

// Installation is the result of one successful setup call.
type Installation struct {
	Config  *ProxyConfig
	Factory *Factory
	Logger  *Logger
}

// SetEnvProxy resolves opts and installs wrappers on every configured path.
func (e *Environment) SetEnvProxy(opts Options) (*Installation, error) {
	config, err := opts.Resolve()
	if err != nil {
		return nil, fmt.Errorf("setEnvProxy: %w", err)
	}
	return NewInstaller(e).Install(config)
}

// CreateEnvProxy installs wrappers on paths.
//
// Deprecated: use SetEnvProxy.
func (e *Environment) CreateEnvProxy(paths []string, opts Options) (*Installation, error) {
	opts.Paths = paths
	return e.SetEnvProxy(opts)
}

// newLogger builds the policy evaluator for config with the environment's
// sinks attached.
func (e *Environment) newLogger(config *ProxyConfig) *Logger {
	formatter := NewLogFormatter(config.LogConfig, e.values)
	return NewLogger(config, formatter, e.vm).
		WithOutput(e.out).
		WithAudit(e.audit).
		WithRecorder(e.recorder)
}
