package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/envproxy"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

var (
	ErrRuntimeClosed = errors.New("sandbox: runtime is closed")
	ErrRejected      = errors.New("sandbox: generateData rejected")
)

var _ Sandbox = (*Runtime)(nil)

// Runtime wraps a goja VM carrying the stand-in browser environment and
// the interception layer.
type Runtime struct {
	config Config
	mu     sync.Mutex

	vm        *goja.Runtime
	env       *envproxy.Environment
	window    *browserenv.Window
	jsonParse goja.Callable
	stringify goja.Callable

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a runtime and runs the configured bootstrap scripts.
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.setup(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) setup() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}

	env, err := envproxy.NewEnvironment(vm)
	if err != nil {
		return err
	}
	env.WithOutput(r.config.Output).WithAudit(r.config.Audit).WithRecorder(r.config.Recorder)

	window, err := browserenv.DefineWindow(vm, r.config.Profile,
		browserenv.WithUnwrap(env.Unwrap),
		browserenv.WithTransport(r.config.Transport),
	)
	if err != nil {
		return fmt.Errorf("define window: %w", err)
	}
	if err := env.Expose(); err != nil {
		return fmt.Errorf("expose entry points: %w", err)
	}
	if r.config.ExposeHelpers {
		if err := browserenv.ExposeHelpers(vm); err != nil {
			return fmt.Errorf("expose helpers: %w", err)
		}
	}

	json := vm.Get("JSON").ToObject(vm)
	parse, ok := goja.AssertFunction(json.Get("parse"))
	if !ok {
		return errors.New("sandbox: JSON.parse unavailable")
	}
	stringify, ok := goja.AssertFunction(json.Get("stringify"))
	if !ok {
		return errors.New("sandbox: JSON.stringify unavailable")
	}

	r.setupGlobals(vm, env)

	if r.config.Proxy != nil {
		if _, err := env.SetEnvProxy(*r.config.Proxy); err != nil {
			return err
		}
	}
	for _, s := range r.config.Bootstrap {
		if _, err := vm.RunScript(s.Name, s.Source); err != nil {
			return fmt.Errorf("bootstrap %s: %w", s.Name, err)
		}
	}

	// Only a fully bootstrapped VM replaces the current one.
	r.vm, r.env, r.window = vm, env, window
	r.jsonParse, r.stringify = parse, stringify
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()
	return nil
}

// setupGlobals removes host globals and installs console and timers.
func (r *Runtime) setupGlobals(vm *goja.Runtime, env *envproxy.Environment) {
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			_ = console.Set(level, r.makeConsoleFunc(env, level))
		}
		_ = vm.Set("console", console)
	}

	// Timers never fire; scripts only see that they exist.
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		_ = vm.Set(name, noop)
	}
}

func (r *Runtime) makeConsoleFunc(env *envproxy.Environment, level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			if s, ok := arg.Export().(string); ok {
				parts[i] = s
				continue
			}
			parts[i] = env.Values().Format(arg)
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()
		return goja.Undefined()
	}
}

// Execute runs a script with the configured timeout and the caller's context.
func (r *Runtime) Execute(ctx context.Context, script Script) (*Result, error) {
	return r.run(ctx, func() (goja.Value, error) {
		return r.vm.RunScript(script.Name, script.Source)
	})
}

// Generate optionally runs script, then calls globalThis.generateData with
// payload and waits for the value it produces. Promises are settled before
// returning because the job queue drains when the call returns to Go.
func (r *Runtime) Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error) {
	return r.run(ctx, func() (goja.Value, error) {
		if script != nil {
			if _, err := r.vm.RunScript(script.Name, script.Source); err != nil {
				return nil, err
			}
		}

		generate, ok := goja.AssertFunction(r.vm.GlobalObject().Get("generateData"))
		if !ok {
			return nil, ErrNoGenerator
		}
		arg, err := r.importPayload(payload)
		if err != nil {
			return nil, err
		}
		v, err := generate(goja.Undefined(), arg)
		if err != nil {
			return nil, err
		}
		return settle(v)
	})
}

func (r *Runtime) run(ctx context.Context, body func() (goja.Value, error)) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrRuntimeClosed
	}

	start := time.Now()
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	r.window.SetContext(ctx)
	sent := len(r.window.Requests())

	stop := r.watch(ctx)
	val, err := body()
	stop()

	result := &Result{
		Duration: time.Since(start),
		Requests: r.window.Requests()[sent:],
	}
	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		result.Error = err
		return result, err
	}
	result.Value = exportValue(val)
	result.JSON = r.renderJSON(val)
	return result, nil
}

// watch interrupts the VM when the timeout elapses or ctx ends. The
// returned func must be called once the VM is idle; it waits for the
// watcher to exit so that a late interrupt cannot leak into the next run.
// Interrupt errors unwrap to ErrExecutionTimeout or the context error.
func (r *Runtime) watch(ctx context.Context) func() {
	var expired <-chan time.Time
	var timer *time.Timer
	if r.config.Timeout > 0 {
		timer = time.NewTimer(r.config.Timeout)
		expired = timer.C
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	vm := r.vm
	go func() {
		defer close(exited)
		select {
		case <-expired:
			vm.Interrupt(ErrExecutionTimeout)
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	return func() {
		if timer != nil {
			timer.Stop()
		}
		close(done)
		<-exited
		vm.ClearInterrupt()
	}
}

// importPayload turns a Go payload into a native JS value by round-tripping
// it through JSON, so scripts see plain objects rather than wrapped Go maps.
func (r *Runtime) importPayload(payload interface{}) (goja.Value, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return goja.Undefined(), nil
	case goja.Value:
		return p, nil
	case []byte:
		raw = p
	default:
		b, err := sonic.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	return r.jsonParse(goja.Undefined(), r.vm.ToValue(string(raw)))
}

// renderJSON stringifies the original behind val so that rendering does
// not go through interception traps. Values JSON cannot express (cycles,
// functions, undefined) render as "".
func (r *Runtime) renderJSON(val goja.Value) string {
	if val == nil {
		return ""
	}
	out, err := r.stringify(goja.Undefined(), r.env.Unwrap(val))
	if err != nil || out == nil || goja.IsUndefined(out) {
		return ""
	}
	return out.String()
}

func settle(v goja.Value) (goja.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v, nil
	}
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("%w: %s", ErrRejected, p.Result().String())
	default:
		return nil, ErrGeneratePending
	}
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Environment exposes the interception context, e.g. to install proxies
// from Go between executions.
func (r *Runtime) Environment() *envproxy.Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.env
}

// Window exposes the stand-in browser globals.
func (r *Runtime) Window() *browserenv.Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.window
}

// Reset discards all script state by rebuilding the VM.
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.env = nil
	r.window = nil
	r.console = nil
	return nil
}
