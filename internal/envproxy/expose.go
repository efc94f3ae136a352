package envproxy

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// Expose defines setEnvProxy(options) and createEnvProxy(paths, options)
// on the global object so scripts can configure interception themselves.
// Invalid options throw a TypeError in the calling script.
func (e *Environment) Expose() error {
	if err := e.global.Set("setEnvProxy", e.jsSetEnvProxy); err != nil {
		return err
	}
	return e.global.Set("createEnvProxy", e.jsCreateEnvProxy)
}

func (e *Environment) jsSetEnvProxy(call goja.FunctionCall) goja.Value {
	opts, err := e.parseOptions(call.Argument(0))
	if err == nil {
		_, err = e.SetEnvProxy(opts)
	}
	if err != nil {
		panic(e.vm.NewTypeError("%s", err.Error()))
	}
	return goja.Undefined()
}

func (e *Environment) jsCreateEnvProxy(call goja.FunctionCall) goja.Value {
	opts, err := e.parseOptions(call.Argument(1))
	if err == nil {
		opts.Paths, err = e.stringList(call.Argument(0), "paths")
	}
	if err == nil {
		_, err = e.CreateEnvProxy(opts.Paths, opts)
	}
	if err != nil {
		panic(e.vm.NewTypeError("%s", err.Error()))
	}
	return goja.Undefined()
}

// parseOptions reads a script-side options object. A missing argument is
// treated as an empty object so the paths check reports the problem.
func (e *Environment) parseOptions(arg goja.Value) (Options, error) {
	var opts Options
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return opts, nil
	}
	obj, ok := arg.(*goja.Object)
	if !ok {
		return opts, fmt.Errorf("options must be an object")
	}

	paths, err := e.stringList(obj.Get("paths"), "paths")
	if err != nil {
		return opts, err
	}
	opts.Paths = paths

	if logCfg, ok := obj.Get("logConfig").(*goja.Object); ok {
		lo, err := e.parseLogOptions(logCfg)
		if err != nil {
			return opts, err
		}
		opts.LogConfig = lo
	}

	if v := obj.Get("ignoredProperties"); present(v) {
		keys, ok := v.Export().([]interface{})
		if !ok {
			return opts, fmt.Errorf("ignoredProperties must be an array")
		}
		arr := v.ToObject(e.vm)
		for i := range keys {
			opts.IgnoredProperties = append(opts.IgnoredProperties, KeyString(arr.Get(strconv.Itoa(i))))
		}
	}

	if v := obj.Get("isDeepProxy"); present(v) {
		deep := v.ToBoolean()
		opts.IsDeepProxy = &deep
	}

	if v := obj.Get("allowedOperations"); present(v) {
		if s, ok := v.Export().(string); ok {
			opts.AllowedOperations = []string{s}
		} else {
			ops, err := e.stringList(v, "allowedOperations")
			if err != nil {
				return opts, err
			}
			opts.AllowedOperations = ops
		}
	}
	return opts, nil
}

func (e *Environment) parseLogOptions(obj *goja.Object) (*LogOptions, error) {
	lo := &LogOptions{}

	if v := obj.Get("level"); present(v) {
		level, err := ParseLevel(v.String())
		if err != nil {
			return nil, err
		}
		lo.Level = &level
	}
	if v := obj.Get("enableColors"); present(v) {
		colors := v.ToBoolean()
		lo.EnableColors = &colors
	}
	if v := obj.Get("customFormatter"); present(v) {
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, fmt.Errorf("logConfig.customFormatter must be a function")
		}
		lo.CustomFormatter = e.scriptFormatter(fn)
	}
	return lo, nil
}

// scriptFormatter adapts a script function to the CustomFormatter hook.
// A throwing formatter yields a plain line naming the failure.
func (e *Environment) scriptFormatter(fn goja.Callable) func(LogEntry) string {
	return func(entry LogEntry) string {
		obj := e.vm.NewObject()
		_ = obj.Set("operation", entry.Operation.String())
		_ = obj.Set("path", entry.Path)
		_ = obj.Set("targetType", entry.TargetType)
		for name, v := range map[string]goja.Value{
			"property": entry.Property,
			"value":    entry.Value,
			"oldValue": entry.OldValue,
		} {
			if v != nil {
				_ = obj.Set(name, v)
			}
		}
		if entry.StackTrace != "" {
			_ = obj.Set("stackTrace", entry.StackTrace)
		}

		out, err := fn(goja.Undefined(), obj)
		if err != nil {
			return fmt.Sprintf("[%s] %s (customFormatter: %v)", entry.Operation.Label(), entry.Path, err)
		}
		return out.String()
	}
}

func (e *Environment) stringList(v goja.Value, field string) ([]string, error) {
	if !present(v) {
		return nil, nil
	}
	items, ok := v.Export().([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array", field)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", field)
		}
		out = append(out, s)
	}
	return out, nil
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
