package browserenv

import (
	"github.com/dop251/goja"
)

// ExposeHelpers defines toObjectTag, toFnNative and definedValue as
// globals so environment scripts can shape their own stand-ins.
func ExposeHelpers(vm *goja.Runtime) error {
	global := vm.GlobalObject()

	toObjectTag := func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).ToObject(vm)
		if err := ToObjectTag(vm, target, call.Argument(1).String()); err != nil {
			panic(vm.NewGoError(err))
		}
		return target
	}

	toFnNative := func(call goja.FunctionCall) goja.Value {
		fn, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(vm.NewTypeError("toFnNative expects a function"))
		}
		if err := ToFnNative(vm, fn); err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		return fn
	}

	definedValue := func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).ToObject(vm)
		var key interface{} = call.Argument(1).String()
		if sym, ok := call.Argument(1).(*goja.Symbol); ok {
			key = sym
		}

		var attrs Attrs
		if cfg, ok := call.Argument(3).(*goja.Object); ok {
			attrs.Writable = optionalBool(cfg.Get("writable"))
			attrs.Enumerable = optionalBool(cfg.Get("enumerable"))
			attrs.Configurable = optionalBool(cfg.Get("configurable"))
		}
		if err := DefinedValue(vm, target, key, call.Argument(2), attrs); err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		return target
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"toObjectTag":  toObjectTag,
		"toFnNative":   toFnNative,
		"definedValue": definedValue,
	} {
		if err := global.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func optionalBool(v goja.Value) *bool {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	b := v.ToBoolean()
	return &b
}
