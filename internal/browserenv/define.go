package browserenv

import (
	"fmt"

	"github.com/dop251/goja"
)

// Attrs overrides the attribute defaults of DefinedValue.
type Attrs struct {
	Writable     *bool
	Enumerable   *bool
	Configurable *bool
}

func flag(v *bool, def bool) goja.Flag {
	if v != nil {
		def = *v
	}
	if def {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// DefinedValue defines key on target as a data property. Unless attrs says
// otherwise the property is writable, configurable and not enumerable. key
// is a string or a *goja.Symbol.
func DefinedValue(vm *goja.Runtime, target *goja.Object, key interface{}, value interface{}, attrs ...Attrs) error {
	var a Attrs
	if len(attrs) > 0 {
		a = attrs[0]
	}
	writable := flag(a.Writable, true)
	enumerable := flag(a.Enumerable, false)
	configurable := flag(a.Configurable, true)

	v := vm.ToValue(value)
	switch k := key.(type) {
	case string:
		return target.DefineDataProperty(k, v, writable, configurable, enumerable)
	case *goja.Symbol:
		return target.DefineDataPropertySymbol(k, v, writable, configurable, enumerable)
	default:
		return fmt.Errorf("browserenv: unsupported property key %T", key)
	}
}

// ToObjectTag makes Object.prototype.toString report name for target. The
// global object gets the tag as an own property; any other object gets it
// on its own prototype so the tag does not show up in its own keys.
func ToObjectTag(vm *goja.Runtime, target *goja.Object, name string) error {
	if target == vm.GlobalObject() {
		return DefinedValue(vm, target, goja.SymToStringTag, name)
	}
	proto, err := ownPrototype(vm, target)
	if err != nil {
		return err
	}
	return DefinedValue(vm, proto, goja.SymToStringTag, name)
}

// ToFnNative makes fn and its toLocaleString render like a built-in:
// "function name() { [native code] }".
func ToFnNative(vm *goja.Runtime, fn *goja.Object) error {
	if _, ok := goja.AssertFunction(fn); !ok {
		return fmt.Errorf("browserenv: toFnNative expects a function")
	}
	proto, err := ownPrototype(vm, fn)
	if err != nil {
		return err
	}

	native := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		name := ""
		if obj, ok := call.This.(*goja.Object); ok {
			if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
				name = n.String()
			}
		}
		return vm.ToValue("function " + name + "() { [native code] }")
	})
	_ = nameFunction(vm, native.(*goja.Object), "toString")

	for _, name := range []string{"toString", "toLocaleString"} {
		if err := DefinedValue(vm, proto, name, native); err != nil {
			return err
		}
	}
	return nil
}

// ownPrototype returns a prototype that belongs to target alone. Targets
// still inheriting directly from a shared built-in prototype get a fresh
// intermediate one, so tagging them never leaks onto every other object.
func ownPrototype(vm *goja.Runtime, target *goja.Object) (*goja.Object, error) {
	proto := target.Prototype()
	if proto != nil && !isSharedPrototype(vm, proto) {
		return proto, nil
	}
	own := vm.CreateObject(proto)
	if err := target.SetPrototype(own); err != nil {
		return nil, err
	}
	return own, nil
}

func isSharedPrototype(vm *goja.Runtime, proto *goja.Object) bool {
	for _, ctor := range []string{"Object", "Function"} {
		c, ok := vm.Get(ctor).(*goja.Object)
		if !ok {
			continue
		}
		if p, ok := c.Get("prototype").(*goja.Object); ok && p == proto {
			return true
		}
	}
	return false
}

// nameFunction overrides the name goja derives from the Go symbol.
func nameFunction(vm *goja.Runtime, fn *goja.Object, name string) error {
	return fn.DefineDataProperty("name", vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}
