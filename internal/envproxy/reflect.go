package envproxy

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// reflector performs default object semantics through the runtime's own
// Reflect functions, captured once so scripts replacing the Reflect global
// cannot alter what the wrappers forward to.
type reflector struct {
	vm *goja.Runtime

	get                      goja.Callable
	set                      goja.Callable
	has                      goja.Callable
	deleteProperty           goja.Callable
	ownKeys                  goja.Callable
	getOwnPropertyDescriptor goja.Callable
	defineProperty           goja.Callable
	preventExtensions        goja.Callable
	getPrototypeOf           goja.Callable
	setPrototypeOf           goja.Callable
	isExtensible             goja.Callable

	objectKeys goja.Callable
	isArray    goja.Callable
}

func newReflector(vm *goja.Runtime) (*reflector, error) {
	r := &reflector{vm: vm}

	reflect := vm.Get("Reflect")
	if reflect == nil || goja.IsUndefined(reflect) {
		return nil, errors.New("envproxy: runtime has no Reflect object")
	}
	obj := reflect.ToObject(vm)

	bind := map[string]*goja.Callable{
		"get":                      &r.get,
		"set":                      &r.set,
		"has":                      &r.has,
		"deleteProperty":           &r.deleteProperty,
		"ownKeys":                  &r.ownKeys,
		"getOwnPropertyDescriptor": &r.getOwnPropertyDescriptor,
		"defineProperty":           &r.defineProperty,
		"preventExtensions":        &r.preventExtensions,
		"getPrototypeOf":           &r.getPrototypeOf,
		"setPrototypeOf":           &r.setPrototypeOf,
		"isExtensible":             &r.isExtensible,
	}
	for name, dst := range bind {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return nil, fmt.Errorf("envproxy: Reflect.%s is not a function", name)
		}
		*dst = fn
	}

	keys, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("keys"))
	if !ok {
		return nil, errors.New("envproxy: Object.keys is not a function")
	}
	r.objectKeys = keys

	isArray, ok := goja.AssertFunction(vm.Get("Array").ToObject(vm).Get("isArray"))
	if !ok {
		return nil, errors.New("envproxy: Array.isArray is not a function")
	}
	r.isArray = isArray

	return r, nil
}

// call invokes fn and rethrows any exception into the running script.
func (r *reflector) call(fn goja.Callable, args ...goja.Value) goja.Value {
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		r.throw(err)
	}
	return v
}

// throw rethrows err into the running script. Interrupts stay uncatchable.
func (r *reflector) throw(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		panic(interrupted)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex)
	}
	panic(r.vm.NewGoError(err))
}

func (r *reflector) callBool(fn goja.Callable, args ...goja.Value) bool {
	return r.call(fn, args...).ToBoolean()
}

// descriptor returns the own property descriptor of key on target, or nil
// when there is none.
func (r *reflector) descriptor(target *goja.Object, key goja.Value) *goja.Object {
	v := r.call(r.getOwnPropertyDescriptor, target, key)
	if obj, ok := v.(*goja.Object); ok {
		return obj
	}
	return nil
}

// toPropertyDescriptor converts a JS descriptor object into the trap form.
func toPropertyDescriptor(v goja.Value) goja.PropertyDescriptor {
	var desc goja.PropertyDescriptor
	obj, ok := v.(*goja.Object)
	if !ok {
		return desc
	}
	if val := obj.Get("value"); val != nil {
		desc.Value = val
	}
	desc.Writable = flagOf(obj.Get("writable"))
	desc.Configurable = flagOf(obj.Get("configurable"))
	desc.Enumerable = flagOf(obj.Get("enumerable"))
	if getter := obj.Get("get"); getter != nil {
		desc.Getter = getter
	}
	if setter := obj.Get("set"); setter != nil {
		desc.Setter = setter
	}
	return desc
}

// fromPropertyDescriptor builds the JS object Reflect.defineProperty expects.
func (r *reflector) fromPropertyDescriptor(desc goja.PropertyDescriptor) *goja.Object {
	obj := r.vm.NewObject()
	if desc.Value != nil {
		_ = obj.Set("value", desc.Value)
	}
	setFlag(obj, "writable", desc.Writable)
	setFlag(obj, "configurable", desc.Configurable)
	setFlag(obj, "enumerable", desc.Enumerable)
	if desc.Getter != nil {
		_ = obj.Set("get", desc.Getter)
	}
	if desc.Setter != nil {
		_ = obj.Set("set", desc.Setter)
	}
	return obj
}

func flagOf(v goja.Value) goja.Flag {
	if v == nil {
		return goja.FLAG_NOT_SET
	}
	if v.ToBoolean() {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

func setFlag(obj *goja.Object, name string, f goja.Flag) {
	switch f {
	case goja.FLAG_TRUE:
		_ = obj.Set(name, true)
	case goja.FLAG_FALSE:
		_ = obj.Set(name, false)
	}
}

// objectOrNull turns a possibly nil prototype into a JS value.
func objectOrNull(o *goja.Object) goja.Value {
	if o == nil {
		return goja.Null()
	}
	return o
}

// KeyString renders a property key the way it appears in log lines and in
// the ignore set: string keys verbatim, symbols as Symbol(description).
func KeyString(key goja.Value) string {
	if key == nil {
		return ""
	}
	if sym, ok := key.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}
	return key.String()
}
