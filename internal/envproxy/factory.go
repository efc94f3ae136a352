package envproxy

import (
	"github.com/dop251/goja"
)

// Factory builds interception wrappers for one installation. It owns the
// original-to-wrapper cache; the set of known wrappers belongs to the
// Environment.
type Factory struct {
	env    *Environment
	config *ProxyConfig
	logger *Logger
	cache  *wrapperCache
}

// NewFactory creates a factory that reports through logger.
func NewFactory(env *Environment, config *ProxyConfig, logger *Logger) *Factory {
	return &Factory{
		env:    env,
		config: config,
		logger: logger,
		cache:  newWrapperCache(),
	}
}

// Wrap returns the wrapper for target. Primitives, null, undefined and values
// that already are wrappers come back unchanged. Wrapping the same object
// twice yields the same wrapper.
func (f *Factory) Wrap(target goja.Value, path string) goja.Value {
	obj, ok := target.(*goja.Object)
	if !ok || obj == nil {
		return target
	}
	if f.env.registry.contains(obj) {
		return target
	}
	if w := f.cache.lookup(obj); w != nil {
		return w
	}

	h := &handler{
		factory:    f,
		refl:       f.env.refl,
		path:       path,
		targetType: f.env.values.DetailedType(obj),
	}
	wrapper := f.env.vm.ToValue(f.env.vm.NewProxy(obj, h.traps())).(*goja.Object)

	f.cache.store(obj, wrapper)
	f.env.registry.add(wrapper)
	return wrapper
}

// CacheSize reports how many live originals currently have a wrapper.
func (f *Factory) CacheSize() int {
	return f.cache.len()
}

// handler implements the traps of one wrapper. Its fields are fixed at
// creation; every trap call builds its own LogEntry, so re-entrant calls
// cannot interfere with each other.
type handler struct {
	factory    *Factory
	refl       *reflector
	path       string
	targetType string
}

func (h *handler) traps() *goja.ProxyTrapConfig {
	vm := h.refl.vm
	key := func(s string) goja.Value { return vm.ToValue(s) }

	return &goja.ProxyTrapConfig{
		Get: func(t *goja.Object, p string, recv goja.Value) goja.Value {
			return h.get(t, key(p), recv)
		},
		GetSym: func(t *goja.Object, p *goja.Symbol, recv goja.Value) goja.Value {
			return h.get(t, p, recv)
		},
		Set: func(t *goja.Object, p string, v goja.Value, recv goja.Value) bool {
			return h.set(t, key(p), v, recv)
		},
		SetSym: func(t *goja.Object, p *goja.Symbol, v goja.Value, recv goja.Value) bool {
			return h.set(t, p, v, recv)
		},
		Has: func(t *goja.Object, p string) bool {
			return h.has(t, key(p))
		},
		HasSym: func(t *goja.Object, p *goja.Symbol) bool {
			return h.has(t, p)
		},
		DeleteProperty: func(t *goja.Object, p string) bool {
			return h.deleteProperty(t, key(p))
		},
		DeletePropertySym: func(t *goja.Object, p *goja.Symbol) bool {
			return h.deleteProperty(t, p)
		},
		GetOwnPropertyDescriptor: func(t *goja.Object, p string) goja.PropertyDescriptor {
			return h.getOwnPropertyDescriptor(t, key(p))
		},
		GetOwnPropertyDescriptorSym: func(t *goja.Object, p *goja.Symbol) goja.PropertyDescriptor {
			return h.getOwnPropertyDescriptor(t, p)
		},
		DefineProperty: func(t *goja.Object, p string, d goja.PropertyDescriptor) bool {
			return h.defineProperty(t, key(p), d)
		},
		DefinePropertySym: func(t *goja.Object, p *goja.Symbol, d goja.PropertyDescriptor) bool {
			return h.defineProperty(t, p, d)
		},
		OwnKeys:           h.ownKeys,
		PreventExtensions: h.preventExtensions,
		GetPrototypeOf:    h.getPrototypeOf,
		SetPrototypeOf:    h.setPrototypeOf,
		IsExtensible:      h.isExtensible,
		Apply:             h.apply,
		Construct:         h.construct,
	}
}

func (h *handler) ignored(key goja.Value) bool {
	return h.factory.config.Ignores(KeyString(key))
}

func (h *handler) childPath(key goja.Value) string {
	if h.path == "" {
		return KeyString(key)
	}
	return h.path + "." + KeyString(key)
}

func (h *handler) log(op Operation, path string, key, value, old goja.Value) {
	h.factory.logger.Log(LogEntry{
		Operation:  op,
		Path:       path,
		Property:   key,
		Value:      value,
		OldValue:   old,
		TargetType: h.targetType,
	})
}

func (h *handler) get(target *goja.Object, key, receiver goja.Value) goja.Value {
	value := h.refl.call(h.refl.get, target, key, receiver)
	if h.ignored(key) {
		return value
	}
	h.log(OpGet, h.path, key, value, nil)

	if !h.factory.config.IsDeepProxy {
		return value
	}
	nested, ok := value.(*goja.Object)
	if !ok {
		return value
	}
	// A non-configurable, non-writable own property must report its exact
	// value or the runtime rejects the result.
	if desc := h.refl.descriptor(target, key); desc != nil &&
		!truthy(desc.Get("configurable")) && !truthy(desc.Get("writable")) {
		return value
	}
	return h.factory.Wrap(nested, h.childPath(key))
}

func (h *handler) set(target *goja.Object, key, value, receiver goja.Value) bool {
	if h.ignored(key) {
		return h.refl.callBool(h.refl.set, target, key, value, receiver)
	}
	old := h.refl.call(h.refl.get, target, key, receiver)
	ok := h.refl.callBool(h.refl.set, target, key, value, receiver)
	h.log(OpSet, h.childPath(key), key, value, old)
	return ok
}

func (h *handler) has(target *goja.Object, key goja.Value) bool {
	found := h.refl.callBool(h.refl.has, target, key)
	if !h.ignored(key) {
		h.log(OpHas, h.path, key, h.refl.vm.ToValue(found), nil)
	}
	return found
}

func (h *handler) deleteProperty(target *goja.Object, key goja.Value) bool {
	deleted := h.refl.callBool(h.refl.deleteProperty, target, key)
	if !h.ignored(key) {
		h.log(OpDeleteProperty, h.path, key, nil, nil)
	}
	return deleted
}

func (h *handler) getOwnPropertyDescriptor(target *goja.Object, key goja.Value) goja.PropertyDescriptor {
	desc := h.refl.call(h.refl.getOwnPropertyDescriptor, target, key)
	if !h.ignored(key) {
		h.log(OpGetOwnPropertyDescriptor, h.path, key, desc, nil)
	}
	return toPropertyDescriptor(desc)
}

func (h *handler) defineProperty(target *goja.Object, key goja.Value, desc goja.PropertyDescriptor) bool {
	descObj := h.refl.fromPropertyDescriptor(desc)
	ok := h.refl.callBool(h.refl.defineProperty, target, key, descObj)
	if !h.ignored(key) {
		h.log(OpDefineProperty, h.path, key, descObj, nil)
	}
	return ok
}

func (h *handler) ownKeys(target *goja.Object) *goja.Object {
	keys := h.refl.call(h.refl.ownKeys, target).ToObject(h.refl.vm)
	h.log(OpOwnKeys, h.path, nil, keys, nil)
	return keys
}

func (h *handler) preventExtensions(target *goja.Object) bool {
	ok := h.refl.callBool(h.refl.preventExtensions, target)
	h.log(OpPreventExtensions, h.path, nil, h.refl.vm.ToValue(ok), nil)
	return ok
}

func (h *handler) getPrototypeOf(target *goja.Object) *goja.Object {
	proto := h.refl.call(h.refl.getPrototypeOf, target)
	h.log(OpGetPrototypeOf, h.path, nil, proto, nil)
	if obj, ok := proto.(*goja.Object); ok {
		return obj
	}
	return nil
}

func (h *handler) setPrototypeOf(target *goja.Object, proto *goja.Object) bool {
	value := objectOrNull(proto)
	ok := h.refl.callBool(h.refl.setPrototypeOf, target, value)
	h.log(OpSetPrototypeOf, h.path, nil, value, nil)
	return ok
}

func (h *handler) isExtensible(target *goja.Object) bool {
	ok := h.refl.callBool(h.refl.isExtensible, target)
	h.log(OpIsExtensible, h.path, nil, h.refl.vm.ToValue(ok), nil)
	return ok
}

func (h *handler) apply(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(target)
	if !ok {
		panic(h.refl.vm.NewTypeError("%s is not a function", h.path))
	}
	result, err := fn(this, args...)
	if err != nil {
		h.refl.throw(err)
	}
	h.log(OpApply, h.path, nil, h.callRecord(args, result), nil)
	return result
}

func (h *handler) construct(target *goja.Object, args []goja.Value, newTarget *goja.Object) *goja.Object {
	ctor, ok := goja.AssertConstructor(target)
	if !ok {
		panic(h.refl.vm.NewTypeError("%s is not a constructor", h.path))
	}
	result, err := ctor(newTarget, args...)
	if err != nil {
		h.refl.throw(err)
	}
	h.log(OpConstruct, h.path, nil, h.callRecord(args, result), nil)
	return result
}

// callRecord builds the {args, result} value logged for apply and construct.
func (h *handler) callRecord(args []goja.Value, result goja.Value) *goja.Object {
	vm := h.refl.vm
	items := make([]interface{}, len(args))
	for i, a := range args {
		items[i] = a
	}
	record := vm.NewObject()
	_ = record.Set("args", vm.NewArray(items...))
	_ = record.Set("result", result)
	return record
}

func truthy(v goja.Value) bool {
	return v != nil && v.ToBoolean()
}
