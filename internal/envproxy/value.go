package envproxy

import (
	"math"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

const (
	maxArrayItems    = 10
	maxObjectKeys    = 5
	maxFormatDepth   = 3
	maxPrototypeWalk = 32
)

// ValueFormatter renders runtime values into short, bounded strings.
// Format never panics; anything that fails to render becomes "[Type]".
type ValueFormatter struct {
	refl   *reflector
	unwrap func(*goja.Object) *goja.Object
}

func newValueFormatter(refl *reflector, unwrap func(*goja.Object) *goja.Object) *ValueFormatter {
	if unwrap == nil {
		unwrap = func(o *goja.Object) *goja.Object { return o }
	}
	return &ValueFormatter{refl: refl, unwrap: unwrap}
}

// Format renders v.
func (f *ValueFormatter) Format(v goja.Value) string {
	return f.format(v, 0)
}

func (f *ValueFormatter) format(v goja.Value, depth int) (out string) {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		if s, ok := v.Export().(string); ok {
			return `"` + s + `"`
		}
		return v.String()
	}

	defer func() {
		if recover() != nil {
			out = "[" + f.DetailedType(v) + "]"
		}
	}()

	raw := f.unwrap(obj)
	if _, ok := goja.AssertFunction(raw); ok {
		name := "anonymous"
		if n, ok := f.try(f.refl.get, raw, f.refl.vm.ToValue("name")); ok && n.String() != "" {
			name = n.String()
		}
		return "[Function: " + name + "]"
	}

	if depth >= maxFormatDepth {
		return "[" + f.DetailedType(raw) + "]"
	}

	if f.isArray(raw) {
		return f.formatArray(raw, depth)
	}
	return f.formatObject(raw, depth)
}

func (f *ValueFormatter) formatArray(arr *goja.Object, depth int) string {
	lengthVal, ok := f.try(f.refl.get, arr, f.refl.vm.ToValue("length"))
	if !ok {
		return "[Array]"
	}
	length := lengthVal.ToInteger()

	n := length
	if n > maxArrayItems {
		n = maxArrayItems
	}
	items := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		item, ok := f.try(f.refl.get, arr, f.refl.vm.ToValue(strconv.FormatInt(i, 10)))
		if !ok {
			return "[Array]"
		}
		items = append(items, f.format(item, depth+1))
	}

	suffix := ""
	if length > maxArrayItems {
		suffix = "..."
	}
	return "[" + strings.Join(items, ", ") + suffix + "]"
}

func (f *ValueFormatter) formatObject(obj *goja.Object, depth int) string {
	keysVal, ok := f.try(f.refl.objectKeys, obj)
	if !ok {
		return "[" + f.DetailedType(obj) + "]"
	}
	exported, _ := keysVal.Export().([]interface{})
	if len(exported) == 0 {
		return "{}"
	}

	n := len(exported)
	if n > maxObjectKeys {
		n = maxObjectKeys
	}
	pairs := make([]string, 0, n)
	for _, k := range exported[:n] {
		key, _ := k.(string)
		val, ok := f.try(f.refl.get, obj, f.refl.vm.ToValue(key))
		if !ok {
			return "[" + f.DetailedType(obj) + "]"
		}
		pairs = append(pairs, key+": "+f.format(val, depth+1))
	}

	suffix := ""
	if len(exported) > maxObjectKeys {
		suffix = "..."
	}
	return "{ " + strings.Join(pairs, ", ") + suffix + " }"
}

// DetailedType names the category of v: null, undefined, Array, Date,
// RegExp, the constructor name of an object, or the typeof result.
// It reads only own data properties of unwrapped objects, so it never
// triggers interception.
func (f *ValueFormatter) DetailedType(v goja.Value) (name string) {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return typeOf(v)
	}

	defer func() {
		if recover() != nil {
			name = "Object"
		}
	}()

	raw := f.unwrap(obj)
	if _, ok := goja.AssertFunction(raw); ok {
		return "function"
	}
	if f.isArray(raw) {
		return "Array"
	}
	switch cls := raw.ClassName(); cls {
	case "Date", "RegExp":
		return cls
	}
	if ctor := f.constructorName(raw); ctor != "" {
		return ctor
	}
	return "Object"
}

func (f *ValueFormatter) constructorName(obj *goja.Object) string {
	key := f.refl.vm.ToValue("constructor")
	nameKey := f.refl.vm.ToValue("name")
	p := obj
	for i := 0; p != nil && i < maxPrototypeWalk; i++ {
		p = f.unwrap(p)
		if ctor, ok := f.ownData(p, key).(*goja.Object); ok {
			if name := f.ownData(f.unwrap(ctor), nameKey); name != nil && !goja.IsUndefined(name) {
				return name.String()
			}
			return ""
		}
		p = p.Prototype()
	}
	return ""
}

// ownData returns the value of an own data property, or nil.
func (f *ValueFormatter) ownData(obj *goja.Object, key goja.Value) goja.Value {
	descVal, ok := f.try(f.refl.getOwnPropertyDescriptor, obj, key)
	if !ok {
		return nil
	}
	desc, ok := descVal.(*goja.Object)
	if !ok {
		return nil
	}
	return desc.Get("value")
}

func (f *ValueFormatter) isArray(obj *goja.Object) bool {
	v, ok := f.try(f.refl.isArray, obj)
	return ok && v.ToBoolean()
}

// try calls fn and reports failure instead of throwing.
func (f *ValueFormatter) try(fn goja.Callable, args ...goja.Value) (goja.Value, bool) {
	v, err := fn(goja.Undefined(), args...)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// IsEmpty reports whether v is null, undefined, "", numeric zero or NaN.
func IsEmpty(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return true
	}
	switch v.(type) {
	case *goja.Object, *goja.Symbol:
		return false
	}
	switch x := v.Export().(type) {
	case string:
		return x == ""
	case int64:
		return x == 0
	case float64:
		return x == 0 || math.IsNaN(x)
	}
	return false
}

func typeOf(v goja.Value) string {
	if _, ok := v.(*goja.Symbol); ok {
		return "symbol"
	}
	switch v.Export().(type) {
	case string:
		return "string"
	case int64, float64:
		return "number"
	case bool:
		return "boolean"
	}
	if _, ok := v.(*goja.Object); ok {
		return "object"
	}
	return "bigint"
}
