package envproxy

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFormatterFormat(t *testing.T) {
	vm, env, _ := newTestEnv(t)
	values := env.Values()

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"string", `"abc"`, `"abc"`},
		{"integer", `42`, "42"},
		{"float", `1.5`, "1.5"},
		{"nan", `NaN`, "NaN"},
		{"boolean", `true`, "true"},
		{"null", `null`, "null"},
		{"undefined", `undefined`, "undefined"},
		{"symbol", `Symbol("tag")`, "Symbol(tag)"},
		{"named function", `(function fetchData() {})`, "[Function: fetchData]"},
		{"anonymous function", `(() => {})`, "[Function: anonymous]"},
		{"array", `[1, "b", null]`, `[1, "b", null]`},
		{"long array", `Array.from({length: 12}, (_, i) => i)`, "[0, 1, 2, 3, 4, 5, 6, 7, 8, 9...]"},
		{"empty object", `({})`, "{}"},
		{"object", `({a: 1, b: "x"})`, `{ a: 1, b: "x" }`},
		{"wide object", `({a: 1, b: 2, c: 3, d: 4, e: 5, f: 6})`, "{ a: 1, b: 2, c: 3, d: 4, e: 5... }"},
		{"deep object", `({a: {b: {c: {d: 1}}}})`, "{ a: { b: { c: [Object] } } }"},
		{"throwing getter", `({get boom() { throw new Error("no"); }})`, "[Object]"},
		{"cycle", `(function () { var o = {}; o.o = o; return o; })()`, "{ o: { o: { o: [Object] } } }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustRun(t, vm, tt.expr)
			assert.Equal(t, tt.want, values.Format(v))
		})
	}
}

func TestValueFormatterReadsThroughWrappers(t *testing.T) {
	vm, env, buf := newTestEnv(t)
	mustRun(t, vm, `globalThis.cfg = {a: 1, list: [1, 2]}`)
	mustInstall(t, env, plainOptions(LevelHigh, "cfg"))
	buf.Reset()

	wrapped := mustRun(t, vm, `cfg`)
	require.True(t, env.IsWrapper(wrapped))
	assert.Equal(t, "{ a: 1, list: [1, 2] }", env.Values().Format(wrapped))
	assert.Equal(t, "Object", env.Values().DetailedType(wrapped))
	assert.Empty(t, buf.String())
}

func TestValueFormatterDetailedType(t *testing.T) {
	vm, env, _ := newTestEnv(t)
	values := env.Values()

	tests := []struct {
		expr string
		want string
	}{
		{`null`, "null"},
		{`undefined`, "undefined"},
		{`1`, "number"},
		{`"s"`, "string"},
		{`false`, "boolean"},
		{`Symbol()`, "symbol"},
		{`(function () {})`, "function"},
		{`[]`, "Array"},
		{`new Date(0)`, "Date"},
		{`/x/`, "RegExp"},
		{`({})`, "Object"},
		{`Object.create(null)`, "Object"},
		{`new (class Plugin {})()`, "Plugin"},
		{`new Map()`, "Map"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, values.DetailedType(mustRun(t, vm, tt.expr)))
		})
	}
}

func TestIsEmpty(t *testing.T) {
	vm := goja.New()

	tests := []struct {
		name  string
		value goja.Value
		want  bool
	}{
		{"nil", nil, true},
		{"undefined", goja.Undefined(), true},
		{"null", goja.Null(), true},
		{"empty string", vm.ToValue(""), true},
		{"zero", vm.ToValue(0), true},
		{"float zero", vm.ToValue(0.0), true},
		{"nan", goja.NaN(), true},
		{"text", vm.ToValue("a"), false},
		{"one", vm.ToValue(1), false},
		{"false", vm.ToValue(false), false},
		{"object", vm.NewObject(), false},
		{"symbol", goja.NewSymbol(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.value))
		})
	}
}
