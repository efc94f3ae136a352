package envproxy

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
)

func TestLogFormatterFormat(t *testing.T) {
	vm, env, _ := newTestEnv(t)
	formatter := NewLogFormatter(LogConfig{Level: LevelHigh}, env.Values())
	key := func(s string) goja.Value { return vm.ToValue(s) }

	tests := []struct {
		name  string
		entry LogEntry
		want  string
	}{
		{
			name:  "get with value",
			entry: LogEntry{Operation: OpGet, Path: "navigator", Property: key("userAgent"), Value: vm.ToValue("UA")},
			want:  `[GET] navigator -> userAgent = "UA"`,
		},
		{
			name:  "get of undefined is still shown",
			entry: LogEntry{Operation: OpGet, Path: "navigator", Property: key("webdriver"), Value: goja.Undefined()},
			want:  "[GET] navigator -> webdriver = undefined",
		},
		{
			name: "set shows old and new",
			entry: LogEntry{
				Operation: OpSet, Path: "document.cookie", Property: key("cookie"),
				OldValue: vm.ToValue(""), Value: vm.ToValue("a=1"),
			},
			want: `[SET] document.cookie -> cookie: "" → "a=1"`,
		},
		{
			name:  "has shows boolean",
			entry: LogEntry{Operation: OpHas, Path: "window", Property: key("chrome"), Value: vm.ToValue(false)},
			want:  "[HAS] window -> chrome = false",
		},
		{
			name:  "delete without value",
			entry: LogEntry{Operation: OpDeleteProperty, Path: "cfg", Property: key("x")},
			want:  "[DELETEPROPERTY] cfg -> x",
		},
		{
			name:  "undefined value on other operations is omitted",
			entry: LogEntry{Operation: OpGetOwnPropertyDescriptor, Path: "cfg", Property: key("x"), Value: goja.Undefined()},
			want:  "[GETOWNPROPERTYDESCRIPTOR] cfg -> x",
		},
		{
			name:  "symbol property",
			entry: LogEntry{Operation: OpGet, Path: "cfg", Property: goja.NewSymbol("Symbol.iterator"), Value: goja.Undefined()},
			want:  "[GET] cfg -> Symbol(Symbol.iterator) = undefined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatter.Format(tt.entry))
		})
	}
}

func TestLogFormatterColors(t *testing.T) {
	vm, env, _ := newTestEnv(t)
	formatter := NewLogFormatter(LogConfig{Level: LevelMedium, EnableColors: true}, env.Values())

	line := formatter.Format(LogEntry{Operation: OpGet, Path: "cfg", Property: vm.ToValue("a"), Value: vm.ToValue(1)})
	assert.Contains(t, line, "\x1b[32m[GET]\x1b[0m")
	assert.Contains(t, line, "\x1b[36mcfg\x1b[0m")

	line = formatter.Format(LogEntry{Operation: OpIsExtensible, Path: "cfg", Value: vm.ToValue(true)})
	assert.Contains(t, line, "\x1b[90m[ISEXTENSIBLE]\x1b[0m")
}

func TestLogFormatterCustomFormatterWins(t *testing.T) {
	_, env, _ := newTestEnv(t)
	formatter := NewLogFormatter(LogConfig{
		CustomFormatter: func(e LogEntry) string { return e.Operation.Label() + "@" + e.Path },
	}, env.Values())

	assert.Equal(t, "GET@cfg", formatter.Format(LogEntry{Operation: OpGet, Path: "cfg"}))
}

func TestLogFormatterStackTrace(t *testing.T) {
	vm, env, _ := newTestEnv(t)
	entry := LogEntry{Operation: OpGet, Path: "cfg", Property: vm.ToValue("a"), Value: vm.ToValue(1), StackTrace: "    at f (x.js:1:1)"}

	on := NewLogFormatter(LogConfig{Level: LevelTrace, ShowStackTrace: true}, env.Values())
	assert.Equal(t, "[GET] cfg -> a = 1\n    at f (x.js:1:1)", on.Format(entry))

	off := NewLogFormatter(LogConfig{Level: LevelHigh}, env.Values())
	assert.Equal(t, "[GET] cfg -> a = 1", off.Format(entry))
}
