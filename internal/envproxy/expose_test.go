package envproxy

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposedSetEnvProxy(t *testing.T) {
	vm, env, buf := newTestEnv(t)
	require.NoError(t, env.Expose())

	mustRun(t, vm, `
		setEnvProxy({
			paths: ["config"],
			logConfig: { level: 1, enableColors: false },
		});
	`)
	assert.Contains(t, buf.String(), "log level:  MEDIUM")

	buf.Reset()
	mustRun(t, vm, `config.a = 1; config.a = 2; config.a;`)
	assert.Equal(t, []string{
		"[SET] config.a -> a: undefined → 1",
		"[SET] config.a -> a: 1 → 2",
		"[GET] config -> a = 2",
	}, entryLines(buf))
}

func TestExposedSetEnvProxyOptions(t *testing.T) {
	vm, env, buf := newTestEnv(t)
	require.NoError(t, env.Expose())

	mustRun(t, vm, `
		globalThis.api = { ping: function () { return "pong"; }, hidden: 1 };
		setEnvProxy({
			paths: ["api"],
			logConfig: { level: "HIGH", enableColors: false },
			allowedOperations: ["apply"],
			ignoredProperties: ["hidden"],
			isDeepProxy: true,
		});
	`)
	buf.Reset()
	mustRun(t, vm, `api.hidden; api.ping();`)
	assert.Equal(t, []string{`[APPLY] api.ping = { args: [], result: "pong" }`}, entryLines(buf))
}

func TestExposedCustomFormatter(t *testing.T) {
	vm, env, buf := newTestEnv(t)
	require.NoError(t, env.Expose())

	mustRun(t, vm, `
		globalThis.cfg = { a: 1 };
		createEnvProxy(["cfg"], {
			logConfig: {
				enableColors: false,
				customFormatter: function (e) { return e.operation + ":" + e.path + ":" + e.property; },
			},
		});
	`)
	buf.Reset()
	mustRun(t, vm, `cfg.a`)
	assert.Equal(t, "get:cfg:a\n", buf.String())
}

func TestExposedSetEnvProxyRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty paths", `setEnvProxy({paths: []})`},
		{"missing options", `setEnvProxy()`},
		{"paths not an array", `setEnvProxy({paths: "navigator"})`},
		{"unknown operation", `setEnvProxy({paths: ["a"], allowedOperations: ["enumerate"]})`},
		{"bad level", `setEnvProxy({paths: ["a"], logConfig: {level: 9}})`},
		{"formatter not a function", `setEnvProxy({paths: ["a"], logConfig: {customFormatter: 1}})`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, env, _ := newTestEnv(t)
			require.NoError(t, env.Expose())
			before := vm.GlobalObject().Keys()

			_, err := vm.RunString(tt.script)
			var ex *goja.Exception
			require.True(t, errors.As(err, &ex), "expected a script exception, got %v", err)
			assert.Contains(t, ex.Error(), "TypeError")
			assert.Equal(t, before, vm.GlobalObject().Keys())
		})
	}
}
