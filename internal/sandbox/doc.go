/*
Package sandbox runs untrusted page scripts against an audited browser
environment.

# Overview

Each Runtime owns one goja VM prepared in a fixed order:

 1. browserenv stand-ins (window, navigator, document, storage, XHR)
 2. envproxy entry points (setEnvProxy, createEnvProxy) and, optionally,
    the toObjectTag/toFnNative/definedValue helpers
 3. console capture and inert timers, with require/process/module removed
 4. the configured proxy installation, if any
 5. bootstrap scripts, which usually define globalThis.generateData

# Execution

Execute runs a script; Generate calls generateData(payload) and settles a
returned promise. Both are bounded by Config.Timeout and the caller's
context through goja's interrupt mechanism. A timed-out run fails with an
error matching ErrExecutionTimeout under errors.Is.

# Pooling

Pool hands runtimes out over a buffered channel and rebuilds each one on
release. Bridge sits in front of a Pool and tags every generate call with
a uuid request ID while keeping the set of in-flight calls:

	pool, err := sandbox.NewPool(cfg, 4)
	if err != nil {
		return err
	}
	defer pool.Close()

	bridge := sandbox.NewBridge(pool)
	result, err := bridge.Generate(ctx, nil, map[string]any{"url": "/api"})
*/
package sandbox
