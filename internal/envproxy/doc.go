/*
Package envproxy intercepts and audits every fundamental operation performed
on a live goja object graph.

# Overview

An Environment wraps one goja runtime. Installing a configuration replaces
the value at each dotted global path (for example "navigator" or
"document.location") with a goja Proxy whose traps log the operation and
then forward it to the runtime's own Reflect functions:

	env, _ := envproxy.NewEnvironment(vm)
	level := envproxy.LevelHigh
	_, err := env.SetEnvProxy(envproxy.Options{
		Paths:     []string{"navigator", "document"},
		LogConfig: &envproxy.LogOptions{Level: &level},
	})

Reads of nested objects and functions are wrapped lazily with the path
extended by the property name. Each original object has at most one
wrapper, held weakly, so the cache never keeps script objects alive.

# Filtering

Entries pass two stages. The allow-set drops operations that were not
requested, then the level decides:

  - LOW: reads that produced null, undefined, "", 0 or NaN
  - MEDIUM: every get and set
  - HIGH: everything allowed
  - TRACE: everything allowed, with a two-frame stack excerpt

# Output

One line per accepted entry:

	[GET] navigator -> webdriver = undefined
	[SET] config.a -> a: 1 → 2

Lines go to stdout unless the Environment was given another writer.
*/
package envproxy
