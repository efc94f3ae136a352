/*
Package monitoring provides Prometheus metrics for envtrace.

# Overview

Metrics live on a private registry so several collectors can coexist in
one process (tests, embedded use). The registry also carries the Go
runtime and process collectors.

# Features

- HTTP request metrics (latency, throughput, size) labeled by route
- Interception counters per operation kind, seen and emitted
- Script execution counts by outcome and duration histograms
- Sandbox pool occupancy gauges
- Audit stream WebSocket metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Interception counters
	env.WithRecorder(metrics)

	// Script outcomes
	result, err := bridge.Generate(ctx, nil, payload)
	metrics.RecordExecution("generate", result, err)
*/
package monitoring
