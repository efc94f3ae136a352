package monitoring

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/sandbox"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolated(t *testing.T) {
	// Two collectors must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.RecordOperation("get", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.OperationsIntercepted.WithLabelValues("get")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OperationsIntercepted.WithLabelValues("get")))
}

func TestRecordOperation(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("get", true)
	m.RecordOperation("get", false)
	m.RecordOperation("ownKeys", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsIntercepted.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsEmitted.WithLabelValues("get")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OperationsEmitted.WithLabelValues("ownKeys")))

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.Intercepted)
	assert.Equal(t, int64(1), s.Emitted)
}

func TestRecordExecution(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"success", nil, "ok"},
		{"timeout", sandbox.ErrExecutionTimeout, "timeout"},
		{"pool busy", sandbox.ErrTimeout, "unavailable"},
		{"pool closed", sandbox.ErrPoolClosed, "unavailable"},
		{"no generator", sandbox.ErrNoGenerator, "no_generator"},
		{"script error", errors.New("ReferenceError"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			result := &sandbox.Result{
				Duration: 20 * time.Millisecond,
				Requests: []browserenv.Request{{URL: "/a"}, {URL: "/b"}},
			}
			m.RecordExecution("generate", result, tt.err)

			assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("generate", tt.status)))
			assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboundRequests))
		})
	}

	m := NewMetrics()
	m.RecordExecution("execute", nil, sandbox.ErrPoolClosed)
	assert.Equal(t, int64(1), m.Snapshot().FailedScripts)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OutboundRequests))
}

func TestObservePool(t *testing.T) {
	m := NewMetrics()
	m.ObservePool(sandbox.PoolStats{Size: 4, Available: 3, InUse: 1})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.PoolSize))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolAvailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolInUse))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "envtrace_http_requests_total"))
	assert.True(t, strings.Contains(body, "envtrace_uptime_seconds"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "envtrace_http_requests_total")
}
