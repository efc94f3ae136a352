package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/api/middleware"
	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/envtrace/internal/sandbox"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Executor runs scripts on pooled runtimes.
type Executor interface {
	Execute(ctx context.Context, script sandbox.Script) (*sandbox.Result, error)
	Stats() sandbox.PoolStats
}

// Handlers holds the HTTP bridge endpoints.
type Handlers struct {
	pool    Executor
	bridge  *sandbox.Bridge
	metrics *monitoring.Metrics
	clients func() int
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates handlers. clients reports audit stream subscribers
// and may be nil.
func NewHandlers(pool Executor, bridge *sandbox.Bridge, metrics *monitoring.Metrics, clients func() int, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &Handlers{
		pool:    pool,
		bridge:  bridge,
		metrics: metrics,
		clients: clients,
		logger:  logger,
		started: time.Now(),
	}
}

// GenerateRequest is the body of POST /generate. Script, when present, runs
// before generateData is called and may define it.
type GenerateRequest struct {
	Name    string      `json:"name"`
	Script  string      `json:"script"`
	Payload interface{} `json:"payload"`
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

// ResultResponse is returned by both script endpoints.
type ResultResponse struct {
	RequestID  string               `json:"request_id"`
	Value      interface{}          `json:"value"`
	Console    []sandbox.LogEntry   `json:"console"`
	Requests   []browserenv.Request `json:"requests"`
	DurationMS float64              `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
	Kind       string               `json:"kind,omitempty"`
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"service": "envtrace",
		"endpoints": []string{
			"POST /generate", "POST /execute", "GET /pending",
			"GET /health", "GET /metrics", "GET /ws/audit",
		},
	})
}

// Health reports pool occupancy and running totals.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.pool.Stats()
	if h.metrics != nil {
		h.metrics.ObservePool(stats)
	}

	status, code := "ok", http.StatusOK
	if stats.Closed {
		status, code = "closed", http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":         status,
		"uptime_seconds": time.Since(h.started).Seconds(),
		"pool":           stats,
		"pending":        len(h.bridge.Pending()),
		"audit_clients":  h.clients(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	respond(c, code, body)
}

// Pending lists in-flight generate requests.
func (h *Handlers) Pending(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"pending": h.bridge.Pending()})
}

// Generate calls generateData on a pooled runtime.
func (h *Handlers) Generate(c *gin.Context) {
	var req GenerateRequest
	if !decode(c, &req) {
		return
	}

	var script *sandbox.Script
	if req.Script != "" {
		script = &sandbox.Script{Name: scriptName(req.Name, "generate.js"), Source: req.Script}
	}

	ctx := sandbox.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
	result, err := h.bridge.Generate(ctx, script, req.Payload)
	h.finish(c, "generate", result, err)
}

// Execute runs a script on a pooled runtime.
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if !decode(c, &req) {
		return
	}
	if req.Script == "" {
		respond(c, http.StatusBadRequest, gin.H{"error": "script is required"})
		return
	}

	result, err := h.pool.Execute(c.Request.Context(), sandbox.Script{Name: scriptName(req.Name, "execute.js"), Source: req.Script})
	if result != nil && result.RequestID == "" {
		result.RequestID = middleware.GetRequestID(c)
	}
	h.finish(c, "execute", result, err)
}

func (h *Handlers) finish(c *gin.Context, kind string, result *sandbox.Result, err error) {
	if h.metrics != nil {
		h.metrics.RecordExecution(kind, result, err)
		h.metrics.ObservePool(h.pool.Stats())
	}

	resp := ResultResponse{RequestID: middleware.GetRequestID(c)}
	if result != nil {
		resp.RequestID = result.RequestID
		resp.Console = result.Console
		resp.Requests = result.Requests
		resp.DurationMS = float64(result.Duration.Microseconds()) / 1000
		if result.JSON != "" {
			var v interface{}
			if sonic.UnmarshalString(result.JSON, &v) == nil {
				resp.Value = v
			}
		}
	}

	code := http.StatusOK
	if err != nil {
		code, resp.Kind = classify(err)
		resp.Error = err.Error()
		h.logger.Info("Script failed",
			zap.String("kind", kind),
			zap.String("request_id", resp.RequestID),
			zap.String("error_kind", resp.Kind),
			zap.Error(err),
		)
	}
	respond(c, code, resp)
}

// classify maps an execution error to an HTTP status and a short kind.
func classify(err error) (int, string) {
	var ex *goja.Exception
	switch {
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "cancelled"
	case errors.Is(err, sandbox.ErrTimeout), errors.Is(err, sandbox.ErrPoolClosed):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, sandbox.ErrNoGenerator):
		return http.StatusUnprocessableEntity, "no_generator"
	case errors.Is(err, sandbox.ErrRejected), errors.Is(err, sandbox.ErrGeneratePending):
		return http.StatusUnprocessableEntity, "rejected"
	case errors.As(err, &ex):
		return http.StatusUnprocessableEntity, "script_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decode(c *gin.Context, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		respond(c, http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return false
	}
	if len(body) == 0 {
		respond(c, http.StatusBadRequest, gin.H{"error": "request body is required"})
		return false
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return false
	}
	return true
}

func respond(c *gin.Context, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})
		return
	}
	c.Data(code, "application/json; charset=utf-8", data)
}

func scriptName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
