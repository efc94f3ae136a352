package sandbox

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/browserenv"
	"github.com/GriffinCanCode/envtrace/internal/envproxy"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed       = errors.New("sandbox pool is closed")
	ErrTimeout          = errors.New("sandbox acquisition timeout")
	ErrExecutionTimeout = errors.New("sandbox: execution timeout exceeded")
	ErrNoGenerator      = errors.New("sandbox: globalThis.generateData is not a function")
	ErrGeneratePending  = errors.New("sandbox: generateData returned a promise that never settled")
)

// Config defines sandbox configuration
type Config struct {
	Timeout        time.Duration // Execution timeout, 0 for none
	AcquireTimeout time.Duration // How long Pool.Acquire waits for a free runtime
	MaxCallStack   int           // Maximum JS call stack depth, 0 for the engine default
	EnableConsole  bool          // Capture console.log/warn/error/info/debug
	ExposeHelpers  bool          // Define toObjectTag/toFnNative/definedValue globals

	Profile   browserenv.Profile   // Stand-in browser values
	Transport browserenv.Transport // XMLHttpRequest traffic, offline when nil

	// Proxy is installed into every fresh runtime when set. Scripts can
	// still call setEnvProxy themselves.
	Proxy *envproxy.Options

	// Bootstrap scripts run once per fresh runtime, after the environment
	// is installed. This is where generateData is usually defined.
	Bootstrap []Script

	// Sinks shared by every runtime of a pool; writers must be safe for
	// concurrent use.
	Output   io.Writer
	Audit    *zap.Logger
	Recorder envproxy.Recorder
}

// Script is a named piece of source.
type Script struct {
	Name   string
	Source string
}

// Result holds execution result
type Result struct {
	RequestID string               // Bridge request ID, empty for plain executions
	Value     interface{}          // Return value
	JSON      string               // JSON.stringify of the value, "" when not representable
	Console   []LogEntry           // Console output
	Requests  []browserenv.Request // XMLHttpRequest and beacon traffic
	Duration  time.Duration        // Execution time
	Error     error                // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`   // log, warn, error, info, debug
	Message string    `json:"message"` // Log message
	Time    time.Time `json:"time"`    // Timestamp
}

// Sandbox defines the JavaScript execution interface
type Sandbox interface {
	Execute(ctx context.Context, script Script) (*Result, error)
	Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error)
	Reset() error
	Close() error
}

// DefaultConfig returns settings suited to auditing a single page script.
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Second,
		AcquireTimeout: 5 * time.Second,
		MaxCallStack:   1024,
		EnableConsole:  true,
		ExposeHelpers:  true,
		Profile:        browserenv.DefaultProfile(),
	}
}
