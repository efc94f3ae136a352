package envproxy

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const stackExcerptFrames = 2

// Recorder receives per-operation counts. Implemented by the monitoring package.
type Recorder interface {
	RecordOperation(op string, emitted bool)
}

// Logger is the policy evaluator: it decides whether an entry is emitted and
// writes accepted entries as one line each.
type Logger struct {
	config    *ProxyConfig
	formatter *LogFormatter
	vm        *goja.Runtime
	out       io.Writer
	audit     *zap.Logger
	recorder  Recorder
}

// NewLogger creates a logger writing to stdout.
func NewLogger(config *ProxyConfig, formatter *LogFormatter, vm *goja.Runtime) *Logger {
	return &Logger{
		config:    config,
		formatter: formatter,
		vm:        vm,
		out:       os.Stdout,
	}
}

// WithOutput redirects emitted lines.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if w != nil {
		l.out = w
	}
	return l
}

// WithAudit mirrors every emitted entry to a structured logger.
func (l *Logger) WithAudit(logger *zap.Logger) *Logger {
	l.audit = logger
	return l
}

// WithRecorder counts intercepted and emitted operations.
func (l *Logger) WithRecorder(r Recorder) *Logger {
	l.recorder = r
	return l
}

// Log emits entry if it passes the allow-set and the verbosity level.
func (l *Logger) Log(entry LogEntry) {
	emit := l.ShouldLog(entry)
	if l.recorder != nil {
		l.recorder.RecordOperation(entry.Operation.String(), emit)
	}
	if !emit {
		return
	}

	if l.config.LogConfig.ShowStackTrace {
		entry.StackTrace = l.stackExcerpt()
	}

	line := l.formatter.Format(entry)
	_, _ = io.WriteString(l.out, line+"\n")

	if l.audit != nil {
		l.audit.Info("intercepted",
			zap.String("operation", entry.Operation.String()),
			zap.String("path", entry.Path),
			zap.String("property", entry.PropertyName()),
			zap.String("target_type", entry.TargetType),
			zap.String("value", l.formatter.values.Format(entry.Value)),
		)
	}
}

// ShouldLog applies the two filter stages. The allow-set and the level are
// combined with AND: an operation must be allowed and pass its level.
func (l *Logger) ShouldLog(entry LogEntry) bool {
	if !l.config.AllowedOperations.Allows(entry.Operation) {
		return false
	}

	switch l.config.LogConfig.Level {
	case LevelLow:
		return entry.Operation == OpGet && IsEmpty(entry.Value)
	case LevelMedium:
		return entry.Operation == OpGet || entry.Operation == OpSet
	case LevelHigh, LevelTrace:
		return true
	default:
		return false
	}
}

// stackExcerpt returns the innermost script frames of the current call.
func (l *Logger) stackExcerpt() string {
	if l.vm == nil {
		return ""
	}
	frames := l.vm.CaptureCallStack(0, nil)

	var lines []string
	for i := range frames {
		if frames[i].SrcName() == "<native>" {
			continue
		}
		var buf bytes.Buffer
		frames[i].Write(&buf)
		lines = append(lines, "    at "+buf.String())
		if len(lines) == stackExcerptFrames {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Summary writes the one-time installation block.
func (l *Logger) Summary() {
	cfg := l.config
	colors := cfg.LogConfig.EnableColors
	green := func(s string) string { return paint(colors, s, greenColor) }

	filters := "none"
	if !cfg.AllowedOperations.All() {
		filters = green(strings.Join(cfg.AllowedOperations.Names(), ", "))
	}
	deep := "false"
	if cfg.IsDeepProxy {
		deep = "true"
	}

	var b strings.Builder
	b.WriteString("\n" + paint(colors, "--- environment proxy installed ---", magentaColor) + "\n")
	b.WriteString("paths:      " + green(strings.Join(cfg.Paths, ", ")) + "\n")
	b.WriteString("log level:  " + green(cfg.LogConfig.Level.String()) + "\n")
	b.WriteString("operations: " + filters + "\n")
	b.WriteString("deep proxy: " + green(deep) + "\n")
	b.WriteString(paint(colors, "-----------------------------------", magentaColor) + "\n\n")
	_, _ = io.WriteString(l.out, b.String())
}
