package envproxy

import (
	"strings"

	"github.com/dop251/goja"
	"github.com/muesli/termenv"
)

// LogEntry describes one intercepted operation. Optional fields are nil when
// absent; a present-but-undefined value is goja.Undefined().
type LogEntry struct {
	Operation  Operation
	Path       string
	Property   goja.Value
	Value      goja.Value
	OldValue   goja.Value
	TargetType string
	StackTrace string
}

// PropertyName renders the entry's key, or "" when the operation has none.
func (e LogEntry) PropertyName() string {
	return KeyString(e.Property)
}

var operationColors = map[Operation]termenv.ANSIColor{
	OpGet:            termenv.ANSIGreen,
	OpSet:            termenv.ANSIYellow,
	OpHas:            termenv.ANSIBlue,
	OpDeleteProperty: termenv.ANSIRed,
	OpOwnKeys:        termenv.ANSIMagenta,
	OpApply:          termenv.ANSICyan,
	OpConstruct:      termenv.ANSIBrightCyan,
}

const (
	greenColor   = termenv.ANSIGreen
	magentaColor = termenv.ANSIMagenta
)

// LogFormatter turns accepted entries into display lines.
type LogFormatter struct {
	config LogConfig
	values *ValueFormatter
}

// NewLogFormatter creates a formatter for the given log configuration.
func NewLogFormatter(config LogConfig, values *ValueFormatter) *LogFormatter {
	return &LogFormatter{config: config, values: values}
}

// Format renders entry. A CustomFormatter, when configured, wins.
func (f *LogFormatter) Format(entry LogEntry) string {
	if f.config.CustomFormatter != nil {
		return f.config.CustomFormatter(entry)
	}

	var b strings.Builder
	b.WriteString(f.paint("["+entry.Operation.Label()+"]", colorFor(entry.Operation)))
	b.WriteByte(' ')
	b.WriteString(f.paint(entry.Path, termenv.ANSICyan))

	if entry.Property != nil {
		b.WriteString(" -> ")
		b.WriteString(f.paint(entry.PropertyName(), termenv.ANSIYellow))
	}

	switch {
	case entry.Operation == OpSet:
		b.WriteString(": ")
		b.WriteString(f.paint(f.values.Format(entry.OldValue), termenv.ANSIRed))
		b.WriteString(" → ")
		b.WriteString(f.paint(f.values.Format(entry.Value), termenv.ANSIGreen))
	case entry.Operation == OpHas:
		b.WriteString(" = ")
		b.WriteString(f.paint(entry.Value.String(), termenv.ANSIMagenta))
	case entry.Operation == OpGet || (entry.Value != nil && !goja.IsUndefined(entry.Value)):
		// Empty reads are shown on purpose: an undefined navigator field is
		// exactly what an operator is looking for.
		b.WriteString(" = ")
		b.WriteString(f.paint(f.values.Format(entry.Value), termenv.ANSIGreen))
	}

	if f.config.ShowStackTrace && entry.StackTrace != "" {
		b.WriteByte('\n')
		b.WriteString(f.paint(entry.StackTrace, termenv.ANSIBrightBlack))
	}
	return b.String()
}

func (f *LogFormatter) paint(s string, c termenv.ANSIColor) string {
	return paint(f.config.EnableColors, s, c)
}

func paint(enabled bool, s string, c termenv.ANSIColor) string {
	if !enabled {
		return s
	}
	return termenv.String(s).Foreground(c).String()
}

func colorFor(op Operation) termenv.ANSIColor {
	if c, ok := operationColors[op]; ok {
		return c
	}
	return termenv.ANSIBrightBlack
}
