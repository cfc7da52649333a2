// Package logger provides leveled, component-tagged logging for the pipeline
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used across the module
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithTarget(target string) Logger
}

// Field is a structured key/value pair attached to an entry
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// TargetLogger tags every entry with a component name (a tile, a model, a step)
type TargetLogger struct {
	logger     *logrus.Logger
	targetName string
}

const timestampFormat = "15:04:05"

// Formatter renders entries as "[time] LEVEL: [target] message {k=v}"
type Formatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.DebugLevel, logrus.TraceLevel:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	}
	if _, ok := entry.Data["success"]; ok {
		levelColor = color.New(color.FgGreen)
		levelText = "OK"
	}

	targetPrefix := ""
	if target, ok := entry.Data["target"]; ok {
		if f.DisableColors {
			targetPrefix = fmt.Sprintf("[%v] ", target)
		} else {
			targetPrefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(target))
		}
	}

	level := levelText
	if !f.DisableColors {
		level = levelColor.Sprint(levelText)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s%s", entry.Time.Format(f.TimestampFormat), level, targetPrefix, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "target" || k == "success" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, entry.Data[k])
		}
		fields := " {" + strings.Join(parts, ", ") + "}"
		if f.DisableColors {
			b.WriteString(fields)
		} else {
			b.WriteString(color.New(color.FgWhite, color.Faint).Sprint(fields))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func newLogrus(logLevel string, disableColors bool) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&Formatter{
		TimestampFormat: timestampFormat,
		DisableColors:   disableColors,
	})
	return log
}

// CreateLogger writes to stderr and, when logFile is set, appends to that file
func CreateLogger(logFile string, logLevel string) Logger {
	log := newLogrus(logLevel, false)
	log.SetOutput(os.Stderr)

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stderr, file))
		}
	}
	return &TargetLogger{logger: log}
}

// CreateLoggerWithOutput creates an uncolored logger writing to output
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	log := newLogrus(logLevel, true)
	log.SetOutput(output)
	return &TargetLogger{logger: log}
}

// WithTarget returns a logger sharing the same sink with a new component tag
func (l *TargetLogger) WithTarget(target string) Logger {
	return &TargetLogger{
		logger:     l.logger,
		targetName: target,
	}
}

func (l *TargetLogger) entry(fields []Field) *logrus.Entry {
	data := make(logrus.Fields, len(fields)+1)
	if l.targetName != "" {
		data["target"] = l.targetName
	}
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return l.logger.WithFields(data)
}

// Info logs an info message
func (l *TargetLogger) Info(message string, fields ...Field) {
	l.entry(fields).Info(message)
}

// Error logs an error message
func (l *TargetLogger) Error(message string, fields ...Field) {
	l.entry(fields).Error(message)
}

// Warn logs a warning message
func (l *TargetLogger) Warn(message string, fields ...Field) {
	l.entry(fields).Warn(message)
}

// Debug logs a debug message
func (l *TargetLogger) Debug(message string, fields ...Field) {
	l.entry(fields).Debug(message)
}

// Success logs at info level with the OK marker
func (l *TargetLogger) Success(message string, fields ...Field) {
	l.entry(append(fields, WithField("success", true))).Info(message)
}

// NopLogger discards everything
type NopLogger struct{}

// Info implements Logger
func (NopLogger) Info(string, ...Field) {}

// Error implements Logger
func (NopLogger) Error(string, ...Field) {}

// Warn implements Logger
func (NopLogger) Warn(string, ...Field) {}

// Debug implements Logger
func (NopLogger) Debug(string, ...Field) {}

// Success implements Logger
func (NopLogger) Success(string, ...Field) {}

// WithTarget implements Logger
func (n NopLogger) WithTarget(string) Logger { return n }

// OrNop returns l, or a NopLogger when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// ConsoleLogger prints short CLI status lines
type ConsoleLogger struct {
	out io.Writer
	err io.Writer
}

// NewConsoleLogger creates a console logger on stdout/stderr
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerWithOutput(os.Stdout, os.Stderr)
}

// NewConsoleLoggerWithOutput creates a console logger on the given writers
func NewConsoleLoggerWithOutput(out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{out: out, err: errOut}
}

// Info prints an info line
func (c *ConsoleLogger) Info(message string) {
	fmt.Fprintf(c.out, "%s %s\n", color.CyanString("[openet]"), message)
}

// Error prints an error line to stderr
func (c *ConsoleLogger) Error(message string) {
	fmt.Fprintf(c.err, "%s %s\n", color.RedString("[openet]"), message)
}

// Warn prints a warning line
func (c *ConsoleLogger) Warn(message string) {
	fmt.Fprintf(c.out, "%s %s\n", color.YellowString("[openet]"), message)
}

// Success prints a success line
func (c *ConsoleLogger) Success(message string) {
	fmt.Fprintf(c.out, "%s %s\n", color.GreenString("[openet]"), message)
}
