package logger

import (
	"context"

	rcontext "github.com/openet/core/pkg/context"
)

// ContextFields returns the run tracing fields stored in ctx
func ContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field
	if id := rcontext.GetRunID(ctx); id != "" {
		fields = append(fields, WithField("run_id", id))
	}
	if id := rcontext.GetTaskID(ctx); id != "" {
		fields = append(fields, WithField("task_id", id))
	}
	if tile := rcontext.GetTile(ctx); tile != "" {
		fields = append(fields, WithField("tile", tile))
	}
	if op := rcontext.GetOperation(ctx); op != "" {
		fields = append(fields, WithField("operation", op))
	}
	if d := rcontext.GetDuration(ctx); d > 0 {
		fields = append(fields, WithField("duration_ms", d.Milliseconds()))
	}
	return fields
}

// WithContext returns a logger that appends the tracing fields of ctx to every entry
func WithContext(ctx context.Context, l Logger) Logger {
	if ctx == nil || l == nil {
		return l
	}
	return &contextualLogger{ctx: ctx, logger: l}
}

type contextualLogger struct {
	ctx    context.Context
	logger Logger
}

func (cl *contextualLogger) fields(fields []Field) []Field {
	return append(ContextFields(cl.ctx), fields...)
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, cl.fields(fields)...)
}

func (cl *contextualLogger) WithTarget(target string) Logger {
	return &contextualLogger{ctx: cl.ctx, logger: cl.logger.WithTarget(target)}
}
