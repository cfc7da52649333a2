// Package context carries run and tile identifiers through a pipeline run so
// log lines from concurrent workers can be told apart.
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	taskIDKey
	tileKey
	operationKey
	startTimeKey
)

// WithRunID tags the context with a run ID, generating one when empty
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID returns the run ID or an empty string
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithTaskID tags the context with a queued task ID
func WithTaskID(parent context.Context, taskID string) context.Context {
	return context.WithValue(parent, taskIDKey, taskID)
}

// GetTaskID returns the task ID or an empty string
func GetTaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}

// WithTile tags the context with the export tile being processed
func WithTile(parent context.Context, tile string) context.Context {
	return context.WithValue(parent, tileKey, tile)
}

// GetTile returns the tile index or an empty string
func GetTile(ctx context.Context) string {
	tile, _ := ctx.Value(tileKey).(string)
	return tile
}

// WithOperation names the pipeline step (interpolate, aggregate, ensemble)
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation returns the operation name or an empty string
func GetOperation(ctx context.Context) string {
	op, _ := ctx.Value(operationKey).(string)
	return op
}

// WithStartTime records when the operation started
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetDuration returns the time since the recorded start, or 0
func GetDuration(ctx context.Context) time.Duration {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(t)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// EnrichContext adds a run ID if missing and resets the start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if GetRunID(ctx) == "" {
		ctx = WithRunID(ctx, "")
	}
	return WithStartTime(ctx, time.Now())
}
