// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"
	"time"

	"github.com/openet/core/pkg/types"
)

// Notifier reports task progress to the user
type Notifier interface {
	NotifyTaskStart(task string)
	NotifyTaskSuccess(task string, duration time.Duration)
	NotifyTaskFailure(task string, err error)
	NotifyRunComplete(completed, failed int, duration time.Duration)
}

// StateRecorder persists task outcomes
type StateRecorder interface {
	RecordTask(result types.TaskResult) error
}

// ConfigManager handles configuration loading and validation
type ConfigManager interface {
	LoadConfig(path string) (*types.Config, error)
	ValidateConfig(config *types.Config) error
	SaveConfig(path string, config *types.Config) error
	GetDefaultConfig() *types.Config
}

// Watcher triggers a callback when watched files settle
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}
