// Package notifier sends desktop notifications about export tasks
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/openet/core/pkg/logger"
)

// SendFunc delivers a notification to the desktop
type SendFunc func(title, message string) error

// TaskNotifier handles export task notifications
type TaskNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger
	send         SendFunc
	beep         func() error
}

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound string
	FailureSound string
}

// New creates a new task notifier
func New(config Config, log logger.Logger) *TaskNotifier {
	return &TaskNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       logger.OrNop(log),
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// WithSender replaces the desktop delivery, mostly for tests
func (n *TaskNotifier) WithSender(send SendFunc) *TaskNotifier {
	n.send = send
	n.beep = func() error { return nil }
	return n
}

// NotifyTaskStart notifies that an export task has started
func (n *TaskNotifier) NotifyTaskStart(task string) {
	if !n.enabled {
		return
	}
	n.sendNotification("OpenET", fmt.Sprintf("Exporting %s...", task), "")
}

// NotifyTaskSuccess notifies that an export task finished
func (n *TaskNotifier) NotifyTaskSuccess(task string, duration time.Duration) {
	if !n.enabled {
		return
	}
	n.sendNotification("Export Complete", fmt.Sprintf("%s exported in %s", task, FormatDuration(duration)), n.successSound)
}

// NotifyTaskFailure notifies that an export task failed
func (n *TaskNotifier) NotifyTaskFailure(task string, err error) {
	if !n.enabled {
		return
	}
	n.sendNotification("Export Failed", fmt.Sprintf("%s: %v", task, err), n.failureSound)
}

// NotifyRunComplete summarises a pipeline run
func (n *TaskNotifier) NotifyRunComplete(completed, failed int, duration time.Duration) {
	if !n.enabled {
		return
	}
	title := "OpenET Run Complete"
	sound := n.successSound
	if failed > 0 {
		title = "OpenET Run Finished With Failures"
		sound = n.failureSound
	}
	n.sendNotification(title, fmt.Sprintf("%d completed, %d failed in %s", completed, failed, FormatDuration(duration)), sound)
}

func (n *TaskNotifier) sendNotification(title, message, soundName string) {
	if err := n.send(title, message); err != nil {
		// Headless hosts have no notification daemon
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
	if soundName != "" {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

// FormatDuration renders d compactly for notifications and status tables
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
