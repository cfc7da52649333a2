// Package process inspects and signals other openet processes
package process

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"
)

// pollInterval is how often Terminate checks whether the process exited
const pollInterval = 50 * time.Millisecond

// Alive reports whether a process with pid exists and can be signaled
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Terminate sends SIGTERM and waits for the process to exit. It kills the
// process when ctx ends first.
func Terminate(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return proc.Kill()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if !Alive(pid) {
				return nil
			}
			return proc.Kill()
		case <-ticker.C:
			if !Alive(pid) {
				return nil
			}
		}
	}
}
