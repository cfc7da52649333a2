package daemon

import "errors"

var (
	// ErrNotRunning indicates no openet process holds the project
	ErrNotRunning = errors.New("no openet process is running")

	// ErrAlreadyRunning indicates another openet process holds the project
	ErrAlreadyRunning = errors.New("openet is already running in this project")
)
