package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openet/core/pkg/logger"
)

// RetryPolicy describes how many times an operation is attempted and how long
// to wait between attempts.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	// Backoff returns the number of time units to wait after attempt i (1-based)
	Backoff func(i int) int
	// Unit scales Backoff, normally one second
	Unit   time.Duration
	Logger logger.Logger
}

// GetInfoPolicy backs off cubically, matching long running computations
var GetInfoPolicy = RetryPolicy{
	Name:        "get-info",
	MaxAttempts: 4,
	Backoff:     func(i int) int { return i * i * i },
	Unit:        time.Second,
}

// TaskStartPolicy backs off quadratically for task submission
var TaskStartPolicy = RetryPolicy{
	Name:        "task-start",
	MaxAttempts: 6,
	Backoff:     func(i int) int { return i * i },
	Unit:        time.Second,
}

// WithUnit returns a copy of the policy using a different time unit
func (p RetryPolicy) WithUnit(unit time.Duration) RetryPolicy {
	p.Unit = unit
	return p
}

// WithLogger returns a copy of the policy that logs each retry
func (p RetryPolicy) WithLogger(l logger.Logger) RetryPolicy {
	p.Logger = l
	return p
}

// Retryable is implemented by errors that know whether they are transient
type Retryable interface {
	Retryable() bool
}

var capacityMessages = []string{
	"memory capacity exceeded",
	"capacity exceeded",
	"too many concurrent aggregations",
	"computation timed out",
}

// IsTransient reports whether err is worth another attempt
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	msg := strings.ToLower(err.Error())
	for _, m := range capacityMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Retry calls fn until it succeeds, returns a permanent error, or the policy
// runs out of attempts.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if i == attempts {
			break
		}

		if policy.Logger != nil {
			policy.Logger.Info(fmt.Sprintf("Resending %s request (%d/%d)", policy.Name, i, attempts),
				logger.WithField("error", lastErr.Error()))
		}
		wait := time.Duration(0)
		if policy.Backoff != nil {
			wait = time.Duration(policy.Backoff(i)) * policy.Unit
		}
		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", policy.Name, ErrRetriesExhausted, lastErr)
}

// ReadyCounter reports how many tasks are queued but not yet running
type ReadyCounter interface {
	ReadyCount() int
}

// minReadyDelay is the shortest poll interval when waiting on the ready count
const minReadyDelay = 10

// DelayTask waits delay units. When maxReady is positive it keeps waiting until
// fewer than maxReady tasks are ready.
func DelayTask(ctx context.Context, delay, maxReady int, unit time.Duration, counter ReadyCounter) error {
	if delay < 0 {
		delay = 0
	}
	if maxReady <= 0 || counter == nil {
		return sleepContext(ctx, time.Duration(delay)*unit)
	}

	if delay < minReadyDelay {
		delay = minReadyDelay
	}
	for {
		if err := sleepContext(ctx, time.Duration(delay)*unit); err != nil {
			return err
		}
		if counter.ReadyCount() < maxReady {
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
