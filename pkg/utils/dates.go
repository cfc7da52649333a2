// Package utils holds date, range, identifier and retry helpers shared by the
// ET packages and the export pipeline.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the ISO date layout accepted on the command line
const DateFormat = "2006-01-02"

// Date0UTC truncates t to 0 UTC of the same calendar day
func Date0UTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange returns dates from start to end inclusive, stepping days at a time
func DateRange(start, end time.Time, days int, skipLeapDays bool) []time.Time {
	if days <= 0 {
		days = 1
	}
	var out []time.Time
	for curr := start; !curr.After(end); curr = curr.AddDate(0, 0, days) {
		if skipLeapDays && curr.Month() == time.February && curr.Day() == 29 {
			continue
		}
		out = append(out, curr)
	}
	return out
}

// DateYears returns every calendar year touched by [start, end]
func DateYears(start, end time.Time) []int {
	var years []int
	for y := start.Year(); y <= end.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// Millis converts t to milliseconds since the Unix epoch, truncated to the second
func Millis(t time.Time) int64 {
	return t.Unix() * 1000
}

// FromMillis converts milliseconds since the epoch to a UTC time
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ValidDate parses an ISO date string
func ValidDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ValidFile resolves path to an absolute path of an existing file
func ValidFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}
	return abs, nil
}

// IsNumber reports whether s parses as a float
func IsNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// DaysInMonth returns the number of days in the month containing t
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
