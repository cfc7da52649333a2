package interpolate

import (
	"fmt"
	"time"

	"github.com/openet/core/pkg/utils"
)

// TInterval is the aggregation period of scene interpolation output
type TInterval string

// Supported intervals
const (
	IntervalDaily   TInterval = "daily"
	IntervalMonthly TInterval = "monthly"
	IntervalAnnual  TInterval = "annual"
	IntervalCustom  TInterval = "custom"
)

// ParseTInterval validates an interval name
func ParseTInterval(s string) (TInterval, error) {
	switch t := TInterval(s); t {
	case IntervalDaily, IntervalMonthly, IntervalAnnual, IntervalCustom:
		return t, nil
	case "":
		return "", ErrMissingInterval
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidInterval, s)
	}
}

// indexFormat is the image index layout for the interval
func (t TInterval) indexFormat() string {
	switch t {
	case IntervalMonthly:
		return "200601"
	case IntervalAnnual:
		return "2006"
	default:
		return "20060102"
	}
}

// period is a half open [Start, End) aggregation window
type period struct {
	Start time.Time
	End   time.Time
}

func (p period) days() int {
	return int(p.End.Sub(p.Start) / day)
}

// Bounds expands start and end to whole months or years for those intervals.
// End is exclusive.
func (t TInterval) Bounds(start, end time.Time) (time.Time, time.Time) {
	start, end = utils.Date0UTC(start), utils.Date0UTC(end)
	switch t {
	case IntervalMonthly:
		s := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		e := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		if e.Before(end) {
			e = e.AddDate(0, 1, 0)
		}
		return s, e
	case IntervalAnnual:
		s := time.Date(start.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		e := time.Date(end.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		if e.Before(end) {
			e = e.AddDate(1, 0, 0)
		}
		return s, e
	}
	return start, end
}

// Windows returns the [start, end) aggregation windows covering the bounded
// range, one per output image
func (t TInterval) Windows(start, end time.Time) [][2]time.Time {
	s, e := t.Bounds(start, end)
	var out [][2]time.Time
	for _, p := range t.periods(s, e) {
		out = append(out, [2]time.Time{p.Start, p.End})
	}
	return out
}

// Index formats a window start the way output images are indexed
func (t TInterval) Index(start time.Time) string {
	return start.Format(t.indexFormat())
}

// periods splits [start, end) into aggregation windows
func (t TInterval) periods(start, end time.Time) []period {
	if t == IntervalCustom {
		return []period{{start, end}}
	}

	var out []period
	for s := start; s.Before(end); {
		var e time.Time
		switch t {
		case IntervalMonthly:
			e = s.AddDate(0, 1, 0)
		case IntervalAnnual:
			e = s.AddDate(1, 0, 0)
		default:
			e = s.AddDate(0, 0, 1)
		}
		out = append(out, period{s, e})
		s = e
	}
	return out
}
