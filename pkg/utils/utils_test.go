package utils_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openet/core/pkg/utils"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDate0UTC(t *testing.T) {
	in := time.Date(2017, 7, 16, 12, 34, 56, 0, time.UTC)
	if got := utils.Date0UTC(in); !got.Equal(date(2017, 7, 16)) {
		t.Errorf("expected midnight, got %v", got)
	}
}

func TestDateRange(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		days     int
		skipLeap bool
		want     int
	}{
		{"inclusive", date(2017, 1, 1), date(2017, 1, 3), 1, false, 3},
		{"step", date(2017, 1, 1), date(2017, 1, 10), 4, false, 3},
		{"leap kept", date(2016, 2, 28), date(2016, 3, 1), 1, false, 3},
		{"leap skipped", date(2016, 2, 28), date(2016, 3, 1), 1, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := utils.DateRange(tt.start, tt.end, tt.days, tt.skipLeap)
			if len(got) != tt.want {
				t.Errorf("expected %d dates, got %d", tt.want, len(got))
			}
		})
	}
}

func TestDateYears(t *testing.T) {
	got := utils.DateYears(date(2016, 12, 1), date(2018, 1, 1))
	if diff := cmp.Diff([]int{2016, 2017, 2018}, got); diff != "" {
		t.Errorf("years mismatch (-want +got):\n%s", diff)
	}
}

func TestMillis(t *testing.T) {
	if got := utils.Millis(date(2015, 7, 13)); got != 1436745600000 {
		t.Errorf("expected 1436745600000, got %d", got)
	}
	if got := utils.FromMillis(1436745600000); !got.Equal(date(2015, 7, 13)) {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestValidDate(t *testing.T) {
	if _, err := utils.ValidDate("2021-07-25"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"2021-13-01", "20210725", "today"} {
		if _, err := utils.ValidDate(bad); !errors.Is(err, utils.ErrInvalidDate) {
			t.Errorf("%q: expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiles.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := utils.ValidFile(path); err != nil || !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q err=%v", got, err)
	}
	if _, err := utils.ValidFile(filepath.Join(dir, "missing.json")); !errors.Is(err, utils.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := utils.ValidFile(dir); !errors.Is(err, utils.ErrFileNotFound) {
		t.Errorf("directory should not be a valid file, got %v", err)
	}
}

func TestIsNumber(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "-2.5": true, "1e3": true, "x": false, "": false} {
		if got := utils.IsNumber(in); got != want {
			t.Errorf("IsNumber(%q) = %v", in, got)
		}
	}
}

func TestStrRanges2List(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1-3,5", []int{1, 2, 3, 5}},
		{"5, 3-1", []int{1, 2, 3, 5}},
		{"10,a,11-x,12", []int{10, 12}},
		{"", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, utils.StrRanges2List(tt.in)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList2StrRanges(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{[]int{1, 2, 3}, "1-3"},
		{[]int{1, 2}, "1,2"},
		{[]int{1, 2, 3, 5, 7, 8, 9, 10}, "1-3,5,7-10"},
		{[]int{10, 2, 1, 2}, "1,2,10"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := utils.List2StrRanges(tt.in); got != tt.want {
			t.Errorf("List2StrRanges(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWRS2RoundTrip(t *testing.T) {
	tiles := []string{"p044r033", "p043r033", "p043r034", "p043r035", "p044r034"}
	s, err := utils.WRS2SetToStr(tiles)
	if err != nil {
		t.Fatalf("to string: %v", err)
	}
	if want := "43:[33-35],44:[33,34]"; s != want {
		t.Errorf("expected %q, got %q", want, s)
	}

	set, err := utils.WRS2StrToSet(s)
	if err != nil {
		t.Fatalf("to set: %v", err)
	}
	want := []string{"p043r033", "p043r034", "p043r035", "p044r033", "p044r034"}
	if diff := cmp.Diff(want, utils.SortedKeys(set)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := utils.WRS2SetToStr([]string{"43033"}); !errors.Is(err, utils.ErrInvalidWRS2) {
		t.Errorf("expected ErrInvalidWRS2, got %v", err)
	}
}

func TestParseLandsatID(t *testing.T) {
	tests := []struct {
		in   string
		want utils.LandsatID
	}{
		{"LC08_030036_20210725", utils.LandsatID{Sensor: "LC08", Path: 30, Row: 36, Year: 2021, Month: 7, Day: 25}},
		{"LE07_044033_20170716", utils.LandsatID{Sensor: "LE07", Path: 44, Row: 33, Year: 2017, Month: 7, Day: 16}},
		{"1_2_LT05_044033_20110716", utils.LandsatID{Sensor: "LT05", Path: 44, Row: 33, Year: 2011, Month: 7, Day: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := utils.ParseLandsatID(tt.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := utils.ParseLandsatID("S2A_10SFH"); !errors.Is(err, utils.ErrInvalidLandsatID) {
		t.Errorf("expected ErrInvalidLandsatID, got %v", err)
	}
}

func TestVersionNumbers(t *testing.T) {
	if diff := cmp.Diff([]int{0, 20, 6}, utils.VersionNumbers("0.20.6")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

type transientErr struct{ retry bool }

func (e transientErr) Error() string   { return "transient" }
func (e transientErr) Retryable() bool { return e.retry }

func TestRetry(t *testing.T) {
	policy := utils.TaskStartPolicy.WithUnit(time.Microsecond)

	t.Run("recovers", func(t *testing.T) {
		var calls int
		err := utils.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("Earth Engine memory capacity exceeded")
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("expected success on third call, got err=%v calls=%d", err, calls)
		}
	})

	t.Run("permanent error aborts", func(t *testing.T) {
		var calls int
		err := utils.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			return transientErr{retry: false}
		})
		if err == nil || calls != 1 {
			t.Errorf("expected one call, got err=%v calls=%d", err, calls)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		var calls int
		err := utils.Retry(context.Background(), policy, func(context.Context) error {
			calls++
			return transientErr{retry: true}
		})
		if !errors.Is(err, utils.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", err)
		}
		if calls != utils.TaskStartPolicy.MaxAttempts {
			t.Errorf("expected %d calls, got %d", utils.TaskStartPolicy.MaxAttempts, calls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := utils.Retry(ctx, utils.GetInfoPolicy, func(context.Context) error {
			return transientErr{retry: true}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

type countdown struct{ n atomic.Int32 }

func (c *countdown) ReadyCount() int { return int(c.n.Add(-1)) }

func TestDelayTask(t *testing.T) {
	c := &countdown{}
	c.n.Store(4)

	// counts seen: 3, 2, 1 -> returns once below 2
	if err := utils.DelayTask(context.Background(), 0, 2, time.Microsecond, c); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if got := c.n.Load(); got != 1 {
		t.Errorf("expected to stop polling at count 1, got %d", got)
	}

	if err := utils.DelayTask(context.Background(), -5, 0, time.Microsecond, nil); err != nil {
		t.Errorf("negative delay should be clamped, got %v", err)
	}
}
