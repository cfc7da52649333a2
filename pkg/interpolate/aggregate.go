package interpolate

import (
	"fmt"
	"sort"
	"time"

	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/utils"
)

// AggregateMean is the only supported daily aggregation
const AggregateMean = "mean"

// AggregateDaily merges images acquired on the same UTC day (for example
// adjacent rows of one Landsat path) into a single image per day. Zero start
// or end times leave that side of the range open. The range only selects the
// days; each day's mean covers every image of that whole UTC day.
func AggregateDaily(coll *raster.Collection, start, end time.Time, agg string) (*raster.Collection, error) {
	if agg == "" {
		agg = AggregateMean
	}
	if agg != AggregateMean {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAggregation, agg)
	}

	filtered := coll.Filter(func(img *raster.Image) bool {
		t := img.Props.TimeStart
		if !start.IsZero() && t.Before(start) {
			return false
		}
		if !end.IsZero() && !t.Before(end) {
			return false
		}
		return true
	})

	seen := make(map[time.Time]bool)
	for _, img := range filtered.Images {
		seen[utils.Date0UTC(img.Props.TimeStart)] = true
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]*raster.Image, 0, len(dates))
	for _, d := range dates {
		img, err := coll.FilterDate(d, d.Add(day)).Mean()
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", d.Format(utils.DateFormat), err)
		}
		img.Props.Index = d.Format("20060102")
		img.Props.TimeStart = d
		img.Props.SetLabel("date", d.Format(utils.DateFormat))
		out = append(out, img)
	}
	return raster.NewCollection(out...), nil
}
