// Package interpolate linearly interpolates sparse scene estimates onto a
// daily time step and aggregates the daily images into daily, monthly,
// annual or custom periods.
package interpolate

import (
	"fmt"
	"strings"
	"time"

	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/utils"
)

// MethodLinear is the only supported interpolation method
const MethodLinear = "linear"

// DefaultInterpDays is the search window on each side of a target date
const DefaultInterpDays = 32

// TimeBand holds the 0 UTC acquisition time (epoch millis) of a source image
const TimeBand = "time"

const day = 24 * time.Hour

// DailyOptions configures Daily
type DailyOptions struct {
	InterpDays int
	Method     string
	// UseJoins compares raw image times instead of 0 UTC day windows
	UseJoins bool
	// ComputeProduct adds <band>_1 = band * target for each interpolated band
	ComputeProduct bool
}

func (o DailyOptions) withDefaults() (DailyOptions, error) {
	if o.InterpDays == 0 {
		o.InterpDays = DefaultInterpDays
	}
	if o.InterpDays < 0 {
		return o, fmt.Errorf("%w: %d", ErrInvalidDays, o.InterpDays)
	}
	if o.Method == "" {
		o.Method = MethodLinear
	}
	if strings.ToLower(o.Method) != MethodLinear {
		return o, fmt.Errorf("%w: %s", ErrInvalidMethod, o.Method)
	}
	return o, nil
}

// Daily interpolates every non-time band of source onto the date of each
// target image. The output keeps the target's index and time and appends the
// target's first band after the interpolated bands.
func Daily(target, source *raster.Collection, opts DailyOptions) (*raster.Collection, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if source.Len() == 0 {
		return nil, fmt.Errorf("daily source: %w", raster.ErrEmptyCollection)
	}

	var bands []string
	for _, name := range source.Images[0].BandNames() {
		if name != TimeBand {
			bands = append(bands, name)
		}
	}

	out := make([]*raster.Image, 0, target.Len())
	for _, tgt := range target.Images {
		img, err := interpolateImage(tgt, source, bands, opts)
		if err != nil {
			return nil, fmt.Errorf("interpolate %s: %w", tgt.Props.Index, err)
		}
		out = append(out, img)
	}
	return raster.NewCollection(out...), nil
}

// candidates returns the prev images sorted oldest first and the next images
// sorted newest first, so the last valid pixel in each list is the closest.
func candidates(tgt *raster.Image, source *raster.Collection, opts DailyOptions) (prev, next []*raster.Image) {
	t0 := utils.Date0UTC(tgt.Props.TimeStart)
	window := time.Duration(opts.InterpDays) * day

	if opts.UseJoins {
		maxDiff := window + day
		tt := tgt.Props.TimeStart
		prevColl := source.Filter(func(img *raster.Image) bool {
			ts := img.Props.TimeStart
			return ts.Before(tt) && tt.Sub(ts) <= maxDiff
		})
		nextColl := source.Filter(func(img *raster.Image) bool {
			ts := img.Props.TimeStart
			return !ts.Before(tt) && ts.Sub(tt) <= maxDiff
		})
		return prevColl.SortByTime(true).Images, nextColl.SortByTime(false).Images
	}

	prevColl := source.FilterDate(t0.Add(-window), t0)
	nextColl := source.FilterDate(t0, t0.Add(window+day))
	return prevColl.SortByTime(true).Images, nextColl.SortByTime(false).Images
}

type sample struct {
	value, time float64
	ok          bool
}

// closest returns the value and time of the last image in imgs valid at pixel i
func closest(imgs []*raster.Image, band string, i int) sample {
	for k := len(imgs) - 1; k >= 0; k-- {
		img := imgs[k]
		v, ok := img.At(band, i)
		if !ok {
			continue
		}
		t, ok := sourceTime(img, i)
		if !ok {
			continue
		}
		return sample{value: v, time: t, ok: true}
	}
	return sample{}
}

func sourceTime(img *raster.Image, i int) (float64, bool) {
	if img.HasBand(TimeBand) {
		return img.At(TimeBand, i)
	}
	return float64(utils.Millis(utils.Date0UTC(img.Props.TimeStart))), true
}

func interpolateImage(tgt *raster.Image, source *raster.Collection, bands []string, opts DailyOptions) (*raster.Image, error) {
	for _, src := range source.Images {
		if !src.SameShape(tgt) {
			return nil, raster.ErrShapeMismatch
		}
	}
	first, err := tgt.First()
	if err != nil {
		return nil, err
	}

	prev, next := candidates(tgt, source, opts)
	t0 := float64(utils.Millis(utils.Date0UTC(tgt.Props.TimeStart)))
	n := tgt.Len()

	out := raster.NewImage(tgt.Width, tgt.Height, tgt.Props.Clone())
	interpolated := make([]*raster.Band, 0, len(bands))
	for _, name := range bands {
		b := raster.Masked(name, n)
		for i := 0; i < n; i++ {
			p := closest(prev, name, i)
			q := closest(next, name, i)
			switch {
			case !p.ok && !q.ok:
				continue
			case !p.ok:
				p = q
			case !q.ok:
				q = p
			}
			if q.time == p.time {
				b.Set(i, p.value)
				continue
			}
			ratio := (t0 - p.time) / (q.time - p.time)
			b.Set(i, p.value+(q.value-p.value)*ratio)
		}
		if err := out.AddBand(b); err != nil {
			return nil, err
		}
		interpolated = append(interpolated, b)
	}

	if err := out.AddBand(first.Clone()); err != nil {
		return nil, err
	}

	if opts.ComputeProduct {
		for _, b := range interpolated {
			product, err := raster.Combine(b.Name+"_1", func(v []float64) float64 { return v[0] * v[1] }, b, first)
			if err != nil {
				return nil, err
			}
			if err := out.AddBand(product); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
