package interpolate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/utils"
)

// Output variables of scene interpolation
const (
	VarET          = "et"
	VarETReference = "et_reference"
	VarETFraction  = "et_fraction"
	VarNDVI        = "ndvi"
	VarCount       = "count"
	VarDailyCount  = "daily_count"
)

// Variables lists every supported output variable in output band order
var Variables = []string{VarET, VarETReference, VarETFraction, VarNDVI, VarCount, VarDailyCount}

const (
	maskBand         = "mask"
	interpSourceBand = "interp_source"
)

type sceneRequest struct {
	start     time.Time
	end       time.Time
	variables []string
	interval  TInterval
	interp    InterpArgs
	ref       reference
}

func newSceneRequest(start, end time.Time, variables []string, interp InterpArgs, model ModelArgs, interval TInterval) (*sceneRequest, error) {
	if _, err := ParseTInterval(string(interval)); err != nil {
		return nil, err
	}
	if err := interp.validate(); err != nil {
		return nil, err
	}
	if len(variables) == 0 {
		return nil, ErrMissingVariables
	}
	for _, v := range variables {
		if !isVariable(v) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVariable, v)
		}
	}
	ref, err := resolveReference(interp, model)
	if err != nil {
		return nil, err
	}

	start, end = interval.Bounds(start, end)
	if !end.After(start) {
		return nil, ErrInvalidDateRange
	}
	return &sceneRequest{
		start:     start,
		end:       end,
		variables: variables,
		interval:  interval,
		interp:    interp,
		ref:       ref,
	}, nil
}

func isVariable(v string) bool {
	for _, known := range Variables {
		if v == known {
			return true
		}
	}
	return false
}

func (r *sceneRequest) wants(v string) bool {
	for _, w := range r.variables {
		if w == v {
			return true
		}
	}
	return false
}

// window is the scene search range needed to interpolate every day in [start, end)
func (r *sceneRequest) window() (time.Time, time.Time) {
	pad := time.Duration(r.interp.Days+1) * day
	return r.start.Add(-pad), r.end.Add(pad)
}

// loadDaily reads [start, end) from src, keeps band (or the first band),
// resamples onto grid and renames it to name.
func loadDaily(ctx context.Context, src ReferenceSource, band, resample, name string, start, end time.Time, grid *raster.Image) (*raster.Collection, error) {
	coll, err := src.Daily(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if coll.Len() == 0 {
		return nil, fmt.Errorf("%s %s to %s: %w", name, start.Format(utils.DateFormat), end.Format(utils.DateFormat), raster.ErrEmptyCollection)
	}

	return coll.Map(func(img *raster.Image) (*raster.Image, error) {
		var b *raster.Band
		var err error
		if band == "" {
			b, err = img.First()
		} else {
			b, err = img.Band(band)
		}
		if err != nil {
			return nil, err
		}
		if img.Width != grid.Width || img.Height != grid.Height {
			b, err = raster.ResampleBand(b, img.Width, img.Height, grid.Width, grid.Height, resample)
			if err != nil {
				return nil, err
			}
		}
		out := raster.NewImage(grid.Width, grid.Height, img.Props.Clone())
		if err := out.AddBand(b.Renamed(name)); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func timeBand(img *raster.Image) *raster.Band {
	return raster.Fill(TimeBand, img.Len(), float64(utils.Millis(utils.Date0UTC(img.Props.TimeStart))))
}

// maskImage flags pixels where band is valid, as a fully valid 0/1 band
func maskImage(img *raster.Image, b *raster.Band) (*raster.Image, error) {
	m := raster.Fill(maskBand, b.Len(), 0)
	for i := range m.Data {
		if b.IsValid(i) {
			m.Data[i] = 1
		}
	}
	out := raster.NewImage(img.Width, img.Height, img.Props.Clone())
	return out, out.AddBand(m)
}

// sceneInputs builds the interpolation source image (the named fraction band,
// optional ndvi, and time) together with the scene mask image.
func sceneInputs(img *raster.Image, etf *raster.Band) (src, mask *raster.Image, err error) {
	src = raster.NewImage(img.Width, img.Height, img.Props.Clone())
	if err := src.AddBand(etf.Renamed(VarETFraction)); err != nil {
		return nil, nil, err
	}
	if ndvi, err := img.Band(VarNDVI); err == nil {
		if err := src.AddBand(ndvi.Clone()); err != nil {
			return nil, nil, err
		}
	}
	if err := src.AddBand(timeBand(img)); err != nil {
		return nil, nil, err
	}
	mask, err = maskImage(img, etf)
	return src, mask, err
}

func multiply(name string, a, b *raster.Band) (*raster.Band, error) {
	return raster.Combine(name, func(v []float64) float64 { return v[0] * v[1] }, a, b)
}

// FromSceneETFraction interpolates scene ET fraction to a daily time step,
// multiplies by daily reference ET and aggregates into interval periods.
func FromSceneETFraction(
	ctx context.Context,
	scenes *raster.Collection,
	start, end time.Time,
	variables []string,
	interp InterpArgs,
	model ModelArgs,
	interval TInterval,
) (*raster.Collection, error) {
	req, err := newSceneRequest(start, end, variables, interp, model, interval)
	if err != nil {
		return nil, err
	}
	grid, err := scenes.First()
	if err != nil {
		return nil, fmt.Errorf("scenes: %w", ErrNoScenes)
	}

	wStart, wEnd := req.window()
	sources := raster.NewCollection()
	masks := raster.NewCollection()
	for _, img := range scenes.FilterDate(wStart, wEnd).Images {
		etf, err := img.Band(VarETFraction)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", img.Props.Index, err)
		}
		src, mask, err := sceneInputs(img, etf)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", img.Props.Index, err)
		}
		sources.Images = append(sources.Images, src)
		masks.Images = append(masks.Images, mask)
	}
	if sources.Len() == 0 {
		return nil, fmt.Errorf("%s to %s: %w",
			wStart.Format(utils.DateFormat), wEnd.Format(utils.DateFormat), ErrNoScenes)
	}

	refColl, err := loadDaily(ctx, req.ref.source, req.ref.band, req.ref.resample, VarETReference, req.start, req.end, grid)
	if err != nil {
		return nil, fmt.Errorf("et reference: %w", err)
	}

	daily, err := Daily(refColl, sources, req.interp.dailyOptions())
	if err != nil {
		return nil, err
	}
	daily, err = daily.Map(func(img *raster.Image) (*raster.Image, error) {
		etf, err := img.Band(VarETFraction)
		if err != nil {
			return nil, err
		}
		etr, err := img.Band(VarETReference)
		if err != nil {
			return nil, err
		}
		et, err := multiply(VarET, etf, etr)
		if err != nil {
			return nil, err
		}
		return img, img.AddBand(et)
	})
	if err != nil {
		return nil, err
	}

	return req.aggregate(grid, daily, masks, req.ref.factor)
}

// FromSceneETActual derives a scene ET fraction against the interp source,
// interpolates it daily onto the interp source and aggregates the resulting ET.
// Output et_fraction is relative to the reference ET source.
func FromSceneETActual(
	ctx context.Context,
	scenes *raster.Collection,
	start, end time.Time,
	variables []string,
	interp InterpArgs,
	model ModelArgs,
	interval TInterval,
) (*raster.Collection, error) {
	req, err := newSceneRequest(start, end, variables, interp, model, interval)
	if err != nil {
		return nil, err
	}
	if interp.InterpSource == nil || interp.InterpBand == "" {
		return nil, ErrMissingInterpSource
	}
	resample := interp.InterpResample
	if resample == "" {
		resample = raster.ResampleNearest
	}
	if !raster.ValidResample(resample) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResample, resample)
	}
	grid, err := scenes.First()
	if err != nil {
		return nil, fmt.Errorf("scenes: %w", ErrNoScenes)
	}

	wStart, wEnd := req.window()
	windowScenes := scenes.FilterDate(wStart, wEnd)
	if windowScenes.Len() == 0 {
		return nil, fmt.Errorf("%s to %s: %w",
			wStart.Format(utils.DateFormat), wEnd.Format(utils.DateFormat), ErrNoScenes)
	}
	interpColl, err := loadDaily(ctx, interp.InterpSource, interp.InterpBand, resample, interpSourceBand, wStart, wEnd, grid)
	if err != nil {
		return nil, fmt.Errorf("interp source: %w", err)
	}
	interpByDate := make(map[time.Time]*raster.Band, interpColl.Len())
	for _, img := range interpColl.Images {
		b, _ := img.Band(interpSourceBand)
		interpByDate[utils.Date0UTC(img.Props.TimeStart)] = b
	}

	etfMin := floatOr(interp.ETFractionMin, DefaultETFractionMin)
	etfMax := floatOr(interp.ETFractionMax, DefaultETFractionMax)

	sources := raster.NewCollection()
	masks := raster.NewCollection()
	for _, img := range windowScenes.Images {
		et, err := img.Band(VarET)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", img.Props.Index, err)
		}
		is, ok := interpByDate[utils.Date0UTC(img.Props.TimeStart)]
		if !ok {
			continue
		}
		etf, err := raster.Combine(VarETFraction, func(v []float64) float64 {
			return math.Min(math.Max(v[0]/v[1], etfMin), etfMax)
		}, et, is)
		if err != nil {
			return nil, err
		}
		src, mask, err := sceneInputs(img, etf)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", img.Props.Index, err)
		}
		sources.Images = append(sources.Images, src)
		masks.Images = append(masks.Images, mask)
	}
	if sources.Len() == 0 {
		return nil, fmt.Errorf("no scenes with interp source data: %w", raster.ErrEmptyCollection)
	}

	refColl, err := loadDaily(ctx, req.ref.source, req.ref.band, req.ref.resample, VarETReference, req.start, req.end, grid)
	if err != nil {
		return nil, fmt.Errorf("et reference: %w", err)
	}
	refByDate := make(map[time.Time]*raster.Band, refColl.Len())
	for _, img := range refColl.Images {
		b, _ := img.Band(VarETReference)
		refByDate[utils.Date0UTC(img.Props.TimeStart)] = b
	}

	targets := interpColl.FilterDate(req.start, req.end)
	daily, err := Daily(targets, sources, req.interp.dailyOptions())
	if err != nil {
		return nil, err
	}
	daily, err = daily.Map(func(img *raster.Image) (*raster.Image, error) {
		etf, err := img.Band(VarETFraction)
		if err != nil {
			return nil, err
		}
		is, err := img.Band(interpSourceBand)
		if err != nil {
			return nil, err
		}
		et, err := multiply(VarET, etf, is)
		if err != nil {
			return nil, err
		}
		if err := img.AddBand(et); err != nil {
			return nil, err
		}
		etr, ok := refByDate[utils.Date0UTC(img.Props.TimeStart)]
		if !ok {
			etr = raster.Masked(VarETReference, img.Len())
		}
		return img, img.AddBand(etr.Clone())
	})
	if err != nil {
		return nil, err
	}

	return req.aggregate(grid, daily, masks, 1.0)
}

// sumBand sums band over coll, leaving pixels with no valid values masked
func sumBand(coll *raster.Collection, name string, n int) (*raster.Band, error) {
	if coll.Len() == 0 {
		return raster.Masked(name, n), nil
	}
	img, err := coll.Sum()
	if err != nil {
		return nil, err
	}
	b, err := img.Band(name)
	if err != nil {
		return raster.Masked(name, n), nil
	}
	return b, nil
}

func scale(b *raster.Band, factor float64) *raster.Band {
	if factor == 1 {
		return b
	}
	return b.Map(b.Name, func(v float64) float64 { return v * factor })
}

// aggregate reduces daily images into one image per interval period.
// etFactor scales summed ET; the reference factor always scales et_reference.
func (r *sceneRequest) aggregate(grid *raster.Image, daily, masks *raster.Collection, etFactor float64) (*raster.Collection, error) {
	n := grid.Len()
	maskPartial := boolOr(r.interp.MaskPartialAggregations, true)

	var out []*raster.Image
	for _, p := range r.interval.periods(r.start, r.end) {
		dp := daily.FilterDate(p.Start, p.End)

		et, err := sumBand(dp, VarET, n)
		if err != nil {
			return nil, err
		}
		et = scale(et, etFactor)

		etr, err := sumBand(dp, VarETReference, n)
		if err != nil {
			return nil, err
		}
		etr = scale(etr, r.ref.factor)

		etf, err := raster.Combine(VarETFraction, func(v []float64) float64 { return v[0] / v[1] }, et, etr)
		if err != nil {
			return nil, err
		}

		ndvi := raster.Masked(VarNDVI, n)
		if dp.Len() > 0 {
			mean, err := dp.Mean()
			if err != nil {
				return nil, err
			}
			if b, err := mean.Band(VarNDVI); err == nil {
				ndvi = b
			} else if r.wants(VarNDVI) {
				return nil, fmt.Errorf("%w: scenes have no %s band", ErrInvalidVariable, VarNDVI)
			}
		}

		dailyCount := raster.Fill(VarDailyCount, n, 0)
		if dp.Len() > 0 {
			counts, err := dp.Count()
			if err != nil {
				return nil, err
			}
			if b, err := counts.Band(VarETFraction); err == nil {
				dailyCount = b.Unmask(0).Renamed(VarDailyCount)
			}
		}

		count := raster.Fill(VarCount, n, 0)
		sceneDays, err := AggregateDaily(masks, p.Start, p.End, AggregateMean)
		if err != nil {
			return nil, err
		}
		if sceneDays.Len() > 0 {
			c, err := sumBand(sceneDays, maskBand, n)
			if err != nil {
				return nil, err
			}
			count = c.Unmask(0).Renamed(VarCount)
		}

		byName := map[string]*raster.Band{
			VarET:          et,
			VarETReference: etr,
			VarETFraction:  etf,
			VarNDVI:        ndvi,
			VarCount:       count,
			VarDailyCount:  dailyCount,
		}

		if maskPartial {
			full := float64(p.days())
			complete := dailyCount.Map("complete", func(v float64) float64 {
				if v >= full {
					return 1
				}
				return 0
			})
			for k, b := range byName {
				byName[k] = b.UpdateMask(complete)
			}
		}

		img := raster.NewImage(grid.Width, grid.Height, raster.Properties{
			Index:     p.Start.Format(r.interval.indexFormat()),
			TimeStart: p.Start,
		})
		for _, v := range r.variables {
			if err := img.AddBand(byName[v]); err != nil {
				return nil, err
			}
		}
		out = append(out, img)
	}
	return raster.NewCollection(out...), nil
}
