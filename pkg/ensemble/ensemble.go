// Package ensemble combines per-model ET estimates into a single value.
//
// Each band of the input image holds one model's estimate. MAD drops model
// values that are far from the median before averaging; Mean is a plain
// average of the valid models.
package ensemble

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/openet/core/pkg/raster"
)

// DefaultMADeScale is the number of MADe on each side of the median kept by MAD
const DefaultMADeScale = 2.0

// madeFactor scales the median absolute deviation to a normal standard deviation
const madeFactor = 1.4826

// minKept is the number of values MAD always keeps when available
const minKept = 4

// Output band names
const (
	BandMAD      = "ensemble_mad"
	BandMADMin   = "ensemble_mad_min"
	BandMADMax   = "ensemble_mad_max"
	BandMADCount = "ensemble_mad_count"
	BandMADIndex = "ensemble_mad_index"
	BandMean     = "ensemble_sam"
)

// ModelIndex is the bit for each known model in the ensemble_mad_index band
var ModelIndex = map[string]int{
	"disalexi": 1,
	"eemetric": 2,
	"geesebal": 4,
	"ptjpl":    8,
	"sims":     16,
	"ssebop":   32,
}

var (
	// ErrNoModels indicates an ensemble input without bands
	ErrNoModels = errors.New("ensemble image has no model bands")
)

// Model is one named model estimate
type Model struct {
	Name  string
	Image *raster.Image
}

// Stack builds an ensemble input image with one band per model, taken from
// band of each model image and renamed to the model name.
func Stack(band string, models ...Model) (*raster.Image, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	first := models[0].Image
	out := raster.NewImage(first.Width, first.Height, first.Props.Clone())
	for _, m := range models {
		if !m.Image.SameShape(first) {
			return nil, fmt.Errorf("model %s: %w", m.Name, raster.ErrShapeMismatch)
		}
		b, err := m.Image.Band(band)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		if err := out.AddBand(b.Renamed(m.Name)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func bandBits(bands []*raster.Band) []int {
	bits := make([]int, len(bands))
	for i, b := range bands {
		if bit, ok := ModelIndex[b.Name]; ok {
			bits[i] = bit
		} else {
			bits[i] = 1 << i
		}
	}
	return bits
}

// median returns the median of vals, averaging the middle pair for even lengths.
// vals is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

type member struct {
	value float64
	bit   int
	dist  float64
	order int
}

// keep returns the members of a pixel that survive the MADe filter
func keep(members []member, scale float64) []member {
	vals := make([]float64, len(members))
	for i, m := range members {
		vals[i] = m.value
	}
	med := median(vals)

	for i := range members {
		members[i].dist = math.Abs(members[i].value - med)
		vals[i] = members[i].dist
	}
	made := madeFactor * median(vals)
	lower, upper := med-scale*made, med+scale*made

	var kept []member
	for _, m := range members {
		if m.value >= lower && m.value <= upper {
			kept = append(kept, m)
		}
	}

	need := minKept
	if len(members) < need {
		need = len(members)
	}
	if len(kept) >= need {
		return kept
	}

	sorted := append([]member(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].dist != sorted[j].dist {
			return sorted[i].dist < sorted[j].dist
		}
		return sorted[i].order < sorted[j].order
	})
	return sorted[:need]
}

// MAD computes the median absolute deviation ensemble of img. Values outside
// median +/- scale*MADe are dropped, but at least four values (or all of them
// if fewer) are always kept, preferring those closest to the median.
// A scale <= 0 uses DefaultMADeScale.
func MAD(img *raster.Image, scale float64) (*raster.Image, error) {
	bands := img.Bands()
	if len(bands) == 0 {
		return nil, ErrNoModels
	}
	if scale <= 0 {
		scale = DefaultMADeScale
	}
	bits := bandBits(bands)

	n := img.Len()
	mean := raster.Masked(BandMAD, n)
	mn := raster.Masked(BandMADMin, n)
	mx := raster.Masked(BandMADMax, n)
	count := raster.Masked(BandMADCount, n)
	index := raster.Masked(BandMADIndex, n)

	members := make([]member, 0, len(bands))
	for i := 0; i < n; i++ {
		members = members[:0]
		for k, b := range bands {
			if b.IsValid(i) {
				members = append(members, member{value: b.Data[i], bit: bits[k], order: k})
			}
		}
		if len(members) == 0 {
			continue
		}

		kept := keep(members, scale)
		sum, lo, hi, idx := 0.0, math.Inf(1), math.Inf(-1), 0
		for _, m := range kept {
			sum += m.value
			lo = math.Min(lo, m.value)
			hi = math.Max(hi, m.value)
			idx |= m.bit
		}
		mean.Set(i, sum/float64(len(kept)))
		mn.Set(i, lo)
		mx.Set(i, hi)
		count.Set(i, float64(len(kept)))
		index.Set(i, float64(idx))
	}

	out := raster.NewImage(img.Width, img.Height, img.Props.Clone())
	for _, b := range []*raster.Band{mean, mn, mx, count, index} {
		if err := out.AddBand(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Mean computes the simple arithmetic mean of the valid model values
func Mean(img *raster.Image) (*raster.Image, error) {
	bands := img.Bands()
	if len(bands) == 0 {
		return nil, ErrNoModels
	}

	n := img.Len()
	mean := raster.Masked(BandMean, n)
	for i := 0; i < n; i++ {
		var sum float64
		var c int
		for _, b := range bands {
			if b.IsValid(i) {
				sum += b.Data[i]
				c++
			}
		}
		if c > 0 {
			mean.Set(i, sum/float64(c))
		}
	}

	out := raster.NewImage(img.Width, img.Height, img.Props.Clone())
	return out, out.AddBand(mean)
}
