package landsat

import (
	"github.com/openet/core/pkg/raster"
)

// DefaultCloudScorePct flags only pixels with a full cloud score
const DefaultCloudScorePct = 100

// TOABands are the bands SimpleCloudScore reads from a TOA image
var TOABands = []string{"blue", "green", "red", "nir", "swir1", "swir2", "thermal"}

// rescale maps x from [lo, hi] onto [0, 1] and clamps
func rescale(x, lo, hi float64) float64 {
	return clamp((x-lo)/(hi-lo), 0, 1)
}

// SimpleCloudScore rates each pixel of a TOA image from 0 (clear) to 100
// (cloud). Bright, cold, non-snow pixels score high. Output band "cloud".
func SimpleCloudScore(toa *raster.Image) (*raster.Band, error) {
	bands := make([]*raster.Band, len(TOABands))
	for i, name := range TOABands {
		b, err := toa.Band(name)
		if err != nil {
			return nil, err
		}
		bands[i] = b
	}

	return raster.Combine("cloud", func(v []float64) float64 {
		blue, green, red, nir, swir1, swir2, thermal := v[0], v[1], v[2], v[3], v[4], v[5], v[6]

		score := 1.0
		score = min(score, rescale(blue, 0.1, 0.3))
		score = min(score, rescale(red+green+blue, 0.2, 0.8))
		score = min(score, rescale(nir+swir1+swir2, 0.3, 0.8))
		score = min(score, rescale(thermal, 300, 290))

		ndsi := 0.0
		if green+swir1 != 0 {
			ndsi = (green - swir1) / (green + swir1)
		}
		score = min(score, rescale(ndsi, 0.8, 0.6))
		return score * 100
	}, bands...)
}

// CloudScoreMask flags pixels whose cloud score is at least pct.
// When toa is nil the mask is all zero, matching a scene with no TOA match.
func CloudScoreMask(sr, toa *raster.Image, pct float64) (*raster.Band, error) {
	if toa == nil {
		return raster.Fill("mask", sr.Len(), 0), nil
	}
	score, err := SimpleCloudScore(toa)
	if err != nil {
		return nil, err
	}
	return score.Map("mask", func(v float64) float64 {
		if v >= pct {
			return 1
		}
		return 0
	}), nil
}
