package landsat

import (
	"math"

	"github.com/openet/core/pkg/raster"
)

// SRBands are the generic band names produced by L2SR
var SRBands = []string{"blue", "green", "red", "nir", "swir1", "swir2", "lst", "QA_PIXEL", "QA_RADSAT"}

var l2InputBands = map[Spacecraft][]string{
	Landsat4: {"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7", "ST_B6", "QA_PIXEL", "QA_RADSAT"},
	Landsat5: {"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7", "ST_B6", "QA_PIXEL", "QA_RADSAT"},
	Landsat7: {"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B7", "ST_B6", "QA_PIXEL", "QA_RADSAT"},
	Landsat8: {"SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7", "ST_B10", "QA_PIXEL", "QA_RADSAT"},
	Landsat9: {"SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7", "ST_B10", "QA_PIXEL", "QA_RADSAT"},
}

// Collection 2 Level 2 scale factors
const (
	reflMult = 0.0000275
	reflAdd  = -0.2
	lstMult  = 0.00341802
	lstAdd   = 149.0
)

// L2SR renames a Collection 2 Level 2 image to generic band names and scales
// reflectance to [0, 1] and surface temperature to Kelvin.
func L2SR(img *raster.Image) (*raster.Image, error) {
	sc, err := ParseSpacecraft(img.Props.SpacecraftID)
	if err != nil {
		return nil, err
	}
	renamed, err := img.SelectRename(l2InputBands[sc], SRBands)
	if err != nil {
		return nil, err
	}

	out := raster.NewImage(img.Width, img.Height, img.Props.Clone())
	for _, b := range renamed.Bands() {
		switch b.Name {
		case "QA_PIXEL", "QA_RADSAT":
			b = b.Clone()
		case "lst":
			b = b.Map(b.Name, func(v float64) float64 { return v*lstMult + lstAdd })
		default:
			b = b.Map(b.Name, func(v float64) float64 { return v*reflMult + reflAdd })
		}
		if err := out.AddBand(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reflectance below this in both bands is too dark to trust
const ndviReflMin = 0.01

// WaterNDVI is assigned to dark pixels flagged as water
const WaterNDVI = -0.1

// SRNDVI computes NDVI from an L2SR image. Negative reflectance is clamped to 0
// first, saturated or very dark pixels are set to 0, and dark water pixels to
// WaterNDVI when the image carries QA_PIXEL.
func SRNDVI(sr *raster.Image) (*raster.Band, error) {
	nir, err := sr.Band("nir")
	if err != nil {
		return nil, err
	}
	red, err := sr.Band("red")
	if err != nil {
		return nil, err
	}

	var water *raster.Band
	if sr.HasBand("QA_PIXEL") {
		if water, err = QAWaterMask(sr); err != nil {
			return nil, err
		}
	}

	out, err := raster.Combine("ndvi", func(v []float64) float64 {
		n, r := v[0], v[1]
		if n >= 1 || r >= 1 {
			return 0
		}
		if n < ndviReflMin && r < ndviReflMin {
			return 0
		}
		n, r = math.Max(n, 0), math.Max(r, 0)
		return clamp((n-r)/(n+r), -1, 1)
	}, nir, red)
	if err != nil {
		return nil, err
	}

	if water != nil {
		for i := range out.Data {
			if !nir.IsValid(i) || !red.IsValid(i) || !water.IsValid(i) || water.Data[i] == 0 {
				continue
			}
			if nir.Data[i] < ndviReflMin && red.Data[i] < ndviReflMin {
				out.Set(i, WaterNDVI)
			}
		}
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
