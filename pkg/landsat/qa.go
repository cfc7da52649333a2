// Package landsat implements Collection 2 quality masks, cloud scoring and
// Level 2 surface reflectance preparation.
//
// Masks are 1 where a pixel is flagged (cloud, shadow, saturated) and 0 where
// it is clear. Masked QA pixels stay masked in the output.
package landsat

import (
	"fmt"

	"github.com/openet/core/pkg/raster"
)

// QA_PIXEL bit positions (LSB = 0)
const (
	bitDilated = 1
	bitCirrus  = 2
	bitCloud   = 3
	bitShadow  = 4
	bitSnow    = 5
	bitWater   = 7
)

// QAPixelOptions selects which QA_PIXEL flags are masked in addition to cloud
type QAPixelOptions struct {
	Cirrus bool
	Dilate bool
	Shadow bool
	Snow   bool
	Water  bool
}

// DefaultQAPixelOptions masks cloud and cloud shadow
func DefaultQAPixelOptions() QAPixelOptions {
	return QAPixelOptions{Shadow: true}
}

func bitSet(v float64, bit uint) bool {
	return (int64(v)>>bit)&1 != 0
}

func flagBand(name string, qa *raster.Band, flagged func(v int64) bool) *raster.Band {
	return qa.Map(name, func(v float64) float64 {
		if flagged(int64(v)) {
			return 1
		}
		return 0
	})
}

// QAPixelMask builds a cloud mask band named "mask" from QA_PIXEL
func QAPixelMask(img *raster.Image, opts QAPixelOptions) (*raster.Band, error) {
	qa, err := img.Band("QA_PIXEL")
	if err != nil {
		return nil, err
	}

	bits := []uint{bitCloud}
	if opts.Cirrus {
		bits = append(bits, bitCirrus)
	}
	if opts.Dilate {
		bits = append(bits, bitDilated)
	}
	if opts.Shadow {
		bits = append(bits, bitShadow)
	}
	if opts.Snow {
		bits = append(bits, bitSnow)
	}
	if opts.Water {
		bits = append(bits, bitWater)
	}

	return flagBand("mask", qa, func(v int64) bool {
		for _, bit := range bits {
			if (v>>bit)&1 != 0 {
				return true
			}
		}
		return false
	}), nil
}

// QAWaterMask flags the QA_PIXEL water bit as band "qa_water_mask"
func QAWaterMask(img *raster.Image) (*raster.Band, error) {
	qa, err := img.Band("QA_PIXEL")
	if err != nil {
		return nil, err
	}
	return flagBand("qa_water_mask", qa, func(v int64) bool {
		return (v>>bitWater)&1 != 0
	}), nil
}

// QARadsatMask flags pixels saturated in any of the blue, green or red bands.
// The RGB bits sit one position higher on Landsat 8/9 because of the coastal band.
func QARadsatMask(img *raster.Image) (*raster.Band, error) {
	sc, err := ParseSpacecraft(img.Props.SpacecraftID)
	if err != nil {
		return nil, err
	}
	qa, err := img.Band("QA_RADSAT")
	if err != nil {
		return nil, err
	}

	var shift uint
	if sc.OLI() {
		shift = 1
	}
	return flagBand("mask", qa, func(v int64) bool {
		return (v>>shift)&7 > 0
	}), nil
}

// SRCloudQAOptions selects the SR_CLOUD_QA flags masked in addition to cloud
type SRCloudQAOptions struct {
	Adjacent bool
	Shadow   bool
	Snow     bool
}

// DefaultSRCloudQAOptions enables every flag
func DefaultSRCloudQAOptions() SRCloudQAOptions {
	return SRCloudQAOptions{Adjacent: true, Shadow: true, Snow: true}
}

// SRCloudQAMask builds a mask from the Landsat 4/5/7 SR_CLOUD_QA band.
// Landsat 8/9 scenes and scenes without the band get an all zero mask.
func SRCloudQAMask(img *raster.Image, opts SRCloudQAOptions) (*raster.Band, error) {
	sc, err := ParseSpacecraft(img.Props.SpacecraftID)
	if err != nil {
		return nil, err
	}
	if sc.OLI() || !img.HasBand("SR_CLOUD_QA") {
		return raster.Fill("mask", img.Len(), 0), nil
	}
	qa, err := img.Band("SR_CLOUD_QA")
	if err != nil {
		return nil, fmt.Errorf("sr cloud qa: %w", err)
	}

	// bit 1 cloud, 2 shadow, 3 adjacent, 4 snow
	bits := []uint{1}
	if opts.Shadow {
		bits = append(bits, 2)
	}
	if opts.Adjacent {
		bits = append(bits, 3)
	}
	if opts.Snow {
		bits = append(bits, 4)
	}
	return qa.Map("mask", func(v float64) float64 {
		for _, bit := range bits {
			if bitSet(v, bit) {
				return 1
			}
		}
		return 0
	}), nil
}
