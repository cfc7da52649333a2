// Package common builds the cloud masks and the corrected land surface
// temperature used to prepare Landsat and Sentinel-2 scenes.
//
// Every cloud mask returned here is named "cloud_mask" and is 1 for clear
// pixels and 0 for flagged ones, so it can be passed straight to UpdateMask.
package common

import (
	"fmt"

	"github.com/openet/core/pkg/landsat"
	"github.com/openet/core/pkg/raster"
)

// CloudMaskOptions configures LandsatC2SRCloudMask
type CloudMaskOptions struct {
	Cirrus        bool
	Dilate        bool
	Shadow        bool
	Snow          bool
	CloudScore    bool
	CloudScorePct float64
	Filter        bool
	Saturated     bool
	SRCloudQA     bool

	// TOA is the matched top of atmosphere scene, used when CloudScore is set
	TOA *raster.Image
}

// DefaultCloudMaskOptions masks cloud and cloud shadow only
func DefaultCloudMaskOptions() CloudMaskOptions {
	return CloudMaskOptions{
		Shadow:        true,
		CloudScorePct: landsat.DefaultCloudScorePct,
	}
}

// LandsatC2SRCloudMask combines the QA_PIXEL mask with the optional cloud
// score, saturation and SR_CLOUD_QA masks.
func LandsatC2SRCloudMask(img *raster.Image, opts CloudMaskOptions) (*raster.Band, error) {
	mask, err := landsat.QAPixelMask(img, landsat.QAPixelOptions{
		Cirrus: opts.Cirrus,
		Dilate: opts.Dilate,
		Shadow: opts.Shadow,
		Snow:   opts.Snow,
	})
	if err != nil {
		return nil, fmt.Errorf("qa pixel mask: %w", err)
	}

	// remove isolated pixels, then grow the remaining clouds
	if opts.Filter {
		mask = raster.FocalMin(mask, img.Width, img.Height, 1)
		mask = raster.FocalMax(mask, img.Width, img.Height, 2)
	}

	var extra []*raster.Band
	if opts.CloudScore {
		if opts.TOA == nil {
			return nil, ErrMissingTOA
		}
		pct := opts.CloudScorePct
		if pct == 0 {
			pct = landsat.DefaultCloudScorePct
		}
		m, err := landsat.CloudScoreMask(img, opts.TOA, pct)
		if err != nil {
			return nil, fmt.Errorf("cloud score mask: %w", err)
		}
		extra = append(extra, m)
	}
	if opts.Saturated {
		m, err := landsat.QARadsatMask(img)
		if err != nil {
			return nil, fmt.Errorf("radsat mask: %w", err)
		}
		extra = append(extra, m)
	}
	if opts.SRCloudQA {
		m, err := landsat.SRCloudQAMask(img, landsat.DefaultSRCloudQAOptions())
		if err != nil {
			return nil, fmt.Errorf("sr cloud qa mask: %w", err)
		}
		extra = append(extra, m)
	}

	for _, m := range extra {
		if mask, err = raster.Or("mask", mask, m); err != nil {
			return nil, err
		}
	}
	return mask.Not("cloud_mask"), nil
}

// QA60 bits for opaque and cirrus clouds
const (
	qa60Opaque = 10
	qa60Cirrus = 11
)

func sentinel2CloudMask(img *raster.Image) (*raster.Band, error) {
	qa, err := img.Band("QA60")
	if err != nil {
		return nil, err
	}
	return qa.Map("cloud_mask", func(v float64) float64 {
		q := int64(v)
		if (q>>qa60Opaque)&1 != 0 || (q>>qa60Cirrus)&1 != 0 {
			return 0
		}
		return 1
	}), nil
}

// Sentinel2TOACloudMask masks opaque and cirrus clouds flagged in QA60
func Sentinel2TOACloudMask(img *raster.Image) (*raster.Band, error) {
	return sentinel2CloudMask(img)
}

// Sentinel2SRCloudMask is identical to the TOA mask; both products share QA60
func Sentinel2SRCloudMask(img *raster.Image) (*raster.Band, error) {
	return sentinel2CloudMask(img)
}
