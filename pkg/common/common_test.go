package common_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openet/core/pkg/common"
	"github.com/openet/core/pkg/raster"
)

func bits(s string) float64 {
	v, _ := strconv.ParseInt(s, 2, 64)
	return float64(v)
}

func qaImage(spacecraft string, qaPixel, qaRadsat float64) *raster.Image {
	img := raster.NewImage(1, 1, raster.Properties{SpacecraftID: spacecraft})
	img.AddBand(raster.Fill("QA_PIXEL", 1, qaPixel))
	img.AddBand(raster.Fill("QA_RADSAT", 1, qaRadsat))
	return img
}

func TestLandsatC2SRCloudMask_Defaults(t *testing.T) {
	tests := []struct {
		qa   string
		want float64
	}{
		{"0000000000000000", 1},
		{"0000000000000010", 1}, // dilated
		{"0000000000000100", 1}, // cirrus
		{"0000000000001000", 0}, // cloud
		{"0000000000010000", 0}, // shadow
		{"0000000000100000", 1}, // snow
	}
	for _, tt := range tests {
		t.Run(tt.qa, func(t *testing.T) {
			mask, err := common.LandsatC2SRCloudMask(qaImage("LANDSAT_8", bits(tt.qa), 0), common.DefaultCloudMaskOptions())
			require.NoError(t, err)
			assert.Equal(t, "cloud_mask", mask.Name)
			assert.Equal(t, tt.want, mask.Data[0])
		})
	}
}

func TestLandsatC2SRCloudMask_Saturated(t *testing.T) {
	snowy := bits("0000000000100000")
	tests := []struct {
		name      string
		radsat    string
		saturated bool
		want      float64
	}{
		{"clear off", "0000", false, 1},
		{"clear on", "0000", true, 1},
		{"rgb off", "1110", false, 1},
		{"rgb on", "1110", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := common.DefaultCloudMaskOptions()
			opts.Saturated = tt.saturated
			mask, err := common.LandsatC2SRCloudMask(qaImage("LANDSAT_8", snowy, bits(tt.radsat)), opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mask.Data[0])
		})
	}
}

func TestLandsatC2SRCloudMask_Filter(t *testing.T) {
	// single cloudy pixel in a clear 5x5 scene is removed by the erosion
	img := raster.NewImage(5, 5, raster.Properties{SpacecraftID: "LANDSAT_8"})
	qa := raster.Fill("QA_PIXEL", 25, 0)
	qa.Data[12] = bits("1000")
	img.AddBand(qa)

	opts := common.DefaultCloudMaskOptions()
	mask, err := common.LandsatC2SRCloudMask(img, opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mask.Data[12])

	opts.Filter = true
	mask, err = common.LandsatC2SRCloudMask(img, opts)
	require.NoError(t, err)
	assert.Equal(t, 25, int(sum(mask.Data)))
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func TestLandsatC2SRCloudMask_CloudScoreNeedsTOA(t *testing.T) {
	opts := common.DefaultCloudMaskOptions()
	opts.CloudScore = true
	_, err := common.LandsatC2SRCloudMask(qaImage("LANDSAT_8", 0, 0), opts)
	assert.True(t, errors.Is(err, common.ErrMissingTOA))
}

func TestSentinel2CloudMask(t *testing.T) {
	tests := []struct {
		qa   string
		want float64
	}{
		{"0000000000000000", 1},
		{"0000010000000000", 0}, // opaque
		{"0000100000000000", 0}, // cirrus
	}
	for _, tt := range tests {
		t.Run(tt.qa, func(t *testing.T) {
			img := raster.NewImage(1, 1, raster.Properties{})
			img.AddBand(raster.Fill("QA60", 1, bits(tt.qa)))

			toa, err := common.Sentinel2TOACloudMask(img)
			require.NoError(t, err)
			sr, err := common.Sentinel2SRCloudMask(img)
			require.NoError(t, err)
			assert.Equal(t, tt.want, toa.Data[0])
			assert.Equal(t, toa.Data, sr.Data)
		})
	}
}

func lstInputs(gedValid bool, ndvi float64) common.LSTInputs {
	sr := raster.NewImage(1, 1, raster.Properties{SpacecraftID: "LANDSAT_8"})
	sr.AddBand(raster.Fill("ST_URAD", 1, 1500))
	sr.AddBand(raster.Fill("ST_ATRAN", 1, 8000))
	sr.AddBand(raster.Fill("ST_DRAD", 1, 2500))

	raw := raster.NewImage(1, 1, raster.Properties{})
	raw.AddBand(raster.Fill("thermal", 1, 20000))
	raw.Props.SetExtra(common.RadianceMultThermal, 3.342e-4)
	raw.Props.SetExtra(common.RadianceAddThermal, 0.1)

	ged := raster.NewImage(1, 1, raster.Properties{})
	ged.AddBand(raster.Fill("emissivity_band13", 1, 970))
	ged.AddBand(raster.Fill("emissivity_band14", 1, 975))
	if gedValid {
		ged.AddBand(raster.Fill("ndvi", 1, 20))
	} else {
		ged.AddBand(raster.Masked("ndvi", 1))
	}

	return common.LSTInputs{SR: sr, Raw: raw, GED: ged, NDVI: raster.Fill("ndvi", 1, ndvi)}
}

func TestLandsatC2SRLSTCorrect(t *testing.T) {
	lst, err := common.LandsatC2SRLSTCorrect(lstInputs(true, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "surface_temperature", lst.Name)
	assert.InDelta(t, 277.44797, lst.Data[0], 1e-4)

	// missing GED values fall back to the default soil emissivity
	lst, err = common.LandsatC2SRLSTCorrect(lstInputs(false, 0.1))
	require.NoError(t, err)
	require.True(t, lst.IsValid(0))
	assert.InDelta(t, 277.85870, lst.Data[0], 1e-4)
}

func TestLandsatC2SRLSTCorrect_MissingProperty(t *testing.T) {
	in := lstInputs(true, 0.5)
	delete(in.Raw.Props.Extra, common.RadianceAddThermal)
	_, err := common.LandsatC2SRLSTCorrect(in)
	assert.ErrorIs(t, err, common.ErrMissingProperty)
}
