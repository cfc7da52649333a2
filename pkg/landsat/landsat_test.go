package landsat_test

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openet/core/pkg/landsat"
	"github.com/openet/core/pkg/raster"
)

func bits(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseInt(s, 2, 64)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return float64(v)
}

func constImage(spacecraft string, bands map[string]float64) *raster.Image {
	img := raster.NewImage(1, 1, raster.Properties{SpacecraftID: spacecraft})
	for name, v := range bands {
		img.AddBand(raster.Fill(name, 1, v))
	}
	return img
}

func TestQAPixelMask_Defaults(t *testing.T) {
	tests := []struct {
		qa   string
		want float64
	}{
		{"0000000000000000", 0}, // fill
		{"0000000000000001", 0},
		{"0000000000000010", 0}, // dilated cloud
		{"0000000000000100", 0}, // cirrus
		{"0000000000001000", 1}, // cloud
		{"0000000000010000", 1}, // cloud shadow
		{"0000000000100000", 0}, // snow
		{"0000000001000000", 0}, // clear
		{"0000000010000000", 0}, // water
	}
	for _, tt := range tests {
		t.Run(tt.qa, func(t *testing.T) {
			img := constImage("LANDSAT_8", map[string]float64{"QA_PIXEL": bits(t, tt.qa)})
			mask, err := landsat.QAPixelMask(img, landsat.DefaultQAPixelOptions())
			if err != nil {
				t.Fatalf("mask: %v", err)
			}
			if mask.Name != "mask" || mask.Data[0] != tt.want {
				t.Errorf("expected %v, got %v (%s)", tt.want, mask.Data[0], mask.Name)
			}
		})
	}
}

func TestQAPixelMask_Flags(t *testing.T) {
	tests := []struct {
		name string
		qa   string
		opts landsat.QAPixelOptions
		want float64
	}{
		{"dilate off", "0000000000000010", landsat.QAPixelOptions{}, 0},
		{"dilate on", "0000000000000010", landsat.QAPixelOptions{Dilate: true}, 1},
		{"cirrus off", "0000000000000100", landsat.QAPixelOptions{}, 0},
		{"cirrus on", "0000000000000100", landsat.QAPixelOptions{Cirrus: true}, 1},
		{"shadow off", "0000000000010000", landsat.QAPixelOptions{}, 0},
		{"shadow on", "0000000000010000", landsat.QAPixelOptions{Shadow: true}, 1},
		{"snow off", "0000000000100000", landsat.QAPixelOptions{}, 0},
		{"snow on", "0000000000100000", landsat.QAPixelOptions{Snow: true}, 1},
		{"water on", "0000000010000000", landsat.QAPixelOptions{Water: true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := constImage("LANDSAT_8", map[string]float64{"QA_PIXEL": bits(t, tt.qa)})
			mask, err := landsat.QAPixelMask(img, tt.opts)
			if err != nil {
				t.Fatalf("mask: %v", err)
			}
			if mask.Data[0] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, mask.Data[0])
			}
		})
	}
}

func TestQAPixelMask_MissingBand(t *testing.T) {
	img := constImage("LANDSAT_8", map[string]float64{"QA_RADSAT": 0})
	if _, err := landsat.QAPixelMask(img, landsat.DefaultQAPixelOptions()); !errors.Is(err, raster.ErrBandNotFound) {
		t.Errorf("expected ErrBandNotFound, got %v", err)
	}
}

func TestQAWaterMask(t *testing.T) {
	img := constImage("LANDSAT_8", map[string]float64{"QA_PIXEL": bits(t, "0000000010000000")})
	mask, err := landsat.QAWaterMask(img)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if mask.Name != "qa_water_mask" || mask.Data[0] != 1 {
		t.Errorf("expected water flag, got %v (%s)", mask.Data[0], mask.Name)
	}
}

func TestQARadsatMask(t *testing.T) {
	tests := []struct {
		qa         string
		spacecraft string
		want       float64
	}{
		{"0000000000000000", "LANDSAT_7", 0},
		{"0000000000000001", "LANDSAT_7", 1}, // blue
		{"0000000000000100", "LANDSAT_7", 1}, // red
		{"0000000000000111", "LANDSAT_7", 1}, // rgb
		{"0000000000001000", "LANDSAT_7", 0}, // nir
		{"0000000000000000", "LANDSAT_8", 0},
		{"0000000000000001", "LANDSAT_8", 0}, // coastal
		{"0000000000000010", "LANDSAT_8", 1}, // blue
		{"0000000000001000", "LANDSAT_8", 1}, // red
		{"0000000000001110", "LANDSAT_8", 1}, // rgb
		{"0000000000010000", "LANDSAT_8", 0}, // nir
	}
	for _, tt := range tests {
		t.Run(tt.spacecraft+"/"+tt.qa, func(t *testing.T) {
			img := constImage(tt.spacecraft, map[string]float64{"QA_RADSAT": bits(t, tt.qa)})
			mask, err := landsat.QARadsatMask(img)
			if err != nil {
				t.Fatalf("mask: %v", err)
			}
			if mask.Data[0] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, mask.Data[0])
			}
		})
	}
}

func TestSRCloudQAMask(t *testing.T) {
	tests := []struct {
		qa         string
		spacecraft string
		want       float64
	}{
		{"0000000000000000", "LANDSAT_7", 0},
		{"0000000000000001", "LANDSAT_7", 0}, // dark dense vegetation
		{"0000000000000010", "LANDSAT_7", 1}, // cloud
		{"0000000000000100", "LANDSAT_7", 1}, // shadow
		{"0000000000001000", "LANDSAT_7", 1}, // adjacent
		{"0000000000010000", "LANDSAT_7", 1}, // snow
		{"0000000000100000", "LANDSAT_7", 0}, // water
		{"0000000000000010", "LANDSAT_5", 1},
		{"0000000000000000", "LANDSAT_8", 0},
		{"0000000000000010", "LANDSAT_8", 0},
		{"0000000000000010", "LANDSAT_9", 0},
	}
	for _, tt := range tests {
		t.Run(tt.spacecraft+"/"+tt.qa, func(t *testing.T) {
			img := constImage(tt.spacecraft, map[string]float64{
				"SR_CLOUD_QA": bits(t, tt.qa),
				"QA_PIXEL":    1,
			})
			mask, err := landsat.SRCloudQAMask(img, landsat.DefaultSRCloudQAOptions())
			if err != nil {
				t.Fatalf("mask: %v", err)
			}
			if mask.Data[0] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, mask.Data[0])
			}
		})
	}
}

func TestUnsupportedSpacecraft(t *testing.T) {
	img := constImage("SENTINEL_2A", map[string]float64{"QA_RADSAT": 0})
	if _, err := landsat.QARadsatMask(img); !errors.Is(err, landsat.ErrUnsupportedSpacecraft) {
		t.Errorf("expected ErrUnsupportedSpacecraft, got %v", err)
	}
	if _, err := landsat.L2SR(img); !errors.Is(err, landsat.ErrUnsupportedSpacecraft) {
		t.Errorf("expected ErrUnsupportedSpacecraft, got %v", err)
	}
}

func TestL2SR(t *testing.T) {
	img := constImage("LANDSAT_5", map[string]float64{
		"SR_B1": 10000, "SR_B2": 10000, "SR_B3": 10000, "SR_B4": 20000,
		"SR_B5": 10000, "SR_B7": 10000, "ST_B6": 44000,
		"QA_PIXEL": 21824, "QA_RADSAT": 0,
	})
	sr, err := landsat.L2SR(img)
	if err != nil {
		t.Fatalf("l2sr: %v", err)
	}
	if diff := cmp.Diff(landsat.SRBands, sr.BandNames()); diff != "" {
		t.Errorf("band names mismatch (-want +got):\n%s", diff)
	}
	if v, _ := sr.At("nir", 0); math.Abs(v-0.35) > 1e-9 {
		t.Errorf("nir: expected 0.35, got %v", v)
	}
	if v, _ := sr.At("lst", 0); math.Abs(v-(44000*0.00341802+149)) > 1e-9 {
		t.Errorf("lst: got %v", v)
	}
	if v, _ := sr.At("QA_PIXEL", 0); v != 21824 {
		t.Errorf("QA_PIXEL should pass through, got %v", v)
	}
}

func srImage(red, nir float64, qa *float64) *raster.Image {
	bands := map[string]float64{"red": red, "nir": nir}
	if qa != nil {
		bands["QA_PIXEL"] = *qa
	}
	return constImage("LANDSAT_5", bands)
}

func TestSRNDVI(t *testing.T) {
	tests := []struct {
		name     string
		red, nir float64
		want     float64
	}{
		{"negative", 0.02, 0.9 / 55, -0.1},
		{"zero", 0.02, 0.02, 0.0},
		{"0.1", 0.01, 0.11 / 9, 0.1},
		{"0.2", 0.02, 0.03, 0.2},
		{"0.4", 0.03, 0.07, 0.4},
		{"0.8", 0.01, 0.09, 0.8},
		{"saturated red", 1.0, 0.4, 0.0},
		{"saturated nir", 0.4, 1.0, 0.0},
		{"dark", 0.009, 0.009, 0.0},
		{"dark negative", -0.1, -0.1, 0.0},
		{"dark mixed", 0.009, -0.01, 0.0},
		{"negative red", -0.01, 0.1, 1.0},
		{"negative nir", 0.1, -0.01, -1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ndvi, err := landsat.SRNDVI(srImage(tt.red, tt.nir, nil))
			if err != nil {
				t.Fatalf("ndvi: %v", err)
			}
			if ndvi.Name != "ndvi" || math.Abs(ndvi.Data[0]-tt.want) > 1e-6 {
				t.Errorf("expected %v, got %v", tt.want, ndvi.Data[0])
			}
		})
	}
}

func TestSRNDVI_Water(t *testing.T) {
	water := float64(1 << 7)
	for _, refl := range [][2]float64{{-0.1, -0.1}, {0, 0}, {0.009, 0.009}, {0.009, -0.01}} {
		ndvi, err := landsat.SRNDVI(srImage(refl[0], refl[1], &water))
		if err != nil {
			t.Fatalf("ndvi: %v", err)
		}
		if math.Abs(ndvi.Data[0]-landsat.WaterNDVI) > 1e-6 {
			t.Errorf("%v: expected water value, got %v", refl, ndvi.Data[0])
		}
	}

	clear := 0.0
	ndvi, _ := landsat.SRNDVI(srImage(-0.1, -0.1, &clear))
	if ndvi.Data[0] != 0 {
		t.Errorf("non-water dark pixel should be 0, got %v", ndvi.Data[0])
	}
}

func TestSimpleCloudScore(t *testing.T) {
	cloudy := constImage("LANDSAT_5", map[string]float64{
		"blue": 0.4, "green": 0.4, "red": 0.4, "nir": 0.4, "swir1": 0.35, "swir2": 0.3, "thermal": 280,
	})
	score, err := landsat.SimpleCloudScore(cloudy)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Data[0] != 100 {
		t.Errorf("expected bright cold pixel to score 100, got %v", score.Data[0])
	}

	vegetation := constImage("LANDSAT_5", map[string]float64{
		"blue": 0.03, "green": 0.06, "red": 0.04, "nir": 0.4, "swir1": 0.2, "swir2": 0.1, "thermal": 305,
	})
	score, _ = landsat.SimpleCloudScore(vegetation)
	if score.Data[0] != 0 {
		t.Errorf("expected clear pixel to score 0, got %v", score.Data[0])
	}

	mask, err := landsat.CloudScoreMask(cloudy, cloudy, 50)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if mask.Data[0] != 1 {
		t.Error("expected cloudy pixel to be masked at 50")
	}

	empty, _ := landsat.CloudScoreMask(vegetation, nil, landsat.DefaultCloudScorePct)
	if empty.Data[0] != 0 {
		t.Error("missing TOA scene should give a clear mask")
	}
}

func TestMatchScene(t *testing.T) {
	a := raster.NewImage(1, 1, raster.Properties{SceneID: "LC80300362021206LGN00"})
	coll := raster.NewCollection(a)
	if got, err := landsat.MatchScene(coll, "LC80300362021206LGN00"); err != nil || got != a {
		t.Errorf("expected match, got %v err=%v", got, err)
	}
	if _, err := landsat.MatchScene(coll, "LT50440292000167XXX02"); !errors.Is(err, landsat.ErrSceneNotFound) {
		t.Errorf("expected ErrSceneNotFound, got %v", err)
	}
}
