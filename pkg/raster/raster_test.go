package raster_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openet/core/pkg/raster"
)

func ptr(v float64) *float64 { return &v }

func imageAt(t *testing.T, day int, values ...*float64) *raster.Image {
	t.Helper()
	img := raster.NewImage(len(values), 1, raster.Properties{
		TimeStart: time.Date(2017, 7, day, 0, 0, 0, 0, time.UTC),
	})
	if err := img.AddBand(raster.FromValues("b", values)); err != nil {
		t.Fatalf("add band: %v", err)
	}
	return img
}

func TestImage_SelectRename(t *testing.T) {
	img := raster.NewImage(2, 1, raster.Properties{Index: "x"})
	img.AddBand(raster.Fill("SR_B4", 2, 1))
	img.AddBand(raster.Fill("SR_B5", 2, 2))

	out, err := img.SelectRename([]string{"SR_B5", "SR_B4"}, []string{"nir", "red"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff([]string{"nir", "red"}, out.BandNames()); diff != "" {
		t.Errorf("band names mismatch (-want +got):\n%s", diff)
	}
	if v, _ := out.At("nir", 0); v != 2 {
		t.Errorf("expected nir 2, got %v", v)
	}
	// source image is untouched
	if !img.HasBand("SR_B4") {
		t.Error("source band renamed in place")
	}

	if _, err := img.Select("missing"); !errors.Is(err, raster.ErrBandNotFound) {
		t.Errorf("expected ErrBandNotFound, got %v", err)
	}
}

func TestImage_AddBandShapeMismatch(t *testing.T) {
	img := raster.NewImage(2, 2, raster.Properties{})
	err := img.AddBand(raster.Fill("a", 3, 0))
	if !errors.Is(err, raster.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestCombine_MaskPropagation(t *testing.T) {
	a := raster.FromValues("a", []*float64{ptr(1), nil, ptr(4)})
	b := raster.FromValues("b", []*float64{ptr(2), ptr(3), ptr(0)})

	out, err := raster.Combine("div", func(v []float64) float64 { return v[0] / v[1] }, a, b)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if !out.IsValid(0) || out.Data[0] != 0.5 {
		t.Errorf("pixel 0: got %v valid=%v", out.Data[0], out.IsValid(0))
	}
	if out.IsValid(1) {
		t.Error("pixel 1 should inherit the input mask")
	}
	if out.IsValid(2) {
		t.Error("division by zero should be masked")
	}
}

func TestBand_UnmaskAndWhere(t *testing.T) {
	b := raster.FromValues("x", []*float64{ptr(1), nil, ptr(3)})
	filled := b.Unmask(-1)
	if diff := cmp.Diff([]float64{1, -1, 3}, filled.Data); diff != "" {
		t.Errorf("unmask mismatch (-want +got):\n%s", diff)
	}
	if filled.ValidCount() != 3 {
		t.Errorf("expected all valid, got %d", filled.ValidCount())
	}

	cond := raster.FromValues("c", []*float64{ptr(0), ptr(1), ptr(1)})
	w := b.Where(cond, 9)
	if diff := cmp.Diff([]float64{1, 9, 9}, w.Data); diff != "" {
		t.Errorf("where mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_Mosaic(t *testing.T) {
	coll := raster.NewCollection(
		imageAt(t, 1, ptr(1), ptr(1), nil),
		imageAt(t, 2, ptr(2), nil, nil),
	)
	out, err := coll.Mosaic()
	if err != nil {
		t.Fatalf("mosaic: %v", err)
	}
	b, _ := out.Band("b")
	if b.Data[0] != 2 || b.Data[1] != 1 {
		t.Errorf("expected last valid value on top, got %v", b.Data)
	}
	if b.IsValid(2) {
		t.Error("pixel with no valid inputs should stay masked")
	}
}

func TestCollection_Reducers(t *testing.T) {
	coll := raster.NewCollection(
		imageAt(t, 1, ptr(1), nil),
		imageAt(t, 2, ptr(3), nil),
		imageAt(t, 3, ptr(5), ptr(7)),
	)

	tests := []struct {
		name   string
		reduce func() (*raster.Image, error)
		want   float64
	}{
		{"mean", coll.Mean, 3},
		{"sum", coll.Sum, 9},
		{"count", coll.Count, 3},
		{"min", coll.Min, 1},
		{"max", coll.Max, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.reduce()
			if err != nil {
				t.Fatalf("reduce: %v", err)
			}
			if v, ok := out.At("b", 0); !ok || v != tt.want {
				t.Errorf("expected %v, got %v (valid=%v)", tt.want, v, ok)
			}
			if v, ok := out.At("b", 1); !ok || (tt.name == "count" && v != 1) {
				t.Errorf("pixel 1: got %v valid=%v", v, ok)
			}
		})
	}
}

func TestCollection_FilterDateAndSort(t *testing.T) {
	coll := raster.NewCollection(
		imageAt(t, 3, ptr(3)),
		imageAt(t, 1, ptr(1)),
		imageAt(t, 2, ptr(2)),
	)
	start := time.Date(2017, 7, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2017, 7, 3, 0, 0, 0, 0, time.UTC)

	filtered := coll.FilterDate(start, end)
	if filtered.Len() != 1 {
		t.Fatalf("expected 1 image in [start, end), got %d", filtered.Len())
	}

	sorted := coll.SortByTime(false)
	var days []int
	for _, img := range sorted.Images {
		days = append(days, img.Props.TimeStart.Day())
	}
	if diff := cmp.Diff([]int{3, 2, 1}, days); diff != "" {
		t.Errorf("descending sort mismatch (-want +got):\n%s", diff)
	}
}

func TestFocal(t *testing.T) {
	// 5x5 grid with a single flagged pixel in the centre
	b := raster.NewBand("mask", 25)
	b.Data[12] = 1

	eroded := raster.FocalMin(b, 5, 5, 1)
	if eroded.Data[12] != 0 {
		t.Error("isolated pixel should be removed by a radius 1 minimum")
	}

	dilated := raster.FocalMax(b, 5, 5, 2)
	// (0,2) is exactly 2 pixels above the centre, (0,0) is outside the circle
	if dilated.Data[2] != 1 {
		t.Error("expected radius 2 dilation to reach two rows up")
	}
	if dilated.Data[0] != 0 {
		t.Error("corner is outside a radius 2 circle")
	}
}

func TestResample(t *testing.T) {
	img := raster.NewImage(2, 2, raster.Properties{})
	img.AddBand(&raster.Band{Name: "v", Data: []float64{0, 10, 20, 30}})

	up, err := raster.Resample(img, 4, 4, raster.ResampleNearest)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if v, _ := up.At("v", up.Index(3, 3)); v != 30 {
		t.Errorf("nearest corner: expected 30, got %v", v)
	}

	bl, err := raster.Resample(img, 1, 1, raster.ResampleBilinear)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if v, _ := bl.At("v", 0); math.Abs(v-15) > 1e-9 {
		t.Errorf("bilinear centre: expected 15, got %v", v)
	}

	if _, err := raster.Resample(img, 1, 1, "cubic-spline"); !errors.Is(err, raster.ErrUnsupportedResample) {
		t.Errorf("expected ErrUnsupportedResample, got %v", err)
	}
}

func TestImage_PointValue(t *testing.T) {
	img := raster.NewImage(2, 2, raster.Properties{Index: "x"})
	img.AddBand(raster.FromValues("et", []*float64{ptr(1), ptr(2), nil, ptr(4)}))
	img.AddBand(raster.Fill("et_fraction", 4, 0.5))

	got, err := img.PointValue(1, 0)
	if err != nil {
		t.Fatalf("point value: %v", err)
	}
	want := map[string]*float64{"et": nil, "et_fraction": ptr(0.5)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("point value mismatch (-want +got):\n%s", diff)
	}

	got, err = img.PointValue(0, 1)
	if err != nil {
		t.Fatalf("point value: %v", err)
	}
	if got["et"] == nil || *got["et"] != 2 {
		t.Errorf("expected et 2 at row 0 col 1, got %v", got["et"])
	}

	for _, rc := range [][2]int{{-1, 0}, {0, 2}, {2, 0}} {
		if _, err := img.PointValue(rc[0], rc[1]); !errors.Is(err, raster.ErrOutOfBounds) {
			t.Errorf("row %d col %d: expected ErrOutOfBounds, got %v", rc[0], rc[1], err)
		}
	}
}

func TestImage_ConstantValue(t *testing.T) {
	got, err := raster.Constant(3, 3, "eto", 6.2).ConstantValue()
	if err != nil {
		t.Fatalf("constant value: %v", err)
	}
	if diff := cmp.Diff(map[string]*float64{"eto": ptr(6.2)}, got); diff != "" {
		t.Errorf("constant value mismatch (-want +got):\n%s", diff)
	}
}

func TestCollection_PointValues(t *testing.T) {
	coll := raster.NewCollection(
		imageAt(t, 2, ptr(1), ptr(10)),
		imageAt(t, 3, ptr(2), nil),
	)
	got, err := coll.PointValues(0, 1)
	if err != nil {
		t.Fatalf("point values: %v", err)
	}
	want := map[string]map[string]*float64{
		"b": {"2017-07-02": ptr(10), "2017-07-03": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("point values mismatch (-want +got):\n%s", diff)
	}

	if _, err := coll.PointValues(1, 0); !errors.Is(err, raster.ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}

	empty, err := raster.NewCollection().PointValues(0, 0)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no values for an empty collection, got %v, %v", empty, err)
	}
}
