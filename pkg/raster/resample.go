package raster

import (
	"fmt"
	"math"
	"strings"
)

// Resample methods
const (
	ResampleNearest  = "nearest"
	ResampleBilinear = "bilinear"
	ResampleBicubic  = "bicubic"
)

// ValidResample reports whether method is a known resampling method
func ValidResample(method string) bool {
	switch strings.ToLower(method) {
	case ResampleNearest, ResampleBilinear, ResampleBicubic:
		return true
	}
	return false
}

// Resample maps img onto a width x height grid covering the same extent.
// Pixel centres are used for the mapping.
func Resample(img *Image, width, height int, method string) (*Image, error) {
	method = strings.ToLower(method)
	if !ValidResample(method) {
		return nil, fmt.Errorf("%s: %w", method, ErrUnsupportedResample)
	}
	if img.Width == width && img.Height == height {
		return img.Clone(), nil
	}

	out := NewImage(width, height, img.Props.Clone())
	for _, b := range img.Bands() {
		var rb *Band
		switch method {
		case ResampleNearest:
			rb = resampleNearest(b, img.Width, img.Height, width, height)
		case ResampleBilinear:
			rb = resampleKernel(b, img.Width, img.Height, width, height, 1, linearWeight)
		default:
			rb = resampleKernel(b, img.Width, img.Height, width, height, 2, cubicWeight)
		}
		out.bands = append(out.bands, rb)
	}
	return out, nil
}

// ResampleBand resamples a single band
func ResampleBand(b *Band, srcW, srcH, dstW, dstH int, method string) (*Band, error) {
	img := NewImage(srcW, srcH, Properties{})
	if err := img.AddBand(b); err != nil {
		return nil, err
	}
	out, err := Resample(img, dstW, dstH, method)
	if err != nil {
		return nil, err
	}
	return out.bands[0], nil
}

func srcCoord(dst, srcSize, dstSize int) float64 {
	return (float64(dst)+0.5)*float64(srcSize)/float64(dstSize) - 0.5
}

func resampleNearest(b *Band, sw, sh, dw, dh int) *Band {
	out := Masked(b.Name, dw*dh)
	for r := 0; r < dh; r++ {
		sr := clampInt(int(math.Floor(srcCoord(r, sh, dh)+0.5)), 0, sh-1)
		for c := 0; c < dw; c++ {
			sc := clampInt(int(math.Floor(srcCoord(c, sw, dw)+0.5)), 0, sw-1)
			i := sr*sw + sc
			if b.IsValid(i) {
				out.Set(r*dw+c, b.Data[i])
			}
		}
	}
	return out.compact()
}

func linearWeight(d float64) float64 {
	d = math.Abs(d)
	if d >= 1 {
		return 0
	}
	return 1 - d
}

// cubicWeight is the Catmull-Rom kernel
func cubicWeight(d float64) float64 {
	d = math.Abs(d)
	switch {
	case d < 1:
		return 1.5*d*d*d - 2.5*d*d + 1
	case d < 2:
		return -0.5*d*d*d + 2.5*d*d - 4*d + 2
	}
	return 0
}

// resampleKernel applies a separable kernel of the given support, renormalizing
// over valid source pixels.
func resampleKernel(b *Band, sw, sh, dw, dh, support int, weight func(float64) float64) *Band {
	out := Masked(b.Name, dw*dh)
	for r := 0; r < dh; r++ {
		y := srcCoord(r, sh, dh)
		y0 := int(math.Floor(y))
		for c := 0; c < dw; c++ {
			x := srcCoord(c, sw, dw)
			x0 := int(math.Floor(x))

			var sum, wsum float64
			for ky := y0 - support + 1; ky <= y0+support; ky++ {
				wy := weight(y - float64(ky))
				if wy == 0 {
					continue
				}
				sy := clampInt(ky, 0, sh-1)
				for kx := x0 - support + 1; kx <= x0+support; kx++ {
					wx := weight(x - float64(kx))
					if wx == 0 {
						continue
					}
					sx := clampInt(kx, 0, sw-1)
					i := sy*sw + sx
					if !b.IsValid(i) {
						continue
					}
					sum += wx * wy * b.Data[i]
					wsum += wx * wy
				}
			}
			if math.Abs(wsum) > 1e-12 {
				out.Set(r*dw+c, sum/wsum)
			}
		}
	}
	return out.compact()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
