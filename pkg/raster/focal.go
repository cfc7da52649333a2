package raster

import "math"

// FocalMin returns the minimum of valid pixels inside a circular kernel
func FocalMin(b *Band, width, height int, radius float64) *Band {
	return focal(b, width, height, radius, math.Min)
}

// FocalMax returns the maximum of valid pixels inside a circular kernel
func FocalMax(b *Band, width, height int, radius float64) *Band {
	return focal(b, width, height, radius, math.Max)
}

type offset struct{ dr, dc int }

// circleKernel lists the offsets with dr²+dc² <= r²
func circleKernel(radius float64) []offset {
	r := int(math.Floor(radius))
	var kernel []offset
	for dr := -r; dr <= r; dr++ {
		for dc := -r; dc <= r; dc++ {
			if float64(dr*dr+dc*dc) <= radius*radius {
				kernel = append(kernel, offset{dr, dc})
			}
		}
	}
	return kernel
}

func focal(b *Band, width, height int, radius float64, pick func(a, b float64) float64) *Band {
	kernel := circleKernel(radius)
	out := Masked(b.Name, b.Len())
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			found := false
			var acc float64
			for _, k := range kernel {
				r, c := row+k.dr, col+k.dc
				if r < 0 || r >= height || c < 0 || c >= width {
					continue
				}
				i := r*width + c
				if !b.IsValid(i) {
					continue
				}
				if !found {
					acc = b.Data[i]
					found = true
				} else {
					acc = pick(acc, b.Data[i])
				}
			}
			if found {
				out.Set(row*width+col, acc)
			}
		}
	}
	return out.compact()
}
