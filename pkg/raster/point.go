package raster

import "fmt"

// PointDateLayout keys the per-date values returned by Collection.PointValues
const PointDateLayout = "2006-01-02"

// PointValue returns the value of every band at row/col. Masked pixels map
// to nil.
func (img *Image) PointValue(row, col int) (map[string]*float64, error) {
	if row < 0 || col < 0 || row >= img.Height || col >= img.Width {
		return nil, fmt.Errorf("row %d col %d in %dx%d image: %w", row, col, img.Width, img.Height, ErrOutOfBounds)
	}
	i := img.Index(row, col)
	out := make(map[string]*float64, len(img.bands))
	for _, b := range img.bands {
		if !b.IsValid(i) {
			out[b.Name] = nil
			continue
		}
		v := b.Data[i]
		out[b.Name] = &v
	}
	return out, nil
}

// ConstantValue returns the first pixel of every band, the one value an
// image built from constants carries.
func (img *Image) ConstantValue() (map[string]*float64, error) {
	return img.PointValue(0, 0)
}

// PointValues samples every image at row/col. The result is keyed by band
// name, then by the UTC acquisition date. Images sharing a date overwrite
// earlier ones in collection order.
func (c *Collection) PointValues(row, col int) (map[string]map[string]*float64, error) {
	out := make(map[string]map[string]*float64)
	for _, img := range c.Images {
		values, err := img.PointValue(row, col)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", img.Props.Index, err)
		}
		date := img.Props.TimeStart.UTC().Format(PointDateLayout)
		for band, v := range values {
			if out[band] == nil {
				out[band] = make(map[string]*float64)
			}
			out[band][date] = v
		}
	}
	return out, nil
}
