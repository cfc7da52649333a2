package raster

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Collection is an ordered set of images
type Collection struct {
	Images []*Image
}

// NewCollection creates a collection from images
func NewCollection(images ...*Image) *Collection {
	return &Collection{Images: images}
}

// Len returns the number of images
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Images)
}

// First returns the first image
func (c *Collection) First() (*Image, error) {
	if c.Len() == 0 {
		return nil, ErrEmptyCollection
	}
	return c.Images[0], nil
}

// Filter keeps images for which keep returns true
func (c *Collection) Filter(keep func(*Image) bool) *Collection {
	out := &Collection{}
	for _, img := range c.Images {
		if keep(img) {
			out.Images = append(out.Images, img)
		}
	}
	return out
}

// FilterDate keeps images with start <= TimeStart < end
func (c *Collection) FilterDate(start, end time.Time) *Collection {
	return c.Filter(func(img *Image) bool {
		t := img.Props.TimeStart
		return !t.Before(start) && t.Before(end)
	})
}

// SortByTime returns a copy sorted by TimeStart. The sort is stable.
func (c *Collection) SortByTime(ascending bool) *Collection {
	out := &Collection{Images: append([]*Image(nil), c.Images...)}
	sort.SliceStable(out.Images, func(i, j int) bool {
		a, b := out.Images[i].Props.TimeStart, out.Images[j].Props.TimeStart
		if ascending {
			return a.Before(b)
		}
		return a.After(b)
	})
	return out
}

// Merge returns a collection holding both image sets
func (c *Collection) Merge(other *Collection) *Collection {
	out := &Collection{Images: append([]*Image(nil), c.Images...)}
	if other != nil {
		out.Images = append(out.Images, other.Images...)
	}
	return out
}

// Map applies fn to every image
func (c *Collection) Map(fn func(*Image) (*Image, error)) (*Collection, error) {
	out := &Collection{Images: make([]*Image, 0, c.Len())}
	for _, img := range c.Images {
		mapped, err := fn(img)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.Props.Index, err)
		}
		out.Images = append(out.Images, mapped)
	}
	return out, nil
}

// Select keeps the named bands on every image
func (c *Collection) Select(names ...string) (*Collection, error) {
	return c.Map(func(img *Image) (*Image, error) {
		return img.Select(names...)
	})
}

// Mosaic flattens the collection. For every band and pixel the last image
// in collection order with a valid value wins.
func (c *Collection) Mosaic() (*Image, error) {
	first, err := c.First()
	if err != nil {
		return nil, err
	}
	out := NewImage(first.Width, first.Height, Properties{})
	for _, name := range c.bandNames() {
		mb := Masked(name, first.Len())
		for _, img := range c.Images {
			if !img.SameShape(first) {
				return nil, ErrShapeMismatch
			}
			b, err := img.Band(name)
			if err != nil {
				continue
			}
			for i := range b.Data {
				if b.IsValid(i) {
					mb.Set(i, b.Data[i])
				}
			}
		}
		out.bands = append(out.bands, mb.compact())
	}
	return out, nil
}

// Mean reduces the collection to the per-band mean of valid pixels
func (c *Collection) Mean() (*Image, error) {
	return c.reduce(func(vals []float64) float64 {
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	})
}

// Sum reduces the collection to the per-band sum of valid pixels
func (c *Collection) Sum() (*Image, error) {
	return c.reduce(func(vals []float64) float64 {
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	})
}

// Count reduces the collection to the number of valid pixels per band
func (c *Collection) Count() (*Image, error) {
	return c.reduce(func(vals []float64) float64 {
		return float64(len(vals))
	})
}

// Min reduces the collection to the per-band minimum
func (c *Collection) Min() (*Image, error) {
	return c.reduce(func(vals []float64) float64 {
		m := math.Inf(1)
		for _, v := range vals {
			m = math.Min(m, v)
		}
		return m
	})
}

// Max reduces the collection to the per-band maximum
func (c *Collection) Max() (*Image, error) {
	return c.reduce(func(vals []float64) float64 {
		m := math.Inf(-1)
		for _, v := range vals {
			m = math.Max(m, v)
		}
		return m
	})
}

func (c *Collection) reduce(fn func([]float64) float64) (*Image, error) {
	first, err := c.First()
	if err != nil {
		return nil, err
	}
	out := NewImage(first.Width, first.Height, Properties{})
	for _, name := range c.bandNames() {
		var bands []*Band
		for _, img := range c.Images {
			if !img.SameShape(first) {
				return nil, ErrShapeMismatch
			}
			if b, err := img.Band(name); err == nil {
				bands = append(bands, b)
			}
		}

		rb := Masked(name, first.Len())
		vals := make([]float64, 0, len(bands))
		for i := 0; i < first.Len(); i++ {
			vals = vals[:0]
			for _, b := range bands {
				if b.IsValid(i) {
					vals = append(vals, b.Data[i])
				}
			}
			if len(vals) > 0 {
				rb.Set(i, fn(vals))
			}
		}
		out.bands = append(out.bands, rb.compact())
	}
	return out, nil
}

// bandNames returns the union of band names in order of first appearance
func (c *Collection) bandNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, img := range c.Images {
		for _, b := range img.bands {
			if !seen[b.Name] {
				seen[b.Name] = true
				names = append(names, b.Name)
			}
		}
	}
	return names
}
