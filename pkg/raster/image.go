// Package raster provides the in-memory image model used by the ET pipeline.
//
// An Image is a fixed-size grid of named float64 bands. Every band carries
// its own validity mask; operations propagate invalid pixels the same way a
// masked pixel propagates through map algebra.
package raster

import (
	"fmt"
	"time"
)

// Properties holds image level metadata
type Properties struct {
	Index        string
	TimeStart    time.Time
	SpacecraftID string
	SceneID      string
	Extra        map[string]float64
	Labels       map[string]string
}

// Clone returns a deep copy of the properties
func (p Properties) Clone() Properties {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]float64, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	if p.Labels != nil {
		out.Labels = make(map[string]string, len(p.Labels))
		for k, v := range p.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// SetExtra sets a numeric property
func (p *Properties) SetExtra(key string, value float64) {
	if p.Extra == nil {
		p.Extra = make(map[string]float64)
	}
	p.Extra[key] = value
}

// SetLabel sets a string property
func (p *Properties) SetLabel(key, value string) {
	if p.Labels == nil {
		p.Labels = make(map[string]string)
	}
	p.Labels[key] = value
}

// Image is a grid of named bands sharing one shape
type Image struct {
	Width  int
	Height int
	Props  Properties

	bands []*Band
}

// NewImage creates an image without bands
func NewImage(width, height int, props Properties) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Props:  props,
	}
}

// Constant creates a single band image filled with value
func Constant(width, height int, name string, value float64) *Image {
	img := NewImage(width, height, Properties{})
	img.bands = append(img.bands, Fill(name, width*height, value))
	return img
}

// Len returns the number of pixels per band
func (img *Image) Len() int {
	return img.Width * img.Height
}

// SameShape reports whether other has the same grid dimensions
func (img *Image) SameShape(other *Image) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// AddBand appends a band, replacing any band with the same name
func (img *Image) AddBand(b *Band) error {
	if b.Len() != img.Len() {
		return fmt.Errorf("band %s has %d pixels, image has %d: %w",
			b.Name, b.Len(), img.Len(), ErrShapeMismatch)
	}
	for i, existing := range img.bands {
		if existing.Name == b.Name {
			img.bands[i] = b
			return nil
		}
	}
	img.bands = append(img.bands, b)
	return nil
}

// AddBands appends every band of other
func (img *Image) AddBands(other *Image) error {
	if !img.SameShape(other) {
		return ErrShapeMismatch
	}
	for _, b := range other.bands {
		if err := img.AddBand(b.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// Band returns the named band
func (img *Image) Band(name string) (*Band, error) {
	for _, b := range img.bands {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrBandNotFound)
}

// HasBand reports whether the named band exists
func (img *Image) HasBand(name string) bool {
	_, err := img.Band(name)
	return err == nil
}

// Bands returns the bands in order
func (img *Image) Bands() []*Band {
	return img.bands
}

// BandNames returns the band names in order
func (img *Image) BandNames() []string {
	names := make([]string, len(img.bands))
	for i, b := range img.bands {
		names[i] = b.Name
	}
	return names
}

// First returns the first band
func (img *Image) First() (*Band, error) {
	if len(img.bands) == 0 {
		return nil, fmt.Errorf("image %s has no bands: %w", img.Props.Index, ErrBandNotFound)
	}
	return img.bands[0], nil
}

// At returns the value of a band pixel and whether it is valid
func (img *Image) At(name string, i int) (float64, bool) {
	b, err := img.Band(name)
	if err != nil || i < 0 || i >= b.Len() {
		return 0, false
	}
	return b.Data[i], b.IsValid(i)
}

// Select returns a copy holding only the named bands, in the given order
func (img *Image) Select(names ...string) (*Image, error) {
	return img.SelectRename(names, names)
}

// SelectRename selects src bands and renames them to dst
func (img *Image) SelectRename(src, dst []string) (*Image, error) {
	if len(src) != len(dst) {
		return nil, fmt.Errorf("select %d bands as %d names", len(src), len(dst))
	}
	out := NewImage(img.Width, img.Height, img.Props.Clone())
	for i, name := range src {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		c := b.Clone()
		c.Name = dst[i]
		out.bands = append(out.bands, c)
	}
	return out, nil
}

// Rename renames every band in order
func (img *Image) Rename(names ...string) error {
	if len(names) != len(img.bands) {
		return fmt.Errorf("rename %d bands with %d names", len(img.bands), len(names))
	}
	for i, b := range img.bands {
		b.Name = names[i]
	}
	return nil
}

// Clone returns a deep copy
func (img *Image) Clone() *Image {
	out := NewImage(img.Width, img.Height, img.Props.Clone())
	for _, b := range img.bands {
		out.bands = append(out.bands, b.Clone())
	}
	return out
}

// UpdateMask masks every band where mask is invalid or zero
func (img *Image) UpdateMask(mask *Band) (*Image, error) {
	if mask.Len() != img.Len() {
		return nil, ErrShapeMismatch
	}
	out := NewImage(img.Width, img.Height, img.Props.Clone())
	for _, b := range img.bands {
		out.bands = append(out.bands, b.UpdateMask(mask))
	}
	return out, nil
}

// Index converts a row and column into a pixel offset
func (img *Image) Index(row, col int) int {
	return row*img.Width + col
}
