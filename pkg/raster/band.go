package raster

import (
	"fmt"
	"math"
)

// Band is a single named layer of pixel values
type Band struct {
	Name  string
	Data  []float64
	Valid []bool // nil means every pixel is valid
}

// NewBand creates a zero filled, fully valid band
func NewBand(name string, n int) *Band {
	return &Band{Name: name, Data: make([]float64, n)}
}

// Fill creates a fully valid band holding value
func Fill(name string, n int, value float64) *Band {
	b := NewBand(name, n)
	for i := range b.Data {
		b.Data[i] = value
	}
	return b
}

// Masked creates a band where every pixel is invalid
func Masked(name string, n int) *Band {
	return &Band{Name: name, Data: make([]float64, n), Valid: make([]bool, n)}
}

// FromValues creates a band from optional values, nil entries are invalid
func FromValues(name string, values []*float64) *Band {
	b := &Band{Name: name, Data: make([]float64, len(values)), Valid: make([]bool, len(values))}
	for i, v := range values {
		if v != nil {
			b.Data[i] = *v
			b.Valid[i] = true
		}
	}
	return b
}

// Len returns the pixel count
func (b *Band) Len() int {
	return len(b.Data)
}

// IsValid reports whether pixel i is unmasked
func (b *Band) IsValid(i int) bool {
	return b.Valid == nil || b.Valid[i]
}

// SetInvalid masks pixel i
func (b *Band) SetInvalid(i int) {
	if b.Valid == nil {
		b.Valid = make([]bool, len(b.Data))
		for j := range b.Valid {
			b.Valid[j] = true
		}
	}
	b.Valid[i] = false
}

// Set stores a valid value at pixel i
func (b *Band) Set(i int, v float64) {
	b.Data[i] = v
	if b.Valid != nil {
		b.Valid[i] = true
	}
}

// ValidCount returns the number of unmasked pixels
func (b *Band) ValidCount() int {
	if b.Valid == nil {
		return len(b.Data)
	}
	n := 0
	for _, ok := range b.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (b *Band) Clone() *Band {
	out := &Band{Name: b.Name, Data: append([]float64(nil), b.Data...)}
	if b.Valid != nil {
		out.Valid = append([]bool(nil), b.Valid...)
	}
	return out
}

// Renamed returns a copy with a new name
func (b *Band) Renamed(name string) *Band {
	out := b.Clone()
	out.Name = name
	return out
}

// Map applies fn to every valid pixel. NaN and Inf results are masked.
func (b *Band) Map(name string, fn func(float64) float64) *Band {
	out := Masked(name, b.Len())
	for i, v := range b.Data {
		if !b.IsValid(i) {
			continue
		}
		r := fn(v)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out.Set(i, r)
	}
	return out.compact()
}

// Combine applies fn pixelwise across bands. A pixel is valid only when it
// is valid in every input and fn returns a finite value.
func Combine(name string, fn func(v []float64) float64, bands ...*Band) (*Band, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("combine %s: no input bands", name)
	}
	n := bands[0].Len()
	for _, b := range bands[1:] {
		if b.Len() != n {
			return nil, fmt.Errorf("combine %s: %w", name, ErrShapeMismatch)
		}
	}

	out := Masked(name, n)
	vals := make([]float64, len(bands))
pixels:
	for i := 0; i < n; i++ {
		for j, b := range bands {
			if !b.IsValid(i) {
				continue pixels
			}
			vals[j] = b.Data[i]
		}
		r := fn(vals)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out.Set(i, r)
	}
	return out.compact(), nil
}

// UpdateMask masks pixels where mask is invalid or zero
func (b *Band) UpdateMask(mask *Band) *Band {
	out := b.Clone()
	for i := range out.Data {
		if !mask.IsValid(i) || mask.Data[i] == 0 {
			out.SetInvalid(i)
		}
	}
	return out
}

// Unmask replaces invalid pixels with fill and returns a fully valid band
func (b *Band) Unmask(fill float64) *Band {
	out := b.Clone()
	for i := range out.Data {
		if !b.IsValid(i) {
			out.Data[i] = fill
		}
	}
	out.Valid = nil
	return out
}

// UnmaskWith replaces invalid pixels with the matching pixel of fill
func (b *Band) UnmaskWith(fill *Band) *Band {
	out := b.Clone()
	for i := range out.Data {
		if !b.IsValid(i) && fill.IsValid(i) {
			out.Set(i, fill.Data[i])
		}
	}
	return out.compact()
}

// Where sets value on pixels where cond is valid and nonzero
func (b *Band) Where(cond *Band, value float64) *Band {
	out := b.Clone()
	for i := range out.Data {
		if cond.IsValid(i) && cond.Data[i] != 0 {
			out.Set(i, value)
		}
	}
	return out.compact()
}

// Or returns 1 where either band is nonzero
func Or(name string, a, b *Band) (*Band, error) {
	return Combine(name, func(v []float64) float64 {
		if v[0] != 0 || v[1] != 0 {
			return 1
		}
		return 0
	}, a, b)
}

// Not returns 1 where the band is zero and 0 elsewhere
func (b *Band) Not(name string) *Band {
	return b.Map(name, func(v float64) float64 {
		if v == 0 {
			return 1
		}
		return 0
	})
}

// compact drops the validity slice when every pixel is valid
func (b *Band) compact() *Band {
	if b.Valid == nil {
		return b
	}
	for _, ok := range b.Valid {
		if !ok {
			return b
		}
	}
	b.Valid = nil
	return b
}
