package interpolate

import (
	"fmt"

	"github.com/openet/core/pkg/raster"
)

// ET fraction clamp applied to scene ET / interp source ratios
const (
	DefaultETFractionMin = 0.0
	DefaultETFractionMax = 1.4
)

// InterpArgs controls the temporal interpolation. Reference settings given
// here take precedence over the same settings in ModelArgs.
type InterpArgs struct {
	Method string
	Days   int
	// UseJoins defaults to true
	UseJoins *bool
	// MaskPartialAggregations defaults to true
	MaskPartialAggregations *bool

	ETReferenceSource   ReferenceSource
	ETReferenceBand     string
	ETReferenceFactor   *float64
	ETReferenceResample string

	// Interp source settings are only used by FromSceneETActual
	InterpSource   ReferenceSource
	InterpBand     string
	InterpResample string
	ETFractionMin  *float64
	ETFractionMax  *float64
}

// ModelArgs carries model level defaults for the reference ET settings
type ModelArgs struct {
	ETReferenceSource   ReferenceSource
	ETReferenceBand     string
	ETReferenceFactor   *float64
	ETReferenceResample string
}

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// reference is the resolved reference ET configuration
type reference struct {
	source   ReferenceSource
	band     string
	factor   float64
	resample string
}

func resolveReference(interp InterpArgs, model ModelArgs) (reference, error) {
	ref := reference{
		source:   interp.ETReferenceSource,
		band:     interp.ETReferenceBand,
		resample: interp.ETReferenceResample,
	}
	if ref.source == nil {
		ref.source = model.ETReferenceSource
	}
	if ref.band == "" {
		ref.band = model.ETReferenceBand
	}
	if ref.resample == "" {
		ref.resample = model.ETReferenceResample
	}
	factor := interp.ETReferenceFactor
	if factor == nil {
		factor = model.ETReferenceFactor
	}
	ref.factor = floatOr(factor, 1.0)

	if ref.source == nil {
		return ref, ErrMissingReference
	}
	if ref.resample == "" {
		ref.resample = raster.ResampleNearest
	}
	if !raster.ValidResample(ref.resample) {
		return ref, fmt.Errorf("%w: %s", ErrInvalidResample, ref.resample)
	}
	return ref, nil
}

func (a InterpArgs) dailyOptions() DailyOptions {
	return DailyOptions{
		InterpDays: a.Days,
		Method:     a.Method,
		UseJoins:   boolOr(a.UseJoins, true),
	}
}

func (a InterpArgs) validate() error {
	method := a.Method
	if method == "" {
		method = MethodLinear
	}
	if method != MethodLinear {
		return fmt.Errorf("%w: %s", ErrInvalidMethod, a.Method)
	}
	if a.Days <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDays, a.Days)
	}
	return nil
}
