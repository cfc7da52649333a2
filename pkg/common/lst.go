package common

import (
	"fmt"
	"math"

	"github.com/openet/core/pkg/landsat"
	"github.com/openet/core/pkg/raster"
)

// Thermal property keys set on the matched raw (T1/RT) scene
const (
	RadianceMultThermal = "RADIANCE_MULT_BAND_thermal"
	RadianceAddThermal  = "RADIANCE_ADD_BAND_thermal"
)

const (
	vegEmissivity  = 0.99
	soilEmissFill  = 0.97
	asterVegEmiss  = 0.9798
	fcSoilMaxCover = 0.8
)

type lstCoefficients struct {
	k1, k2, c13, c14, c float64
}

var lstCoeffs = map[landsat.Spacecraft]lstCoefficients{
	landsat.Landsat4: {607.76, 1260.56, 0.3222, 0.6498, 0.0272},
	landsat.Landsat5: {607.76, 1260.56, -0.0723, 1.0521, 0.0195},
	landsat.Landsat7: {666.09, 1282.71, 0.2147, 0.7789, 0.0058},
	landsat.Landsat8: {774.8853, 1321.0789, 0.6820, 0.2578, 0.0584},
	landsat.Landsat9: {799.0284, 1329.0284, 0.7689, 0.1843, 0.0457},
}

// LSTInputs gathers the scenes needed to recompute surface temperature
type LSTInputs struct {
	// SR is the Level 2 scene with ST_URAD, ST_ATRAN and ST_DRAD
	SR *raster.Image
	// Raw is the matched T1/RT scene with a "thermal" band and the
	// RadianceMultThermal and RadianceAddThermal extras
	Raw *raster.Image
	// GED is the ASTER GED image with emissivity_band13, emissivity_band14 and ndvi
	GED *raster.Image
	// NDVI is the Landsat NDVI on the SR grid
	NDVI *raster.Band
}

// LandsatC2SRLSTCorrect recomputes land surface temperature using ASTER based
// soil emissivity blended with vegetation emissivity by fractional cover.
func LandsatC2SRLSTCorrect(in LSTInputs) (*raster.Band, error) {
	sc, err := landsat.ParseSpacecraft(in.SR.Props.SpacecraftID)
	if err != nil {
		return nil, err
	}
	k := lstCoeffs[sc]

	mult, ok := in.Raw.Props.Extra[RadianceMultThermal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingProperty, RadianceMultThermal)
	}
	add, ok := in.Raw.Props.Extra[RadianceAddThermal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingProperty, RadianceAddThermal)
	}
	if in.NDVI.Len() != in.SR.Len() {
		return nil, fmt.Errorf("ndvi: %w", raster.ErrShapeMismatch)
	}

	emSoil, err := soilEmissivity(in.GED, k)
	if err != nil {
		return nil, err
	}
	emSoil, err = raster.ResampleBand(emSoil, in.GED.Width, in.GED.Height, in.SR.Width, in.SR.Height, raster.ResampleBilinear)
	if err != nil {
		return nil, err
	}
	// fill gaps with the default soil emissivity inside the NDVI footprint
	emSoil = emSoil.UnmaskWith(in.NDVI.Map("fill", func(float64) float64 { return soilEmissFill }))

	bands := []*raster.Band{emSoil, in.NDVI}
	for _, src := range []struct {
		img  *raster.Image
		name string
	}{
		{in.Raw, "thermal"},
		{in.SR, "ST_URAD"},
		{in.SR, "ST_ATRAN"},
		{in.SR, "ST_DRAD"},
	} {
		b, err := src.img.Band(src.name)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}

	return raster.Combine("surface_temperature", func(v []float64) float64 {
		soil, ndvi, thermal, urad, atran, drad := v[0], v[1], v[2], v[3], v[4], v[5]

		fc := clamp((ndvi-0.15)/0.65, 0, 1)
		em := (1-fc)*soil + fc*vegEmissivity
		rc := (thermal*mult+add-urad*0.001)/(atran*0.0001) - (1-em)*drad*0.001
		return k.k2 / math.Log(em*k.k1/rc+1)
	}, bands...)
}

// soilEmissivity derives bare soil emissivity on the GED grid
func soilEmissivity(ged *raster.Image, k lstCoefficients) (*raster.Band, error) {
	var bands []*raster.Band
	for _, name := range []string{"emissivity_band13", "emissivity_band14", "ndvi"} {
		b, err := ged.Band(name)
		if err != nil {
			return nil, fmt.Errorf("ged: %w", err)
		}
		bands = append(bands, b)
	}

	return raster.Combine("em_soil", func(v []float64) float64 {
		emAsL := v[0]*0.001*k.c13 + v[1]*0.001*k.c14 + k.c
		fc := clamp((v[2]*0.01-0.15)/0.65, 0, 1)
		if fc > fcSoilMaxCover {
			return soilEmissFill
		}
		return (emAsL - asterVegEmiss*fc) / (1 - fc)
	}, bands...)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
