package interpolate

import "errors"

var (
	// ErrInvalidMethod indicates an interpolation method other than linear
	ErrInvalidMethod = errors.New("invalid interpolation method")

	// ErrInvalidAggregation indicates an unsupported daily aggregation type
	ErrInvalidAggregation = errors.New("invalid aggregation type")

	// ErrMissingInterval indicates no time interval was given
	ErrMissingInterval = errors.New("time interval must be set")

	// ErrInvalidInterval indicates an unsupported time interval
	ErrInvalidInterval = errors.New("invalid time interval")

	// ErrInvalidDays indicates interp days is not positive
	ErrInvalidDays = errors.New("interp days must be positive")

	// ErrMissingVariables indicates no output variables were requested
	ErrMissingVariables = errors.New("variables must be set")

	// ErrInvalidVariable indicates an unknown output variable
	ErrInvalidVariable = errors.New("unsupported variable")

	// ErrMissingReference indicates no reference ET source was configured
	ErrMissingReference = errors.New("et reference source must be set")

	// ErrMissingInterpSource indicates ET actual interpolation has no interp source
	ErrMissingInterpSource = errors.New("interp source must be set")

	// ErrInvalidResample indicates an unsupported resampling method
	ErrInvalidResample = errors.New("unsupported resample method")

	// ErrNoScenes indicates no scene falls inside the interpolation window.
	// Gaps in the reference or interp source are reported as other errors.
	ErrNoScenes = errors.New("no scenes in interpolation window")

	// ErrInvalidDateRange indicates end is not after start
	ErrInvalidDateRange = errors.New("end date must be after start date")
)
