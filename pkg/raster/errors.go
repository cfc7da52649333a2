package raster

import "errors"

// Sentinel errors for raster operations, checked with errors.Is.
var (
	// ErrBandNotFound indicates a requested band is not present on the image
	ErrBandNotFound = errors.New("band not found")

	// ErrShapeMismatch indicates two grids do not share width and height
	ErrShapeMismatch = errors.New("image shapes do not match")

	// ErrEmptyCollection indicates an operation needed at least one image
	ErrEmptyCollection = errors.New("collection is empty")

	// ErrOutOfBounds indicates a pixel outside the image grid
	ErrOutOfBounds = errors.New("pixel out of bounds")

	// ErrUnsupportedResample indicates an unknown resampling method
	ErrUnsupportedResample = errors.New("unsupported resample method")
)
