package common

import "errors"

var (
	// ErrMissingTOA indicates cloud scoring was requested without a matched TOA scene
	ErrMissingTOA = errors.New("cloud score mask requires a matched TOA image")

	// ErrMissingProperty indicates an image lacks a required metadata value
	ErrMissingProperty = errors.New("missing image property")
)
