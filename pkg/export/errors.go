package export

import "errors"

var (
	// ErrInvalidFeatures indicates a file that is not a GeoJSON FeatureCollection
	ErrInvalidFeatures = errors.New("invalid feature collection")

	// ErrMissingGeometry indicates a feature without coordinates or bbox
	ErrMissingGeometry = errors.New("feature has no geometry")

	// ErrMissingTileProperty indicates an MGRS tile feature lacks a required property
	ErrMissingTileProperty = errors.New("missing tile property")
)
