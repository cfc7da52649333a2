package landsat

import "errors"

var (
	// ErrUnsupportedSpacecraft indicates SpacecraftID is not LANDSAT_4/5/7/8/9
	ErrUnsupportedSpacecraft = errors.New("unsupported spacecraft")

	// ErrSceneNotFound indicates no image in a collection matched the scene ID
	ErrSceneNotFound = errors.New("matching scene not found")
)
