package landsat

import (
	"fmt"

	"github.com/openet/core/pkg/raster"
)

// Spacecraft identifies a Landsat platform by its SPACECRAFT_ID value
type Spacecraft string

// Supported platforms
const (
	Landsat4 Spacecraft = "LANDSAT_4"
	Landsat5 Spacecraft = "LANDSAT_5"
	Landsat7 Spacecraft = "LANDSAT_7"
	Landsat8 Spacecraft = "LANDSAT_8"
	Landsat9 Spacecraft = "LANDSAT_9"
)

// ParseSpacecraft validates a SPACECRAFT_ID string
func ParseSpacecraft(id string) (Spacecraft, error) {
	switch s := Spacecraft(id); s {
	case Landsat4, Landsat5, Landsat7, Landsat8, Landsat9:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSpacecraft, id)
}

// OLI reports whether the platform carries the OLI/TIRS sensors (Landsat 8 and 9)
func (s Spacecraft) OLI() bool {
	return s == Landsat8 || s == Landsat9
}

// MatchScene returns the image in coll with the same SceneID as sceneID
func MatchScene(coll *raster.Collection, sceneID string) (*raster.Image, error) {
	for _, img := range coll.Images {
		if img.Props.SceneID == sceneID {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
}
