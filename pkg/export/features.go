package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature is a GeoJSON feature reduced to its properties and lon/lat bounding box
type Feature struct {
	Properties map[string]interface{}
	// BBox is [minLon, minLat, maxLon, maxLat]
	BBox [4]float64
}

// Intersects reports whether the bounding boxes overlap. Touching edges count.
func (f Feature) Intersects(o Feature) bool {
	return f.BBox[0] <= o.BBox[2] && o.BBox[0] <= f.BBox[2] &&
		f.BBox[1] <= o.BBox[3] && o.BBox[1] <= f.BBox[3]
}

// String returns a property formatted as a string
func (f Feature) String(key string) (string, bool) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// Number returns a numeric property, parsing strings when needed
func (f Feature) Number(key string) (float64, bool) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	BBox       []float64              `json:"bbox,omitempty"`
	Geometry   *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// LoadFeatures reads a GeoJSON FeatureCollection stored as JSON or YAML
func LoadFeatures(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read features: %w", err)
	}

	var fc geoJSONCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		var yamlData map[string]interface{}
		if yerr := yaml.Unmarshal(data, &yamlData); yerr != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrInvalidFeatures)
		}
		jsonData, err := json.Marshal(yamlData)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrInvalidFeatures)
		}
		if err := json.Unmarshal(jsonData, &fc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrInvalidFeatures)
		}
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%s: type %q: %w", path, fc.Type, ErrInvalidFeatures)
	}

	out := make([]Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		f := Feature{Properties: gf.Properties}
		if f.Properties == nil {
			f.Properties = map[string]interface{}{}
		}
		switch {
		case len(gf.BBox) == 4:
			copy(f.BBox[:], gf.BBox)
		case gf.Geometry != nil:
			bbox, err := coordsBBox(gf.Geometry.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("%s feature %d: %w", path, i, err)
			}
			f.BBox = bbox
		default:
			return nil, fmt.Errorf("%s feature %d: %w", path, i, ErrMissingGeometry)
		}
		out = append(out, f)
	}
	return out, nil
}

// coordsBBox walks any nesting of GeoJSON positions
func coordsBBox(raw json.RawMessage) ([4]float64, error) {
	var coords interface{}
	if err := json.Unmarshal(raw, &coords); err != nil {
		return [4]float64{}, fmt.Errorf("%w: %v", ErrMissingGeometry, err)
	}
	bbox := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	var walk func(v interface{})
	walk = func(v interface{}) {
		arr, ok := v.([]interface{})
		if !ok {
			return
		}
		if len(arr) >= 2 {
			lon, lok := arr[0].(float64)
			lat, aok := arr[1].(float64)
			if lok && aok {
				bbox[0] = math.Min(bbox[0], lon)
				bbox[1] = math.Min(bbox[1], lat)
				bbox[2] = math.Max(bbox[2], lon)
				bbox[3] = math.Max(bbox[3], lat)
				return
			}
		}
		for _, c := range arr {
			walk(c)
		}
	}
	walk(coords)
	if math.IsInf(bbox[0], 1) {
		return bbox, ErrMissingGeometry
	}
	return bbox, nil
}
