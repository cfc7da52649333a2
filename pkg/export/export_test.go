package export_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openet/core/pkg/export"
)

const statesYAML = `type: FeatureCollection
features:
  - type: Feature
    properties: {STUSPS: CA}
    geometry:
      type: Polygon
      coordinates: [[[-124.4, 32.5], [-114.1, 32.5], [-114.1, 42.0], [-124.4, 42.0], [-124.4, 32.5]]]
  - type: Feature
    properties: {STUSPS: NV}
    bbox: [-120.0, 35.0, -114.05, 42.0]
    geometry: null
  - type: Feature
    properties: {STUSPS: OR}
    geometry:
      type: MultiPolygon
      coordinates: [[[[-124.6, 42.0], [-116.5, 42.0], [-116.5, 46.3], [-124.6, 42.0]]]]
  - type: Feature
    properties: {STUSPS: TX}
    geometry:
      type: Polygon
      coordinates: [[[-106.6, 25.8], [-93.5, 25.8], [-93.5, 36.5], [-106.6, 25.8]]]
  - type: Feature
    properties: {STUSPS: AK}
    geometry:
      type: Polygon
      coordinates: [[[-170.0, 51.0], [-130.0, 51.0], [-130.0, 71.0], [-170.0, 51.0]]]
`

type tileDef struct {
	mgrs string
	utm  int
	bbox [4]float64
	ext  [4]int
	wrs2 string
}

var tileDefs = []tileDef{
	{"10T", 10, [4]float64{-126, 40, -120, 48}, [4]int{399975, 4399995, 779985, 5299995}, "45:[29-31],46:[29,30]"},
	{"10S", 10, [4]float64{-126, 32, -120, 40}, [4]int{399975, 3699975, 779985, 4399995}, "42:[35,36],43:[34-36]"},
	{"11S", 11, [4]float64{-120, 32, -114, 40}, [4]int{199995, 3499995, 779985, 4499985}, "40:[35,36],41:[35]"},
	{"11T", 11, [4]float64{-120, 40, -114, 48}, [4]int{199995, 4399995, 779985, 5299995}, "41:[30-32]"},
	{"14R", 14, [4]float64{-102, 24, -96, 32}, [4]int{199995, 2599995, 779985, 3599985}, "28:[39,40]"},
	{"04W", 4, [4]float64{-162, 64, -156, 72}, [4]int{399975, 7099995, 779985, 7999995}, "70:[14]"},
	{"12S", 12, [4]float64{-114, 32, -106, 40}, [4]int{199995, 3499995, 779985, 4499985}, ""},
}

func writeFixtures(t *testing.T) (states, tiles []export.Feature) {
	t.Helper()
	dir := t.TempDir()

	statesPath := filepath.Join(dir, "states.yaml")
	if err := os.WriteFile(statesPath, []byte(statesYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	var features []map[string]interface{}
	for _, d := range tileDefs {
		b := d.bbox
		features = append(features, map[string]interface{}{
			"type": "Feature",
			"properties": map[string]interface{}{
				"mgrs": d.mgrs, "utm": d.utm, "epsg": 32600 + d.utm, "wrs2": d.wrs2,
				"xmin": d.ext[0], "ymin": d.ext[1], "xmax": d.ext[2], "ymax": d.ext[3],
			},
			"geometry": map[string]interface{}{
				"type":        "Polygon",
				"coordinates": [][][2]float64{{{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]}, {b[0], b[1]}}},
			},
		})
	}
	data, err := json.Marshal(map[string]interface{}{"type": "FeatureCollection", "features": features})
	if err != nil {
		t.Fatal(err)
	}
	tilesPath := filepath.Join(dir, "tiles.geojson")
	if err := os.WriteFile(tilesPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	states, err = export.LoadFeatures(statesPath)
	if err != nil {
		t.Fatalf("LoadFeatures(states) error = %v", err)
	}
	tiles, err = export.LoadFeatures(tilesPath)
	if err != nil {
		t.Fatalf("LoadFeatures(tiles) error = %v", err)
	}
	return states, tiles
}

func indexes(tiles []export.Tile) []string {
	out := make([]string, len(tiles))
	for i, t := range tiles {
		out[i] = t.Index
	}
	return out
}

func TestLoadFeatures(t *testing.T) {
	states, tiles := writeFixtures(t)
	if len(states) != 5 || len(tiles) != len(tileDefs) {
		t.Fatalf("loaded %d states, %d tiles", len(states), len(tiles))
	}
	if diff := cmp.Diff([4]float64{-124.4, 32.5, -114.1, 42.0}, states[0].BBox); diff != "" {
		t.Errorf("CA bbox mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([4]float64{-120.0, 35.0, -114.05, 42.0}, states[1].BBox); diff != "" {
		t.Errorf("NV bbox mismatch (-want +got):\n%s", diff)
	}
	if v, _ := states[2].String("STUSPS"); v != "OR" {
		t.Errorf("OR property = %q", v)
	}
}

func TestLoadFeatures_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"not a collection", `{"type": "Feature"}`, export.ErrInvalidFeatures},
		{"garbage", "::: [", export.ErrInvalidFeatures},
		{"no geometry", `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {}}]}`, export.ErrMissingGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := export.LoadFeatures(path); !errors.Is(err, tt.want) {
				t.Errorf("LoadFeatures() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := export.LoadFeatures(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMGRSExportTiles(t *testing.T) {
	states, tiles := writeFixtures(t)

	out, err := export.MGRSExportTiles(states, tiles, export.Options{})
	if err != nil {
		t.Fatalf("MGRSExportTiles() error = %v", err)
	}
	// 12S intersects TX but has no WRS2 tiles
	if diff := cmp.Diff([]string{"04W", "10S", "10T", "11S", "11T", "14R"}, indexes(out)); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}

	want := export.Tile{
		CRS:       "EPSG:32610",
		Extent:    [4]int{399975, 3699975, 779985, 4399995},
		Geo:       [6]float64{30, 0, 399975, 0, -30, 4399995},
		Index:     "10S",
		MaxPixels: 295571779,
		Shape:     [2]int{12667, 23334},
		UTM:       10,
		WRS2Tiles: []string{"p042r035", "p042r036", "p043r034", "p043r035", "p043r036"},
	}
	if diff := cmp.Diff(want, out[1]); diff != "" {
		t.Errorf("10S tile mismatch (-want +got):\n%s", diff)
	}
}

func TestMGRSExportTiles_Filters(t *testing.T) {
	states, tiles := writeFixtures(t)

	tests := []struct {
		name string
		opts export.Options
		want []string
	}{
		{
			name: "study area features",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA"}},
			want: []string{"10S", "10T", "11S", "11T"},
		},
		{
			name: "conus",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"conus"}},
			want: []string{"10S", "10T", "11S", "11T", "14R"},
		},
		{
			name: "keep list",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA", "NV"}, MGRSTiles: []string{"10s"}},
			want: []string{"10S"},
		},
		{
			name: "zone prefix",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA", "NV"}, MGRSTiles: []string{"11"}},
			want: []string{"11S", "11T"},
		},
		{
			name: "skip list",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA", "NV"}, MGRSSkipList: []string{"10S"}},
			want: []string{"10T", "11S", "11T"},
		},
		{
			name: "utm zones",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA", "NV"}, UTMZones: []int{11}},
			want: []string{"11S", "11T"},
		},
		{
			name: "wrs2 tiles",
			opts: export.Options{StudyAreaProperty: "STUSPS", StudyAreaFeatures: []string{"CA"}, WRS2Tiles: []string{"p042r035", "p041r035"}},
			want: []string{"10S", "11S"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := export.MGRSExportTiles(states, tiles, tt.opts)
			if err != nil {
				t.Fatalf("MGRSExportTiles() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, indexes(out)); diff != "" {
				t.Errorf("tiles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMGRSExportTiles_WRS2Intersection(t *testing.T) {
	states, tiles := writeFixtures(t)
	out, err := export.MGRSExportTiles(states, tiles, export.Options{
		StudyAreaProperty: "STUSPS",
		StudyAreaFeatures: []string{"CA"},
		MGRSTiles:         []string{"10S"},
		WRS2Tiles:         []string{"p042r035"},
	})
	if err != nil {
		t.Fatalf("MGRSExportTiles() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d tiles", len(out))
	}
	if diff := cmp.Diff([]string{"p042r035"}, out[0].WRS2Tiles); diff != "" {
		t.Errorf("wrs2 mismatch (-want +got):\n%s", diff)
	}
}

func TestMGRSExportTiles_CellSize(t *testing.T) {
	states, tiles := writeFixtures(t)
	out, err := export.MGRSExportTiles(states, tiles, export.Options{MGRSTiles: []string{"10S"}, CellSize: 60})
	if err != nil {
		t.Fatalf("MGRSExportTiles() error = %v", err)
	}
	if got := out[0].Shape; got != [2]int{6333, 11667} {
		t.Errorf("Shape = %v", got)
	}
	if got := out[0].Geo[0]; got != 60 {
		t.Errorf("Geo[0] = %v", got)
	}
}

func TestMGRSExportTiles_MissingProperty(t *testing.T) {
	area := export.Feature{BBox: [4]float64{0, 0, 1, 1}}
	tile := export.Feature{Properties: map[string]interface{}{"mgrs": "10S"}, BBox: [4]float64{0, 0, 1, 1}}
	_, err := export.MGRSExportTiles([]export.Feature{area}, []export.Feature{tile}, export.Options{})
	if !errors.Is(err, export.ErrMissingTileProperty) {
		t.Errorf("error = %v, want ErrMissingTileProperty", err)
	}
}
