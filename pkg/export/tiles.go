// Package export selects the MGRS tiles that cover a study area and builds
// the per-tile grid definition used for exports.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/utils"
)

// conusStates are the contiguous states plus DC
var conusStates = []string{
	"AL", "AR", "AZ", "CA", "CO", "CT", "DC", "DE", "FL", "GA",
	"IA", "ID", "IL", "IN", "KS", "KY", "LA", "MA", "MD", "ME",
	"MI", "MN", "MO", "MS", "MT", "NC", "ND", "NE", "NH", "NJ",
	"NM", "NV", "NY", "OH", "OK", "OR", "PA", "RI", "SC", "SD",
	"TN", "TX", "UT", "VA", "VT", "WA", "WI", "WV", "WY",
}

// Options filter and describe the export tiles
type Options struct {
	// StudyAreaProperty and StudyAreaFeatures select study area features.
	// Both must be set for the filter to apply.
	StudyAreaProperty string
	StudyAreaFeatures []string
	// MGRSTiles keeps tiles whose id starts with any entry, e.g. 10S or 10SFH
	MGRSTiles    []string
	MGRSSkipList []string
	UTMZones     []int
	WRS2Tiles    []string

	MGRSProperty string
	UTMProperty  string
	WRS2Property string
	CellSize     float64

	Logger logger.Logger
}

func (o Options) withDefaults() Options {
	if o.MGRSProperty == "" {
		o.MGRSProperty = "mgrs"
	}
	if o.UTMProperty == "" {
		o.UTMProperty = "utm"
	}
	if o.WRS2Property == "" {
		o.WRS2Property = "wrs2"
	}
	if o.CellSize == 0 {
		o.CellSize = 30
	}
	o.Logger = logger.OrNop(o.Logger)
	return o
}

// Tile describes one export tile grid
type Tile struct {
	CRS       string     `json:"crs"`
	Extent    [4]int     `json:"extent"`
	Geo       [6]float64 `json:"geo"`
	Index     string     `json:"index"`
	MaxPixels int64      `json:"maxpixels"`
	Shape     [2]int     `json:"shape"`
	UTM       int        `json:"utm"`
	WRS2Tiles []string   `json:"wrs2_tiles"`
}

// studyAreaNames expands CONUS and returns the sorted distinct names
func studyAreaNames(property string, names []string) []string {
	if property == "STUSPS" {
		for _, n := range names {
			if strings.EqualFold(n, "CONUS") {
				names = conusStates
				break
			}
		}
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// MGRSExportTiles returns the MGRS tiles intersecting the selected study
// areas, sorted by index. Tiles left without WRS2 tiles are dropped.
func MGRSExportTiles(studyAreas, mgrsTiles []Feature, opts Options) ([]Tile, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	names := studyAreaNames(opts.StudyAreaProperty, opts.StudyAreaFeatures)
	areas := studyAreas
	if opts.StudyAreaProperty != "" && len(names) > 0 {
		log.Debug("Filtering study areas",
			logger.WithField("property", opts.StudyAreaProperty),
			logger.WithField("features", strings.Join(names, ",")))
		keep := make(map[string]bool, len(names))
		for _, n := range names {
			keep[n] = true
		}
		areas = nil
		for _, f := range studyAreas {
			if v, ok := f.String(opts.StudyAreaProperty); ok && keep[v] {
				areas = append(areas, f)
			}
		}
	}

	utmKeep := make(map[int]bool, len(opts.UTMZones))
	for _, z := range opts.UTMZones {
		utmKeep[z] = true
	}
	skip := make(map[string]bool, len(opts.MGRSSkipList))
	for _, s := range opts.MGRSSkipList {
		skip[s] = true
	}

	var tiles []Tile
	for _, f := range mgrsTiles {
		if !intersectsAny(f, areas) {
			continue
		}
		mgrs, ok := f.String(opts.MGRSProperty)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTileProperty, opts.MGRSProperty)
		}
		if len(utmKeep) > 0 {
			zone, ok := f.Number(opts.UTMProperty)
			if !ok || !utmKeep[int(zone)] {
				continue
			}
		}
		if skip[mgrs] {
			continue
		}
		if len(opts.MGRSTiles) > 0 && !hasPrefix(mgrs, opts.MGRSTiles) {
			continue
		}

		tile, err := newTile(f, mgrs, opts)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", mgrs, err)
		}
		tiles = append(tiles, tile)
	}

	if len(opts.WRS2Tiles) > 0 {
		log.Debug("Filtering WRS2 tiles", logger.WithField("wrs2_tiles", strings.Join(opts.WRS2Tiles, ",")))
		allowed := make(map[string]bool, len(opts.WRS2Tiles))
		for _, w := range opts.WRS2Tiles {
			allowed[w] = true
		}
		for i := range tiles {
			var kept []string
			for _, w := range tiles[i].WRS2Tiles {
				if allowed[w] {
					kept = append(kept, w)
				}
			}
			tiles[i].WRS2Tiles = kept
		}
	}

	sort.SliceStable(tiles, func(i, j int) bool { return tiles[i].Index < tiles[j].Index })
	out := tiles[:0]
	for _, t := range tiles {
		if len(t.WRS2Tiles) > 0 {
			out = append(out, t)
		}
	}
	log.Debug("Export tiles selected", logger.WithField("count", len(out)))
	return out, nil
}

func intersectsAny(f Feature, areas []Feature) bool {
	for _, a := range areas {
		if f.Intersects(a) {
			return true
		}
	}
	return false
}

func hasPrefix(mgrs string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(mgrs, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

func newTile(f Feature, mgrs string, opts Options) (Tile, error) {
	var ext [4]int
	for i, key := range []string{"xmin", "ymin", "xmax", "ymax"} {
		v, ok := f.Number(key)
		if !ok {
			return Tile{}, fmt.Errorf("%w: %s", ErrMissingTileProperty, key)
		}
		ext[i] = int(v)
	}
	epsg, ok := f.Number("epsg")
	if !ok {
		return Tile{}, fmt.Errorf("%w: epsg", ErrMissingTileProperty)
	}
	wrs2Str, _ := f.String(opts.WRS2Property)
	wrs2, err := utils.WRS2StrToSet(wrs2Str)
	if err != nil {
		return Tile{}, err
	}

	index := strings.ToUpper(mgrs)
	if len(index) < 2 {
		return Tile{}, fmt.Errorf("%w: mgrs %q", ErrMissingTileProperty, mgrs)
	}
	utm, err := strconv.Atoi(index[:2])
	if err != nil {
		return Tile{}, fmt.Errorf("utm zone from %q: %w", index, err)
	}

	cs := opts.CellSize
	shape := [2]int{
		int(float64(ext[2]-ext[0]) / cs),
		int(float64(ext[3]-ext[1]) / cs),
	}
	return Tile{
		CRS:       fmt.Sprintf("EPSG:%d", int(epsg)),
		Extent:    ext,
		Geo:       [6]float64{cs, 0, float64(ext[0]), 0, -cs, float64(ext[3])},
		Index:     index,
		MaxPixels: int64(shape[0])*int64(shape[1]) + 1,
		Shape:     shape,
		UTM:       utm,
		WRS2Tiles: utils.SortedKeys(wrs2),
	}, nil
}
