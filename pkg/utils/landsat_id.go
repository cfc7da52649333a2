package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LandsatID is the parsed form of a short Landsat scene ID (e.g. LC08_030036_20210725)
type LandsatID struct {
	Sensor string
	Path   int
	Row    int
	Year   int
	Month  int
	Day    int
}

var landsatIDPattern = regexp.MustCompile(`^(L[CEMOT]0\d)_(\d{3})(\d{3})_(\d{4})(\d{2})(\d{2})`)

// ParseLandsatID extracts sensor, WRS2 path/row and acquisition date from a
// system index. Any prefix before the sensor (e.g. "1_2_") is ignored.
func ParseLandsatID(id string) (LandsatID, error) {
	if i := strings.Index(id, "L"); i > 0 {
		id = id[i:]
	}
	m := landsatIDPattern.FindStringSubmatch(id)
	if m == nil {
		return LandsatID{}, fmt.Errorf("%w: %q", ErrInvalidLandsatID, id)
	}
	nums := make([]int, 5)
	for i := range nums {
		nums[i], _ = strconv.Atoi(m[i+2])
	}
	return LandsatID{
		Sensor: m[1],
		Path:   nums[0],
		Row:    nums[1],
		Year:   nums[2],
		Month:  nums[3],
		Day:    nums[4],
	}, nil
}

// WRS2 returns the tile name for the scene
func (id LandsatID) WRS2() string {
	return fmt.Sprintf(WRS2Format, id.Path, id.Row)
}

// VersionNumbers converts "0.20.6" into [0 20 6]. Non numeric parts are dropped.
func VersionNumbers(version string) []int {
	var out []int
	for _, part := range strings.Split(version, ".") {
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		}
	}
	return out
}
