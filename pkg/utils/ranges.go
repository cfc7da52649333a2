package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseIntSet parses a list such as "1-3,5" into a set. Invalid tokens are ignored.
func ParseIntSet(s string) map[int]bool {
	selection := make(map[int]bool)
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if v, err := strconv.Atoi(token); err == nil {
			selection[v] = true
			continue
		}

		parts := strings.Split(token, "-")
		if len(parts) < 2 {
			continue
		}
		bounds := make([]int, 0, len(parts))
		valid := true
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				valid = false
				break
			}
			bounds = append(bounds, v)
		}
		if !valid {
			continue
		}
		sort.Ints(bounds)
		for v := bounds[0]; v <= bounds[len(bounds)-1]; v++ {
			selection[v] = true
		}
	}
	return selection
}

// StrRanges2List parses a range string into a sorted list
func StrRanges2List(s string) []int {
	set := ParseIntSet(s)
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// List2StrRanges collapses numbers into a compact range string.
// Runs of three or more become "a-b", runs of two stay "a,b".
func List2StrRanges(values []int) string {
	uniq := make(map[int]bool, len(values))
	for _, v := range values {
		uniq[v] = true
	}
	sorted := make([]int, 0, len(uniq))
	for v := range uniq {
		sorted = append(sorted, v)
	}
	sort.Ints(sorted)

	var out []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		switch {
		case j-i >= 2:
			out = append(out, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		case j-i == 1:
			out = append(out, fmt.Sprintf("%d,%d", sorted[i], sorted[j]))
		default:
			out = append(out, strconv.Itoa(sorted[i]))
		}
		i = j + 1
	}
	return strings.Join(out, ",")
}

// WRS2Format is the path/row tile naming used throughout the export tools
const WRS2Format = "p%03dr%03d"

// WRS2SetToStr writes WRS2 tiles as "path:[rows],path:[rows]" with rows collapsed to ranges
func WRS2SetToStr(tiles []string) (string, error) {
	byPath := make(map[int][]int)
	for _, tile := range tiles {
		var path, row int
		if _, err := fmt.Sscanf(tile, WRS2Format, &path, &row); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidWRS2, tile)
		}
		byPath[path] = append(byPath[path], row)
	}

	paths := make([]int, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Ints(paths)

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%d:[%s]", p, List2StrRanges(byPath[p])))
	}
	return strings.Join(parts, ","), nil
}

// WRS2StrToSet parses the compact WRS2 string back into tile names
func WRS2StrToSet(s string) (map[string]bool, error) {
	tiles := make(map[string]bool)
	if strings.TrimSpace(s) == "" {
		return tiles, nil
	}
	for _, entry := range strings.Split(strings.ReplaceAll(s, "[", ""), "],") {
		pathStr, rowStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWRS2, entry)
		}
		path, err := strconv.Atoi(strings.TrimSpace(pathStr))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWRS2, entry)
		}
		for _, row := range StrRanges2List(strings.ReplaceAll(rowStr, "]", "")) {
			tiles[fmt.Sprintf(WRS2Format, path, row)] = true
		}
	}
	return tiles, nil
}

// SortedKeys returns the keys of a string set in order
func SortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
