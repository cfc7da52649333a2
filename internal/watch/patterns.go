package watch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultPatterns selects scene collection drops
var DefaultPatterns = []string{"*.parquet"}

// DefaultExclusions skips editor droppings, partial writes and the state directory
var DefaultExclusions = []string{
	".git",
	".openet",
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
}

// Matcher tests slash separated relative paths against glob patterns.
// "**" crosses directories while "*" and "?" stay within one segment.
type Matcher struct {
	globs []string
	res   []*regexp.Regexp
}

// NewMatcher compiles globs. A glob without a slash matches at any depth.
func NewMatcher(globs []string) (*Matcher, error) {
	m := &Matcher{}
	for _, g := range globs {
		g = normalizeGlob(g)
		if g == "" {
			continue
		}
		if !strings.Contains(g, "/") && !strings.HasPrefix(g, "**") {
			g = "**/" + g
		}
		re, err := globRegexp(g)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", g, err)
		}
		m.globs = append(m.globs, g)
		m.res = append(m.res, re)
	}
	return m, nil
}

// NewExclusionMatcher treats bare names as directories or files to skip
// anywhere in the tree, along with everything below them
func NewExclusionMatcher(names []string) (*Matcher, error) {
	var globs []string
	for _, n := range names {
		n = normalizeGlob(n)
		if n != "" && !strings.ContainsAny(n, "*?[/") {
			globs = append(globs, "**/"+n, "**/"+n+"/**")
			continue
		}
		globs = append(globs, n)
	}
	return NewMatcher(globs)
}

// Match reports whether path matches any pattern
func (m *Matcher) Match(path string) bool {
	path = filepath.ToSlash(path)
	for _, re := range m.res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no patterns
func (m *Matcher) Empty() bool {
	return len(m.res) == 0
}

func normalizeGlob(g string) string {
	g = strings.ReplaceAll(g, `\`, "/")
	g = strings.TrimPrefix(g, "./")
	return strings.TrimSuffix(g, "/")
}

func globRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated character class", filepath.ErrBadPattern)
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
