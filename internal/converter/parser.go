// Package converter handles the conversion of v2fly domain list format to Clash rule-provider formats.
package converter

import (
	"regexp"
	"strings"
)

var (
	attributePattern = regexp.MustCompile(`@(\S+)`)
	attributeStrip   = regexp.MustCompile(`\s*@\S+`)
)

const includePrefix = "include:"

// prefixes are checked in this order; they are mutually exclusive.
var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{"full:", KindFull},
	{"keyword:", KindKeyword},
	{"regexp:", KindRegexp},
	{"domain:", KindDomain},
}

// ParseLine parses a single line of a data file.
// It returns false for blank lines, comment-only lines and lines whose value is empty.
// A '#' anywhere starts a comment; there is no escape for it.
func ParseLine(raw string) (Line, bool) {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	line := strings.TrimSpace(raw)
	if line == "" {
		return Line{}, false
	}

	var attrs []string
	if matches := attributePattern.FindAllStringSubmatch(line, -1); len(matches) > 0 {
		attrs = make([]string, 0, len(matches))
		for _, m := range matches {
			attrs = append(attrs, m[1])
		}
		line = strings.TrimSpace(attributeStrip.ReplaceAllString(line, ""))
	}

	if strings.HasPrefix(line, includePrefix) {
		target := strings.TrimSpace(line[len(includePrefix):])
		if target == "" {
			return Line{}, false
		}
		return Line{Include: target}, true
	}

	kind, value := KindDomain, line
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			kind = p.kind
			value = strings.TrimSpace(line[len(p.prefix):])
			break
		}
	}

	if value == "" {
		return Line{}, false
	}

	return Line{Rule: Rule{Kind: kind, Value: value, Attributes: attrs}}, true
}
