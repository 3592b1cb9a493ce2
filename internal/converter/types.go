// Package converter handles the conversion of v2fly domain list format to Clash rule-provider formats.
package converter

// Kind represents the type of a rule.
type Kind int

const (
	KindDomain Kind = iota
	KindFull
	KindKeyword
	KindRegexp
)

// String returns the source-format prefix of the kind, without the colon.
func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindFull:
		return "full"
	case KindKeyword:
		return "keyword"
	case KindRegexp:
		return "regexp"
	default:
		return "unknown"
	}
}

// Rule represents a parsed rule line.
// Attributes are the @-tags found on the line, in order; nothing consults them yet.
type Rule struct {
	Kind       Kind
	Value      string
	Attributes []string
}

// RuleSet is the flat, ordered result of loading a root file and its includes.
type RuleSet []Rule

// Line is a parsed unit of source text: either a rule or an include reference.
type Line struct {
	Rule    Rule
	Include string
}

// IsInclude reports whether the line is an include directive.
func (l Line) IsInclude() bool {
	return l.Include != ""
}
