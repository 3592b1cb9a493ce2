// Package lint reports suspicious values in a loaded rule set. It never
// changes what the converter emits.
package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/miekg/dns"

	"github.com/xxxbrian/clash-geosite/internal/converter"
)

// Finding is a single problem found in a rule.
type Finding struct {
	Rule    converter.Rule
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%s: %s", f.Rule.Kind, f.Rule.Value, f.Message)
}

// Report summarizes a rule set.
type Report struct {
	Name             string
	Rules            int
	ByKind           map[converter.Kind]int
	ClassicalDropped int
	DomainDropped    int
	Findings         []Finding
}

// Check inspects rules. Domain and full values must be valid domain names,
// regexp values must compile.
func Check(name string, rules converter.RuleSet) *Report {
	r := &Report{
		Name:   name,
		Rules:  len(rules),
		ByKind: make(map[converter.Kind]int),
	}

	for _, rule := range rules {
		r.ByKind[rule.Kind]++

		switch rule.Kind {
		case converter.KindDomain, converter.KindFull:
			if msg := checkDomain(rule.Value); msg != "" {
				r.Findings = append(r.Findings, Finding{Rule: rule, Message: msg})
			}
		case converter.KindKeyword:
			r.DomainDropped++
			if strings.ContainsAny(rule.Value, " \t,") {
				r.Findings = append(r.Findings, Finding{Rule: rule, Message: "keyword contains a separator"})
			}
		case converter.KindRegexp:
			r.ClassicalDropped++
			r.DomainDropped++
			if _, err := regexp.Compile(rule.Value); err != nil {
				r.Findings = append(r.Findings, Finding{Rule: rule, Message: "invalid regexp: " + err.Error()})
			}
		}
	}

	return r
}

func checkDomain(value string) string {
	if strings.Contains(value, ",") {
		return "value contains a comma"
	}
	if strings.ContainsAny(value, " \t") {
		return "value contains whitespace"
	}
	if strings.HasSuffix(value, ".") {
		return "value has a trailing dot"
	}
	if _, ok := dns.IsDomainName(value); !ok {
		return "not a valid domain name"
	}
	return ""
}
