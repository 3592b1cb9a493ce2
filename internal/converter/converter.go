// Package converter handles the conversion of v2fly domain list format to Clash rule-provider formats.
package converter

import (
	"fmt"
	"io/fs"
	"log"

	"github.com/xxxbrian/clash-geosite/internal/metrics"
)

// Options controls the classical encoding.
type Options struct {
	WithPolicy bool
	Policy     string
}

// Result holds both encodings of one root file.
type Result struct {
	Name      string
	Rules     RuleSet
	Classical []string
	Domain    []string
}

// Converter handles rule conversion
type Converter struct {
	loader *Loader
	opts   Options
}

// NewConverter creates a new Converter reading data files from fsys.
func NewConverter(fsys fs.FS, logger *log.Logger, opts Options) *Converter {
	return &Converter{
		loader: NewLoader(fsys, logger),
		opts:   opts,
	}
}

// Convert loads name and produces both encodings.
// It returns ErrEmptyRuleSet when the file expands to no rules.
func (c *Converter) Convert(name string) (*Result, error) {
	rules, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyRuleSet)
	}
	return c.Encode(name, rules), nil
}

// Encode produces both encodings of an already loaded rule set.
func (c *Converter) Encode(name string, rules RuleSet) *Result {
	res := &Result{
		Name:      name,
		Rules:     rules,
		Classical: ToClassical(rules, c.opts.WithPolicy, c.opts.Policy),
		Domain:    ToDomainOnly(rules),
	}

	classical := ClassicalFormat(false, "")
	var classicalDropped, domainDropped int
	for _, rule := range rules {
		if _, ok := classical(rule); !ok {
			classicalDropped++
		}
		if _, ok := DomainFormat(rule); !ok {
			domainDropped++
		}
	}
	metrics.RulesDropped.WithLabelValues("classical").Add(float64(classicalDropped))
	metrics.RulesDropped.WithLabelValues("domain").Add(float64(domainDropped))

	return res
}
