// Package artifact packages encoded rules into rule-provider files.
package artifact

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Behavior is the rule-provider behavior an envelope is meant for.
type Behavior string

const (
	BehaviorClassical Behavior = "classical"
	BehaviorDomain    Behavior = "domain"
)

const (
	generatedFrom   = "v2fly/domain-list-community"
	timestampLayout = "2006-01-02 15:04:05 UTC"
)

// Envelope wraps an encoded payload with descriptive metadata.
type Envelope struct {
	Name     string
	Behavior Behavior
	Source   string
	Updated  time.Time
	Payload  []string
}

// NewEnvelope creates an envelope for payload generated at updated.
func NewEnvelope(name string, behavior Behavior, payload []string, updated time.Time) *Envelope {
	return &Envelope{
		Name:     name,
		Behavior: behavior,
		Source:   generatedFrom,
		Updated:  updated.UTC(),
		Payload:  payload,
	}
}

type document struct {
	Payload []string `yaml:"payload"`
}

func (e *Envelope) header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Generated from %s\n", e.Source)
	fmt.Fprintf(&b, "# Source: %s\n", e.Name)
	fmt.Fprintf(&b, "# Updated: %s\n", e.Updated.Format(timestampLayout))
	if e.Behavior == BehaviorDomain {
		fmt.Fprintf(&b, "# Total domains: %d\n", len(e.Payload))
		b.WriteString("# Format: domain behavior (use with behavior: domain)\n")
	} else {
		fmt.Fprintf(&b, "# Total rules: %d\n", len(e.Payload))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderYAML renders the envelope as a commented rule-provider YAML document
// with a single "payload" key.
func (e *Envelope) RenderYAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(e.header())

	payload := e.Payload
	if payload == nil {
		payload = []string{}
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Payload: payload}); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderText renders the payload one rule per line under the same header.
func (e *Envelope) RenderText() []byte {
	var buf bytes.Buffer
	buf.WriteString(e.header())
	for _, rule := range e.Payload {
		buf.WriteString(rule)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParsePayload reads the payload list back from a rendered YAML document.
func ParsePayload(data []byte) ([]string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return doc.Payload, nil
}

// ParseText reads rule lines back from a rendered text document.
func ParseText(data []byte) []string {
	var rules []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return rules
}
