// Package converter handles the conversion of v2fly domain list format to Clash rule-provider formats.
package converter

// FormatFunc renders a rule for one encoding. It returns false for rules the
// encoding has no representation for.
type FormatFunc func(rule Rule) (string, bool)

// Encode formats items with format and keeps the first occurrence of every
// resulting line, preserving order.
func Encode[T any](items []T, format func(T) (string, bool)) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		line, ok := format(item)
		if !ok {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}

	return out
}

// ClassicalFormat returns the formatter for classical behavior.
// Regexp rules have no classical equivalent and are dropped.
func ClassicalFormat(withPolicy bool, policy string) FormatFunc {
	return func(rule Rule) (string, bool) {
		var line string
		switch rule.Kind {
		case KindDomain:
			line = "DOMAIN-SUFFIX," + rule.Value
		case KindFull:
			line = "DOMAIN," + rule.Value
		case KindKeyword:
			line = "DOMAIN-KEYWORD," + rule.Value
		default:
			return "", false
		}
		if withPolicy {
			line += "," + policy
		}
		return line, true
	}
}

// DomainFormat renders rules for domain behavior: "+." marks a suffix match,
// a bare value an exact match. Keyword and regexp rules are dropped.
func DomainFormat(rule Rule) (string, bool) {
	switch rule.Kind {
	case KindDomain:
		return "+." + rule.Value, true
	case KindFull:
		return rule.Value, true
	default:
		return "", false
	}
}

// ToClassical converts rules into deduplicated classical rule lines.
func ToClassical(rules []Rule, withPolicy bool, policy string) []string {
	return Encode(rules, ClassicalFormat(withPolicy, policy))
}

// ToDomainOnly converts rules into deduplicated domain-behavior entries.
func ToDomainOnly(rules []Rule) []string {
	return Encode(rules, DomainFormat)
}
