// Package validation collects field violations for request payloads.
package validation

import (
	"strings"
	"unicode/utf8"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// Length checks the trimmed rune count. Required takes precedence for empty values.
func Length(field, value string, minLen, maxLen int, v Violations) {
	if _, set := v[field]; set {
		return
	}
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < minLen || n > maxLen {
		v[field] = "invalid_length"
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}

func MinInt(field string, val, minVal int, v Violations) {
	if val < minVal {
		v[field] = "too_small"
	}
}
