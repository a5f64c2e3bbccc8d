// Package panelid converts human-entered panel and roll labels into a single
// canonical identifier so that labels can be compared with plain equality.
package panelid

import (
	"regexp"
	"strings"
)

// Prefix is the leading letter of every canonical identifier.
const Prefix = "P"

var (
	rollPattern      = regexp.MustCompile(`^R(\d+)([A-Z]{0,3})$`)
	canonicalPattern = regexp.MustCompile(`^P(\d+)([A-Z]{0,3})$`)
	barePattern      = regexp.MustCompile(`^(\d+)([A-Z]{0,3})$`)
	runPattern       = regexp.MustCompile(`(\d+)([A-Z]{0,3})`)
	nonAlnumPattern  = regexp.MustCompile(`[^A-Z0-9]+`)
)

// knownPrefixes is ordered longest first so PANEL wins over PN and P#.
var knownPrefixes = []string{"PANEL", "PNL", "PN", "P#", "R", "#"}

// Normalize returns the canonical form P<3+ digits><optional A-Z suffix> of a
// free-text panel or roll label. The second return value is false when no
// digit run can be extracted.
//
// Roll labels (R21) are folded into the panel numbering space.
func Normalize(raw string) (string, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return "", false
	}

	if m := rollPattern.FindStringSubmatch(value); m != nil {
		return format(m[1], m[2]), true
	}

	stripped := stripPrefix(value)
	stripped = nonAlnumPattern.ReplaceAllString(stripped, "")
	if m := canonicalPattern.FindStringSubmatch(stripped); m != nil {
		return format(m[1], m[2]), true
	}
	if m := barePattern.FindStringSubmatch(stripped); m != nil {
		return format(m[1], m[2]), true
	}

	runs := runPattern.FindAllStringSubmatch(value, -1)
	if len(runs) == 0 {
		return "", false
	}
	last := runs[len(runs)-1]
	return format(last[1], last[2]), true
}

// Canonical normalizes an optional label. Nil and blank labels are absent.
func Canonical(label *string) (string, bool) {
	if label == nil {
		return "", false
	}
	return Normalize(*label)
}

// Equal reports whether two labels normalize to the same canonical identifier.
// Labels that cannot be normalized are never equal to anything.
func Equal(a, b string) bool {
	ca, ok := Normalize(a)
	if !ok {
		return false
	}
	cb, ok := Normalize(b)
	return ok && ca == cb
}

func stripPrefix(value string) string {
	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(value, prefix) {
			return strings.TrimPrefix(value, prefix)
		}
	}
	return value
}

func format(digits, suffix string) string {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	if len(trimmed) < 3 {
		trimmed = strings.Repeat("0", 3-len(trimmed)) + trimmed
	}
	return Prefix + trimmed + suffix
}
