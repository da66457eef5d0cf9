// Package phone finds North American phone numbers in free text and renders
// them in a canonical display form used as the session dedup key.
package phone

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/contact-harvester/internal/extract"
)

var (
	candidatePattern = regexp.MustCompile(`(?:\+?1[\s\-.]?)?\(?\d{3}\)?[\s\-.]?\d{3}[\s\-.]?\d{4}(?:\s*x\d{1,5})?`)
	extensionPattern = regexp.MustCompile(`(?i)\s*x\d{1,5}\s*$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// ExtractCandidates scans text and returns the canonical form of every valid
// phone number, deduplicated in first-seen order. It never fails; text without
// numbers yields an empty slice.
func ExtractCandidates(text string) []string {
	out := []string{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	seen := make(map[string]struct{})
	for _, match := range candidatePattern.FindAllString(text, -1) {
		canonical, ok := Canonicalize(StripExtension(match))
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// Canonicalize strips every non-digit from raw and formats the remainder.
// Ten digits render as "(NNN) NNN-NNNN"; eleven digits with a leading 1 render
// as "+1 (NNN) NNN-NNNN". Anything else is rejected.
func Canonicalize(raw string) (string, bool) {
	digits := Digits(raw)
	switch {
	case len(digits) == 10:
		return format(digits), true
	case len(digits) == 11 && digits[0] == '1':
		return "+1 " + format(digits[1:]), true
	default:
		return "", false
	}
}

// Normalize canonicalizes a collector's phone field. The field may carry an
// extension or surrounding text; the first number found in it wins.
func Normalize(raw string) (string, bool) {
	if canonical, ok := Canonicalize(StripExtension(raw)); ok {
		return canonical, true
	}
	if candidates := ExtractCandidates(raw); len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}

// StripExtension removes a trailing "x1234" style extension.
func StripExtension(raw string) string {
	return extensionPattern.ReplaceAllString(raw, "")
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizeText collapses internal whitespace and trims s. Empty input maps to
// extract.NotAvailable.
func NormalizeText(s string) string {
	cleaned := strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if cleaned == "" {
		return extract.NotAvailable
	}
	return cleaned
}

func format(ten string) string {
	return "(" + ten[0:3] + ") " + ten[3:6] + "-" + ten[6:10]
}
