// Package classification implements the staged cascade that links an
// inbound message to an open quotation request and a supplier.
package classification

import (
	"regexp"
	"strings"
)

// Subject tag patterns, tried in order. Reply prefixes (Re:, Fwd:,
// Enc:, Res:) ahead of the tag are tolerated because the pattern is
// searched, not anchored.
var subjectTagPatterns = []*regexp.Regexp{
	// canonical quotation number, e.g. SC-2025-00010
	regexp.MustCompile(`(?i)\b(SC-\d{4}-\d{3,6})\b`),
	// bracketed tag, e.g. [SC-2025-00010]
	regexp.MustCompile(`(?i)\[(SC-\d{4}-\d{3,6})\]`),
	// legacy hash form, e.g. Cotação #123
	regexp.MustCompile(`(?i)cota[cç][aã]o\s*#(\d+)`),
}

// ExtractSubjectTag pulls the first embedded quotation reference out of
// a subject line. The second return distinguishes a quotation number
// (matched by string) from a bare numeric id (legacy hash form).
func ExtractSubjectTag(subject string) (tag string, numeric bool, ok bool) {
	s := strings.TrimSpace(subject)
	if s == "" {
		return "", false, false
	}

	for i, re := range subjectTagPatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if i == 2 {
			return m[1], true, true
		}
		return strings.ToUpper(m[1]), false, true
	}
	return "", false, false
}
