// Package extraction turns message evidence into a structured
// commercial payload.
package extraction

import (
	"strings"
)

const (
	attachmentHeader = "=== ATTACHMENT (structured form, primary evidence) ==="
	bodyHeader       = "=== EMAIL BODY ==="
	quotedNote       = "[quoted context, low value]"

	maxEvidenceRunes = 12000
)

// BuildEvidence assembles the text blob handed to the semantic
// extractor. Attachment text goes first and is labeled as primary:
// suppliers fill in the structured form embedded in the request PDF,
// so the attachment usually carries the answer. Quoted body lines are
// kept for context but tagged so the model does not treat forwarded
// boilerplate as the reply.
func BuildEvidence(body, attachmentText string) string {
	var b strings.Builder

	if at := strings.TrimSpace(attachmentText); at != "" {
		b.WriteString(attachmentHeader)
		b.WriteString("\n")
		b.WriteString(at)
		b.WriteString("\n\n")
	}

	b.WriteString(bodyHeader)
	b.WriteString("\n")
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			b.WriteString(quotedNote)
			b.WriteString(" ")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return truncateRunes(b.String(), maxEvidenceRunes)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
