package mailbox

import (
	"regexp"
	"strings"
)

var (
	htmlDropRe  = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	htmlBreakRe = regexp.MustCompile(`(?i)<(br\s*/?|/p|/div|/tr|/li|/h[1-6])>`)
	htmlTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	spaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&aacute;", "á",
	"&atilde;", "ã",
	"&ccedil;", "ç",
	"&eacute;", "é",
	"&oacute;", "ó",
)

// StripHTML reduces an HTML body to plain text. Block-level closings
// become newlines so line-oriented heuristics downstream keep working.
func StripHTML(html string) string {
	text := htmlDropRe.ReplaceAllString(html, "")
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = htmlEntities.Replace(text)
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
