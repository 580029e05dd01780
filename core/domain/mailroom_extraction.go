package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// CommercialPayload is the structured result of semantic extraction
// over one message's evidence (body + attachment text).
type CommercialPayload struct {
	Items        []ExtractedItem `json:"items"`
	TotalValue   *float64        `json:"total_value"`
	LeadTimeDays *int            `json:"lead_time_days"`
	PaymentTerms *string         `json:"payment_terms"`
	FreightIncl  *bool           `json:"freight_included"`
	FreightValue *float64        `json:"freight_value"`
	ValidUntil   *string         `json:"valid_until"`
	Remarks      *string         `json:"remarks"`
	Confidence   int             `json:"confidence"`
}

// ExtractedItem is one priced line entry, matched to requested items by
// position (with name similarity as a hint, see reconcile).
type ExtractedItem struct {
	Index        int      `json:"index"`
	Name         *string  `json:"name"`
	UnitPrice    *float64 `json:"unit_price"`
	LineTotal    *float64 `json:"line_total"`
	Brand        *string  `json:"brand"`
	LeadTimeDays *int     `json:"lead_time_days"`
}

// Empty reports whether the payload carries nothing worth reconciling.
func (p *CommercialPayload) Empty() bool {
	return len(p.Items) == 0 &&
		p.TotalValue == nil &&
		p.LeadTimeDays == nil &&
		p.PaymentTerms == nil &&
		p.FreightIncl == nil &&
		p.FreightValue == nil
}

var (
	moneyCleanRe = regexp.MustCompile(`[^\d,.\-]`)
	leadDigitsRe = regexp.MustCompile(`\d+`)
)

// ParseMoney parses a monetary string tolerating currency symbols and
// both decimal-comma and decimal-point locales. "R$ 1.234,56" and
// "1,234.56" both yield 1234.56.
func ParseMoney(raw string) (float64, bool) {
	s := moneyCleanRe.ReplaceAllString(raw, "")
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma > lastDot:
		// the last comma is the decimal separator; dots and any
		// earlier commas are grouping
		s = strings.ReplaceAll(s, ".", "")
		if i := strings.LastIndex(s, ","); i >= 0 {
			s = s[:i] + "." + s[i+1:]
		}
		s = strings.ReplaceAll(s, ",", "")
	case lastDot > lastComma:
		// dot is the decimal separator, commas are grouping
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLeadTime maps textual lead-time hints to days. Immediate
// delivery wording maps to 0; otherwise the first number wins.
func ParseLeadTime(raw string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}

	for _, hint := range []string{"imediat", "immediate", "pronta entrega", "in stock", "a pronta"} {
		if strings.Contains(s, hint) {
			return 0, true
		}
	}

	m := leadDigitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	if strings.Contains(s, "semana") || strings.Contains(s, "week") {
		n *= 7
	}
	return n, true
}
