package semantic

import (
	"context"

	"github.com/goccy/go-json"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

const (
	extractorSystemPrompt = `You extract commercial terms from supplier emails
for a procurement system. The input may contain an ATTACHMENT section:
it is the supplier's filled-in quotation form and is the primary
evidence. Lines tagged [quoted context, low value] are forwarded
boilerplate, never the answer.
Respond with JSON only:
{"items": [{"index": int, "name": string or null, "unit_price": number or null,
"line_total": number or null, "brand": string or null, "lead_time_days": int or null}],
"total_value": number or null, "lead_time_days": int or null,
"payment_terms": string or null, "freight_included": bool or null,
"freight_value": number or null, "valid_until": "YYYY-MM-DD" or null,
"remarks": string or null, "confidence": 0-100}.
Numbers use decimal points. "immediate delivery" or "pronta entrega"
means lead_time_days 0. Prefer surfacing any monetary value found over
returning an empty item list.`

	maxExtractorEvidenceRunes = 10000
)

// ExtractorAdapter implements out.SemanticExtractor.
type ExtractorAdapter struct {
	client *Client
}

var _ out.SemanticExtractor = (*ExtractorAdapter)(nil)

func NewExtractorAdapter(client *Client) *ExtractorAdapter {
	return &ExtractorAdapter{client: client}
}

func (a *ExtractorAdapter) Available() bool {
	return a != nil && a.client != nil
}

func (a *ExtractorAdapter) Extract(ctx context.Context, evidence string) (*domain.CommercialPayload, error) {
	if !a.Available() {
		return nil, apperr.CapabilityUnavailable("semantic_extraction")
	}

	raw, err := a.client.CompleteJSON(ctx, extractorSystemPrompt, truncateRunes(evidence, maxExtractorEvidenceRunes))
	if err != nil {
		return nil, err
	}

	var payload domain.CommercialPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperr.Parse("semantic extraction response", err)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 100 {
		payload.Confidence = 100
	}
	return &payload, nil
}
