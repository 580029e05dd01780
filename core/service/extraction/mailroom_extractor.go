package extraction

import (
	"context"
	"regexp"
	"time"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/logger"
)

const (
	extractionTimeout  = 30 * time.Second
	fallbackConfidence = 30
)

// moneyHintRe finds monetary values for the permissive fallback:
// currency-symbol amounts or decimal amounts in either locale.
var moneyHintRe = regexp.MustCompile(`(?i)(?:R\$|US\$|\$|BRL|USD)\s*([\d.,]+\d)|(\d+[.,]\d{2})\b`)

// Extractor wraps the semantic-extraction capability with evidence
// assembly and a permissive regex fallback. False positives are
// preferred over false negatives: low-confidence results land in the
// manual-review queue instead of being dropped.
type Extractor struct {
	semantic out.SemanticExtractor
	log      *logger.Logger
}

func NewExtractor(semantic out.SemanticExtractor, log *logger.Logger) *Extractor {
	return &Extractor{semantic: semantic, log: log}
}

// Extract produces the commercial payload for one message. It never
// returns a nil payload: when the capability is unconfigured the
// payload is empty with confidence 0, and a semantic failure degrades
// to the regex fallback rather than erroring the message.
func (e *Extractor) Extract(ctx context.Context, body, attachmentText string) (*domain.CommercialPayload, error) {
	if e.semantic == nil || !e.semantic.Available() {
		return &domain.CommercialPayload{Confidence: 0}, nil
	}

	evidence := BuildEvidence(body, attachmentText)

	sctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	payload, err := e.semantic.Extract(sctx, evidence)
	if err != nil {
		e.log.WithError(err).Warn("semantic extraction failed, using regex fallback")
		if fb := e.fallback(evidence); fb != nil {
			return fb, nil
		}
		return nil, apperr.CapabilityError("semantic_extraction", err)
	}
	if payload == nil {
		payload = &domain.CommercialPayload{Confidence: 0}
	}

	// permissive floor: surface at least one item when money is visible
	if len(payload.Items) == 0 && payload.TotalValue == nil {
		if fb := e.fallback(evidence); fb != nil {
			payload.Items = fb.Items
			if payload.Confidence > fallbackConfidence {
				payload.Confidence = fallbackConfidence
			}
		}
	}

	return payload, nil
}

// fallback scrapes the first monetary value out of the evidence and
// surfaces it as a single low-confidence item entry.
func (e *Extractor) fallback(evidence string) *domain.CommercialPayload {
	m := moneyHintRe.FindStringSubmatch(evidence)
	if m == nil {
		return nil
	}

	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	v, ok := domain.ParseMoney(raw)
	if !ok || v == 0 {
		return nil
	}

	return &domain.CommercialPayload{
		Items:      []domain.ExtractedItem{{Index: 0, UnitPrice: &v}},
		Confidence: fallbackConfidence,
	}
}
