package out

import (
	"context"

	"mailroom_server/core/domain"
)

// QuotationContext is the compact per-quotation summary offered to the
// semantic classifier. Kept small to bound the token budget.
type QuotationContext struct {
	ID        int64    `json:"id"`
	Number    string   `json:"number"`
	Title     string   `json:"title"`
	ItemNames []string `json:"item_names"`
}

// SemanticMatch is the classifier's verdict over one message.
type SemanticMatch struct {
	IsMatch     bool   `json:"is_match"`
	QuotationID *int64 `json:"quotation_id"`
	Confidence  int    `json:"confidence"`
}

// SemanticClassifier decides whether a message answers one of the open
// quotations. Available reports whether credentials are configured;
// when false the cascade runs in reduced-capability mode.
type SemanticClassifier interface {
	Available() bool
	Classify(ctx context.Context, subject, bodyExcerpt string, open []QuotationContext) (*SemanticMatch, error)
}

// SemanticExtractor pulls structured commercial terms out of a combined
// evidence blob. Same degrade contract as SemanticClassifier: when not
// Available the extractor yields an empty payload with confidence 0.
type SemanticExtractor interface {
	Available() bool
	Extract(ctx context.Context, evidence string) (*domain.CommercialPayload, error)
}
