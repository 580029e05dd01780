package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

const (
	classifierSystemPrompt = `You classify inbound emails for a procurement system.
Given an email and a list of open quotation requests, decide whether the
email is a supplier's reply to exactly one of them.
Respond with JSON only: {"is_match": bool, "quotation_id": int or null, "confidence": 0-100}.
quotation_id MUST be one of the offered ids or null. Be conservative:
when unsure, answer is_match=false.`

	maxClassifierBodyRunes = 4000
)

// ClassifierAdapter implements out.SemanticClassifier.
type ClassifierAdapter struct {
	client *Client
}

var _ out.SemanticClassifier = (*ClassifierAdapter)(nil)

func NewClassifierAdapter(client *Client) *ClassifierAdapter {
	return &ClassifierAdapter{client: client}
}

func (a *ClassifierAdapter) Available() bool {
	return a != nil && a.client != nil
}

func (a *ClassifierAdapter) Classify(ctx context.Context, subject, bodyExcerpt string, open []out.QuotationContext) (*out.SemanticMatch, error) {
	if !a.Available() {
		return nil, apperr.CapabilityUnavailable("semantic_classification")
	}

	var b strings.Builder
	b.WriteString("Open quotation requests:\n")
	for _, q := range open {
		fmt.Fprintf(&b, "- id=%d number=%s title=%q items=%s\n",
			q.ID, q.Number, q.Title, strings.Join(q.ItemNames, ", "))
	}
	fmt.Fprintf(&b, "\nEmail subject: %s\nEmail body:\n%s\n",
		subject, truncateRunes(bodyExcerpt, maxClassifierBodyRunes))

	raw, err := a.client.CompleteJSON(ctx, classifierSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var match out.SemanticMatch
	if err := json.Unmarshal([]byte(raw), &match); err != nil {
		return nil, apperr.Parse("semantic classification response", err)
	}
	if match.Confidence < 0 {
		match.Confidence = 0
	}
	if match.Confidence > 100 {
		match.Confidence = 100
	}
	return &match, nil
}
