package classification

import (
	"context"
	"strconv"
	"time"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/logger"
)

const (
	confidenceSubjectTag     = 100
	confidenceSenderRegistry = 80
	semanticTimeout          = 20 * time.Second
)

// Cascade runs the classification stages in order; the first stage to
// succeed determines the outcome.
//
// Stage 1: SubjectTag      (100) → embedded quotation number in subject
// Stage 2: SenderRegistry  (80)  → registered address + latest open proposal
// Stage 3: Semantic        (var) → model verdict over open-quotation context
type Cascade struct {
	semantic out.SemanticClassifier
	log      *logger.Logger
}

// Input is one message plus the tenant context it is classified
// against. Quotations must already be filtered to open statuses.
type Input struct {
	Message   *out.NormalizedMessage
	Open      []*domain.QuotationRequest
	Suppliers []*domain.Supplier

	// LatestOpenProposal resolves the supplier's most recent proposal
	// whose quotation is still open. Injected so the cascade stays
	// free of repository wiring.
	LatestOpenProposal func(ctx context.Context, supplierID int64) (*domain.SupplierProposal, error)
}

func NewCascade(semantic out.SemanticClassifier, log *logger.Logger) *Cascade {
	return &Cascade{semantic: semantic, log: log}
}

// Classify resolves one message. It never returns a classification
// pointing at a quotation outside the open set.
func (c *Cascade) Classify(ctx context.Context, in *Input) (domain.Outcome, error) {
	if o, ok := c.classifyBySubject(ctx, in); ok {
		return o, nil
	}

	if o, ok, err := c.classifyBySender(ctx, in); err != nil {
		return domain.Unresolved(), err
	} else if ok {
		return o, nil
	}

	if o, ok, err := c.classifyBySemantic(ctx, in); err != nil {
		return domain.Unresolved(), err
	} else if ok {
		return o, nil
	}

	return domain.Unresolved(), nil
}

// classifyBySubject matches an embedded quotation tag against the open
// set. A tag referencing a closed or unknown quotation is ignored, so
// stale references never resurrect finalized deals.
func (c *Cascade) classifyBySubject(ctx context.Context, in *Input) (domain.Outcome, bool) {
	tag, numeric, ok := ExtractSubjectTag(in.Message.Subject)
	if !ok {
		return domain.Outcome{}, false
	}

	var match *domain.QuotationRequest
	for _, q := range in.Open {
		if numeric {
			if strconv.FormatInt(q.ID, 10) == tag {
				match = q
				break
			}
		} else if q.Number == tag {
			match = q
			break
		}
	}
	if match == nil {
		return domain.Outcome{}, false
	}

	o := domain.Outcome{
		Method:      domain.MethodSubjectTag,
		QuotationID: &match.ID,
		Confidence:  confidenceSubjectTag,
	}

	// best-effort supplier resolution; the tag alone carries the match
	if s := c.supplierByAddress(in, in.Message.FromEmail); s != nil {
		o.SupplierID = &s.ID
	}
	return o, true
}

// classifyBySender matches the sender address against the supplier
// registry, then requires a latest open proposal for that supplier. A
// registered sender with nothing open falls through.
func (c *Cascade) classifyBySender(ctx context.Context, in *Input) (domain.Outcome, bool, error) {
	s := c.supplierByAddress(in, in.Message.FromEmail)
	if s == nil || in.LatestOpenProposal == nil {
		return domain.Outcome{}, false, nil
	}

	p, err := in.LatestOpenProposal(ctx, s.ID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return domain.Outcome{}, false, nil
		}
		return domain.Outcome{}, false, err
	}
	if p == nil {
		return domain.Outcome{}, false, nil
	}

	return domain.Outcome{
		Method:      domain.MethodSenderRegistry,
		QuotationID: &p.QuotationID,
		SupplierID:  &s.ID,
		Confidence:  confidenceSenderRegistry,
	}, true, nil
}

// classifyBySemantic asks the model whether the message answers one of
// the open quotations. The returned id must be one of the ids offered.
func (c *Cascade) classifyBySemantic(ctx context.Context, in *Input) (domain.Outcome, bool, error) {
	if c.semantic == nil || !c.semantic.Available() || len(in.Open) == 0 {
		return domain.Outcome{}, false, nil
	}

	offered := make([]out.QuotationContext, 0, len(in.Open))
	valid := make(map[int64]bool, len(in.Open))
	for _, q := range in.Open {
		offered = append(offered, out.QuotationContext{
			ID:        q.ID,
			Number:    q.Number,
			Title:     q.Title,
			ItemNames: q.ItemNames(),
		})
		valid[q.ID] = true
	}

	sctx, cancel := context.WithTimeout(ctx, semanticTimeout)
	defer cancel()

	match, err := c.semantic.Classify(sctx, in.Message.Subject, in.Message.Body, offered)
	if err != nil {
		return domain.Outcome{}, false, apperr.CapabilityError("semantic_classification", err)
	}
	if match == nil || !match.IsMatch || match.QuotationID == nil {
		return domain.Outcome{}, false, nil
	}
	if !valid[*match.QuotationID] {
		c.log.WithField("quotation_id", *match.QuotationID).
			Warn("semantic classifier returned out-of-set quotation id, discarding")
		return domain.Outcome{}, false, nil
	}

	o := domain.Outcome{
		Method:      domain.MethodSemantic,
		QuotationID: match.QuotationID,
		Confidence:  match.Confidence,
	}

	// supplier is best-effort here; no open-proposal requirement
	if s := c.supplierByAddress(in, in.Message.FromEmail); s != nil {
		o.SupplierID = &s.ID
	}
	return o, true, nil
}

func (c *Cascade) supplierByAddress(in *Input, addr string) *domain.Supplier {
	for _, s := range in.Suppliers {
		if s.MatchesEmail(addr) {
			return s
		}
	}
	return nil
}
