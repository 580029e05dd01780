package classification

import (
	"context"
	"errors"
	"testing"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/logger"
)

type fakeSemantic struct {
	available bool
	match     *out.SemanticMatch
	err       error
	called    bool
}

func (f *fakeSemantic) Available() bool { return f.available }

func (f *fakeSemantic) Classify(ctx context.Context, subject, body string, open []out.QuotationContext) (*out.SemanticMatch, error) {
	f.called = true
	return f.match, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

func openQuotation(id int64, number string) *domain.QuotationRequest {
	return &domain.QuotationRequest{ID: id, Number: number, Status: domain.QuotationSent}
}

func supplier(id int64, emails ...string) *domain.Supplier {
	return &domain.Supplier{ID: id, Emails: emails}
}

func msg(from, subject string) *out.NormalizedMessage {
	return &out.NormalizedMessage{UID: 1, FromEmail: from, Subject: subject, Body: "body"}
}

func TestExtractSubjectTag(t *testing.T) {
	tests := []struct {
		subject string
		tag     string
		numeric bool
		ok      bool
	}{
		{"SC-2025-00010", "SC-2025-00010", false, true},
		{"Re: [SC-2025-00010] cotação", "SC-2025-00010", false, true},
		{"RES: sc-2025-00010 proposta", "SC-2025-00010", false, true},
		{"Fwd: Cotação #123", "123", true, true},
		{"Orçamento atualizado", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		tag, numeric, ok := ExtractSubjectTag(tt.subject)
		if ok != tt.ok || tag != tt.tag || numeric != tt.numeric {
			t.Errorf("ExtractSubjectTag(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.subject, tag, numeric, ok, tt.tag, tt.numeric, tt.ok)
		}
	}
}

func TestSubjectTagWins(t *testing.T) {
	q1 := openQuotation(1, "SC-2025-00010")
	q2 := openQuotation(2, "SC-2025-00011")
	s1 := supplier(10, "vendas@acme.com")

	sem := &fakeSemantic{available: true}
	c := NewCascade(sem, testLogger())

	// sender matches a supplier with an open proposal for a DIFFERENT
	// quotation; subject tag must win anyway
	in := &Input{
		Message:   msg("vendas@acme.com", "Re: [SC-2025-00010] cotação"),
		Open:      []*domain.QuotationRequest{q1, q2},
		Suppliers: []*domain.Supplier{s1},
		LatestOpenProposal: func(ctx context.Context, supplierID int64) (*domain.SupplierProposal, error) {
			return &domain.SupplierProposal{ID: 99, QuotationID: q2.ID, SupplierID: supplierID}, nil
		},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if o.Method != domain.MethodSubjectTag {
		t.Fatalf("expected subject_tag, got %s", o.Method)
	}
	if o.QuotationID == nil || *o.QuotationID != q1.ID {
		t.Errorf("expected quotation %d, got %v", q1.ID, o.QuotationID)
	}
	if o.SupplierID == nil || *o.SupplierID != s1.ID {
		t.Errorf("expected supplier resolved via registry, got %v", o.SupplierID)
	}
	if o.Confidence != 100 {
		t.Errorf("expected confidence 100, got %d", o.Confidence)
	}
	if sem.called {
		t.Error("semantic stage must not run after subject match")
	}
}

func TestStaleSubjectTagRejected(t *testing.T) {
	// quotation referenced by the tag is not in the open set
	c := NewCascade(nil, testLogger())

	in := &Input{
		Message: msg("any@one.com", "Re: [SC-2024-00001] cotação"),
		Open:    []*domain.QuotationRequest{openQuotation(1, "SC-2025-00010")},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if o.Method != domain.MethodNone {
		t.Errorf("stale tag must not classify, got %s", o.Method)
	}
}

func TestSenderRegistryMatch(t *testing.T) {
	q := openQuotation(5, "SC-2025-00020")
	s := supplier(7, "contato@fornecedor.com")

	c := NewCascade(nil, testLogger())
	in := &Input{
		Message:   msg("Contato@Fornecedor.com", "proposta comercial"),
		Open:      []*domain.QuotationRequest{q},
		Suppliers: []*domain.Supplier{s},
		LatestOpenProposal: func(ctx context.Context, supplierID int64) (*domain.SupplierProposal, error) {
			return &domain.SupplierProposal{ID: 50, QuotationID: q.ID, SupplierID: supplierID}, nil
		},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if o.Method != domain.MethodSenderRegistry || o.Confidence != 80 {
		t.Errorf("expected sender_registry/80, got %s/%d", o.Method, o.Confidence)
	}
	if o.QuotationID == nil || *o.QuotationID != q.ID {
		t.Errorf("expected quotation %d, got %v", q.ID, o.QuotationID)
	}
}

func TestSenderWithoutOpenProposalFallsThrough(t *testing.T) {
	s := supplier(7, "contato@fornecedor.com")
	sem := &fakeSemantic{available: true, match: &out.SemanticMatch{IsMatch: false}}

	c := NewCascade(sem, testLogger())
	in := &Input{
		Message:   msg("contato@fornecedor.com", "proposta"),
		Open:      []*domain.QuotationRequest{openQuotation(1, "SC-2025-00010")},
		Suppliers: []*domain.Supplier{s},
		LatestOpenProposal: func(ctx context.Context, supplierID int64) (*domain.SupplierProposal, error) {
			return nil, apperr.NotFound("proposal")
		},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !sem.called {
		t.Error("expected fall-through to semantic stage")
	}
	if o.Method != domain.MethodNone {
		t.Errorf("expected unresolved, got %s", o.Method)
	}
}

func TestSemanticMatchInOfferedSet(t *testing.T) {
	q := openQuotation(3, "SC-2025-00030")
	qid := q.ID
	sem := &fakeSemantic{
		available: true,
		match:     &out.SemanticMatch{IsMatch: true, QuotationID: &qid, Confidence: 72},
	}

	c := NewCascade(sem, testLogger())
	in := &Input{
		Message: msg("novo@vendor.com", "sobre os itens solicitados"),
		Open:    []*domain.QuotationRequest{q},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if o.Method != domain.MethodSemantic || o.Confidence != 72 {
		t.Errorf("expected semantic/72, got %s/%d", o.Method, o.Confidence)
	}
	if o.SupplierID != nil {
		t.Error("unregistered sender should leave supplier nil")
	}
}

func TestSemanticOutOfSetIDDiscarded(t *testing.T) {
	rogue := int64(999)
	sem := &fakeSemantic{
		available: true,
		match:     &out.SemanticMatch{IsMatch: true, QuotationID: &rogue, Confidence: 90},
	}

	c := NewCascade(sem, testLogger())
	in := &Input{
		Message: msg("a@b.com", "qualquer assunto"),
		Open:    []*domain.QuotationRequest{openQuotation(3, "SC-2025-00030")},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if o.Method != domain.MethodNone {
		t.Errorf("out-of-set id must not classify, got %s", o.Method)
	}
}

func TestSemanticUnavailableDegrades(t *testing.T) {
	sem := &fakeSemantic{available: false}
	c := NewCascade(sem, testLogger())

	in := &Input{
		Message: msg("a@b.com", "assunto livre"),
		Open:    []*domain.QuotationRequest{openQuotation(1, "SC-2025-00010")},
	}

	o, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if sem.called {
		t.Error("unavailable capability must not be called")
	}
	if o.Method != domain.MethodNone {
		t.Errorf("expected unresolved, got %s", o.Method)
	}
}

func TestSemanticCallFailureSurfacesCapabilityError(t *testing.T) {
	sem := &fakeSemantic{available: true, err: errors.New("timeout")}
	c := NewCascade(sem, testLogger())

	in := &Input{
		Message: msg("a@b.com", "assunto livre"),
		Open:    []*domain.QuotationRequest{openQuotation(1, "SC-2025-00010")},
	}

	_, err := c.Classify(context.Background(), in)
	if !apperr.IsCode(err, apperr.CodeCapabilityError) {
		t.Errorf("expected CAPABILITY_ERROR, got %v", err)
	}
}
