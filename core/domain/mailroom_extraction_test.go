package domain

import "testing"

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"decimal comma with symbol", "R$ 5,00", 5.00, true},
		{"decimal comma grouped", "R$ 1.234,56", 1234.56, true},
		{"decimal point", "10.50", 10.50, true},
		{"decimal point grouped", "1,234.56", 1234.56, true},
		{"comma grouped and decimal", "1,234,56", 1234.56, true},
		{"comma grouped thousands", "1.234.567,89", 1234567.89, true},
		{"bare integer", "1500", 1500, true},
		{"usd symbol", "$ 99.90", 99.90, true},
		{"whitespace only", "   ", 0, false},
		{"no digits", "a combinar", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMoney(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseMoney(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseMoney(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLeadTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{"immediate pt", "entrega imediata", 0, true},
		{"immediate en", "immediate delivery", 0, true},
		{"pronta entrega", "pronta entrega", 0, true},
		{"plain days", "15 dias", 15, true},
		{"weeks", "2 semanas", 14, true},
		{"weeks en", "3 weeks", 21, true},
		{"no hint", "a combinar", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLeadTime(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseLeadTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseLeadTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuotationStatusIsOpen(t *testing.T) {
	open := []QuotationStatus{QuotationSent, QuotationInNegotiation}
	closed := []QuotationStatus{QuotationDraft, QuotationFinalized, QuotationCancelled}

	for _, s := range open {
		if !s.IsOpen() {
			t.Errorf("%s should be open", s)
		}
	}
	for _, s := range closed {
		if s.IsOpen() {
			t.Errorf("%s should not be open", s)
		}
	}
}

func TestSupplierMatchesEmail(t *testing.T) {
	s := Supplier{Emails: []string{"Vendas@Acme.com", "billing@acme.com"}}

	if !s.MatchesEmail("vendas@acme.com") {
		t.Error("expected case-insensitive match")
	}
	if !s.MatchesEmail("  billing@acme.com ") {
		t.Error("expected whitespace-tolerant match")
	}
	if s.MatchesEmail("other@acme.com") {
		t.Error("unexpected match for unregistered address")
	}
}

func TestProposalRecomputeTotal(t *testing.T) {
	lt1, lt2 := 50.0, 30.0
	freight := 20.0

	p := SupplierProposal{
		Items: []ProposalItem{
			{LineTotal: &lt1},
			{LineTotal: &lt2},
		},
		FreightValue: &freight,
	}
	p.RecomputeTotal()
	if p.TotalValue == nil || *p.TotalValue != 100.0 {
		t.Errorf("expected total 100.0, got %v", p.TotalValue)
	}

	empty := SupplierProposal{Items: []ProposalItem{{}, {}}}
	empty.RecomputeTotal()
	if empty.TotalValue != nil {
		t.Errorf("expected nil total when no line totals, got %v", *empty.TotalValue)
	}
}

func TestApplyOutcome(t *testing.T) {
	qid, sid := int64(10), int64(20)

	t.Run("fully resolved", func(t *testing.T) {
		r := IncomingEmailRecord{Status: StatusPending}
		r.ApplyOutcome(Outcome{Method: MethodSubjectTag, QuotationID: &qid, SupplierID: &sid, Confidence: 100})
		if r.Status != StatusClassified {
			t.Errorf("expected classified, got %s", r.Status)
		}
		if r.Confidence == nil || *r.Confidence != 100 {
			t.Error("confidence not stamped")
		}
	})

	t.Run("quotation only stays pending", func(t *testing.T) {
		r := IncomingEmailRecord{Status: StatusPending}
		r.ApplyOutcome(Outcome{Method: MethodSemantic, QuotationID: &qid, Confidence: 70})
		if r.Status != StatusPending {
			t.Errorf("expected pending, got %s", r.Status)
		}
		if r.QuotationID == nil {
			t.Error("quotation link should be kept for manual triage")
		}
	})

	t.Run("unresolved", func(t *testing.T) {
		r := IncomingEmailRecord{Status: StatusPending}
		r.ApplyOutcome(Unresolved())
		if r.Status != StatusPending || r.Method != MethodNone {
			t.Errorf("unexpected state %s/%s", r.Status, r.Method)
		}
		if r.Confidence != nil {
			t.Error("confidence should stay nil for unresolved")
		}
	})
}
