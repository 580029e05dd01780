package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/core/service/classification"
	"mailroom_server/core/service/extraction"
	"mailroom_server/core/service/reconcile"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/crypto"
	"mailroom_server/pkg/logger"
	"mailroom_server/pkg/snowflake"
)

// ---- fakes -----------------------------------------------------------------

type memRecords struct {
	rows map[uint32]*domain.IncomingEmailRecord
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[uint32]*domain.IncomingEmailRecord)}
}

func (m *memRecords) Create(ctx context.Context, rec *domain.IncomingEmailRecord) error {
	if _, ok := m.rows[rec.MailboxUID]; ok {
		return apperr.DuplicateMessage(rec.MailboxUID)
	}
	m.rows[rec.MailboxUID] = rec
	return nil
}

func (m *memRecords) Update(ctx context.Context, rec *domain.IncomingEmailRecord) error {
	m.rows[rec.MailboxUID] = rec
	return nil
}

func (m *memRecords) GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.IncomingEmailRecord, error) {
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperr.NotFound("record")
}

func (m *memRecords) ExistsByUID(ctx context.Context, tenantID uuid.UUID, uid uint32) (bool, error) {
	_, ok := m.rows[uid]
	return ok, nil
}

func (m *memRecords) ListByStatus(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error) {
	var recs []*domain.IncomingEmailRecord
	for _, r := range m.rows {
		if r.Status == status {
			recs = append(recs, r)
		}
	}
	return recs, len(recs), nil
}

type memQuotations struct {
	open     []*domain.QuotationRequest
	promoted []int64
}

func (m *memQuotations) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*domain.QuotationRequest, error) {
	return m.open, nil
}
func (m *memQuotations) CountOpen(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return len(m.open), nil
}
func (m *memQuotations) GetByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.QuotationRequest, error) {
	for _, q := range m.open {
		if q.Number == number {
			return q, nil
		}
	}
	return nil, apperr.NotFound("quotation")
}
func (m *memQuotations) GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.QuotationRequest, error) {
	for _, q := range m.open {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, apperr.NotFound("quotation")
}
func (m *memQuotations) PromoteToNegotiation(ctx context.Context, tenantID uuid.UUID, id int64) error {
	m.promoted = append(m.promoted, id)
	return nil
}

type memSuppliers struct{ all []*domain.Supplier }

func (m *memSuppliers) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Supplier, error) {
	return m.all, nil
}
func (m *memSuppliers) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.Supplier, error) {
	for _, s := range m.all {
		if s.MatchesEmail(email) {
			return s, nil
		}
	}
	return nil, apperr.NotFound("supplier")
}

type memProposals struct {
	byKey map[[2]int64]*domain.SupplierProposal
}

func (m *memProposals) GetByQuotationAndSupplier(ctx context.Context, tenantID uuid.UUID, quotationID, supplierID int64) (*domain.SupplierProposal, error) {
	if p, ok := m.byKey[[2]int64{quotationID, supplierID}]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("proposal")
}
func (m *memProposals) LatestOpenBySupplier(ctx context.Context, tenantID uuid.UUID, supplierID int64) (*domain.SupplierProposal, error) {
	for _, p := range m.byKey {
		if p.SupplierID == supplierID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("proposal")
}
func (m *memProposals) Update(ctx context.Context, proposal *domain.SupplierProposal) error {
	m.byKey[[2]int64{proposal.QuotationID, proposal.SupplierID}] = proposal
	return nil
}

type memSettings struct{ s *domain.MailboxSettings }

func (m *memSettings) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.MailboxSettings, error) {
	if m.s == nil {
		return nil, apperr.NotFound("mailbox settings")
	}
	return m.s, nil
}
func (m *memSettings) Upsert(ctx context.Context, settings *domain.MailboxSettings) error {
	m.s = settings
	return nil
}
func (m *memSettings) ListEnabled(ctx context.Context) ([]*domain.MailboxSettings, error) {
	if m.s == nil || !m.s.Enabled {
		return nil, nil
	}
	return []*domain.MailboxSettings{m.s}, nil
}

type fakeMailbox struct {
	messages    []out.NormalizedMessage
	err         error
	calls       int
	hadDeadline bool
}

func (f *fakeMailbox) Fetch(ctx context.Context, settings *domain.MailboxSettings, secret string, since time.Time) ([]out.NormalizedMessage, error) {
	f.calls++
	_, f.hadDeadline = ctx.Deadline()
	return f.messages, f.err
}

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, tenantID uuid.UUID, ttl time.Duration) (string, bool, error) {
	if f.held {
		return "", false, nil
	}
	f.acquired++
	f.held = true
	return "tok", true, nil
}
func (f *fakeLocker) Release(ctx context.Context, tenantID uuid.UUID, token string) error {
	f.released++
	f.held = false
	return nil
}

type fakeSemanticClassifier struct{ available bool }

func (f *fakeSemanticClassifier) Available() bool { return f.available }
func (f *fakeSemanticClassifier) Classify(ctx context.Context, subject, body string, open []out.QuotationContext) (*out.SemanticMatch, error) {
	return &out.SemanticMatch{IsMatch: false}, nil
}

type fakeSemanticExtractor struct {
	payload *domain.CommercialPayload
	err     error
}

func (f *fakeSemanticExtractor) Available() bool { return f.payload != nil || f.err != nil }
func (f *fakeSemanticExtractor) Extract(ctx context.Context, evidence string) (*domain.CommercialPayload, error) {
	return f.payload, f.err
}

// ---- fixture ---------------------------------------------------------------

type fixture struct {
	tenant     uuid.UUID
	records    *memRecords
	quotations *memQuotations
	suppliers  *memSuppliers
	proposals  *memProposals
	settings   *memSettings
	mailbox    *fakeMailbox
	locker     *fakeLocker
	svc        *Service
}

func newFixture(t *testing.T, extractorPayload *domain.CommercialPayload) *fixture {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
	enc, err := crypto.NewEncryptor([]byte("test-key"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	ids, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	secret, _ := enc.Encrypt("imap-password")

	quotation := &domain.QuotationRequest{
		ID: 1, Number: "SC-2025-00010", Title: "Cotação de peças",
		Status: domain.QuotationSent,
		Items:  []domain.QuotationItem{{ID: 100, Position: 0, Name: "Widget", Quantity: 5}},
	}
	supplier := &domain.Supplier{ID: 2, Name: "Acme", Emails: []string{"vendas@acme.com"}}
	proposal := &domain.SupplierProposal{
		ID: 77, QuotationID: 1, SupplierID: 2, Status: domain.ProposalPending,
		Items: []domain.ProposalItem{{ID: 500, QuotationItemID: 100, Position: 0}},
	}

	f := &fixture{
		tenant:     uuid.New(),
		records:    newMemRecords(),
		quotations: &memQuotations{open: []*domain.QuotationRequest{quotation}},
		suppliers:  &memSuppliers{all: []*domain.Supplier{supplier}},
		proposals:  &memProposals{byKey: map[[2]int64]*domain.SupplierProposal{{1, 2}: proposal}},
		settings: &memSettings{s: &domain.MailboxSettings{
			Host: "imap.test", Port: 993, Address: "compras@tenant.com",
			EncryptedSecret: secret, Folder: "INBOX", Enabled: true,
		}},
		mailbox: &fakeMailbox{},
		locker:  &fakeLocker{},
	}

	cascade := classification.NewCascade(&fakeSemanticClassifier{available: false}, log)
	extractor := extraction.NewExtractor(&fakeSemanticExtractor{payload: extractorPayload}, log)
	reconciler := reconcile.NewReconciler(f.proposals, f.quotations, 40, log)

	f.svc = NewService(Deps{
		Records:    f.records,
		Quotations: f.quotations,
		Suppliers:  f.suppliers,
		Proposals:  f.proposals,
		Settings:   f.settings,
		Mailbox:    f.mailbox,
		Locker:     f.locker,
		Cascade:    cascade,
		Extractor:  extractor,
		Reconciler: reconciler,
		Encryptor:  enc,
		IDs:        ids,
		Logger:     log,
	}, Options{LookbackDays: 7, BodyExcerptRunes: 2000})

	return f
}

// ---- tests -----------------------------------------------------------------

func TestRunEndToEnd(t *testing.T) {
	price := 10.0
	f := newFixture(t, &domain.CommercialPayload{
		Items:      []domain.ExtractedItem{{Index: 0, UnitPrice: &price}},
		Confidence: 90,
	})
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 42, FromEmail: "vendas@acme.com",
		Subject:    "Re: [SC-2025-00010] cotação",
		Body:       "Widget: R$ 10,00 cada",
		ReceivedAt: time.Now(),
	}}

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.MessagesRead != 1 || sum.NewlySeen != 1 || sum.ClassifiedBySubject != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	rec := f.records.rows[42]
	if rec.Status != domain.StatusClassified || rec.Method != domain.MethodSubjectTag {
		t.Fatalf("record not classified via subject tag: %s/%s", rec.Status, rec.Method)
	}
	if rec.Confidence == nil || *rec.Confidence != 100 {
		t.Errorf("expected confidence 100, got %v", rec.Confidence)
	}
	if rec.QuotationID == nil || *rec.QuotationID != 1 || rec.SupplierID == nil || *rec.SupplierID != 2 {
		t.Errorf("links missing: q=%v s=%v", rec.QuotationID, rec.SupplierID)
	}
	if rec.ProposalID == nil || *rec.ProposalID != 77 {
		t.Errorf("proposal link missing: %v", rec.ProposalID)
	}
	if len(rec.ExtractedPayload) == 0 {
		t.Error("raw payload not stored on record")
	}

	p := f.proposals.byKey[[2]int64{1, 2}]
	if p.Status != domain.ProposalReceived {
		t.Errorf("proposal not received: %s", p.Status)
	}
	if p.Items[0].UnitPrice == nil || *p.Items[0].UnitPrice != 10.00 {
		t.Errorf("unit price: %v", p.Items[0].UnitPrice)
	}
	if p.TotalValue == nil || *p.TotalValue != 50.00 {
		t.Errorf("total: %v", p.TotalValue)
	}
	if len(f.quotations.promoted) != 1 {
		t.Error("quotation not promoted")
	}
	if f.locker.released != 1 {
		t.Error("tenant lock not released")
	}
}

func TestRunIdempotent(t *testing.T) {
	price := 10.0
	f := newFixture(t, &domain.CommercialPayload{
		Items:      []domain.ExtractedItem{{Index: 0, UnitPrice: &price}},
		Confidence: 90,
	})
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 42, FromEmail: "vendas@acme.com",
		Subject: "Re: [SC-2025-00010] cotação", Body: "Widget: R$ 10,00",
	}}

	if _, err := f.svc.Run(context.Background(), f.tenant, 7); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstProcessed := *f.records.rows[42].ProcessedAt

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.NewlySeen != 0 {
		t.Errorf("second run saw %d new messages", sum.NewlySeen)
	}
	if len(f.records.rows) != 1 {
		t.Errorf("expected 1 record, got %d", len(f.records.rows))
	}
	if !f.records.rows[42].ProcessedAt.Equal(firstProcessed) {
		t.Error("record reprocessed on second run")
	}
}

func TestRunSkipsWithoutOpenQuotations(t *testing.T) {
	f := newFixture(t, nil)
	f.quotations.open = nil

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Skipped {
		t.Error("expected skipped run")
	}
	if f.mailbox.calls != 0 {
		t.Error("mailbox must not be contacted for idle tenants")
	}
}

func TestRunBoundsMailboxFetch(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.svc.Run(context.Background(), f.tenant, 7); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.mailbox.calls != 1 {
		t.Fatalf("expected one fetch, got %d", f.mailbox.calls)
	}
	if !f.mailbox.hadDeadline {
		t.Error("mailbox fetch must run under a deadline")
	}
}

func TestRunRejectedWhileLocked(t *testing.T) {
	f := newFixture(t, nil)
	f.locker.held = true

	_, err := f.svc.Run(context.Background(), f.tenant, 7)
	if !apperr.IsCode(err, apperr.CodeRunInProgress) {
		t.Errorf("expected RUN_IN_PROGRESS, got %v", err)
	}
}

func TestRunTransportFailureWithNothingFetched(t *testing.T) {
	f := newFixture(t, nil)
	f.mailbox.err = apperr.Transport("login", errors.New("connection refused"))

	_, err := f.svc.Run(context.Background(), f.tenant, 7)
	if !apperr.IsCode(err, apperr.CodeTransportError) {
		t.Errorf("expected TRANSPORT_ERROR, got %v", err)
	}
	if f.locker.released != 1 {
		t.Error("lock must be released after an aborted run")
	}
}

func TestRunProcessesPartialFetch(t *testing.T) {
	f := newFixture(t, nil)
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 7, FromEmail: "x@y.com", Subject: "sem relação", Body: "oi",
	}}
	f.mailbox.err = apperr.Transport("fetch", errors.New("connection reset"))

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("partial fetch should still process: %v", err)
	}
	if !sum.PartialFetch || sum.FetchError == nil {
		t.Error("partial fetch not flagged on summary")
	}
	if sum.NewlySeen != 1 || sum.Pending != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestRunReconcileTargetMissingMarksErrorKeepsLinks(t *testing.T) {
	price := 10.0
	f := newFixture(t, &domain.CommercialPayload{
		Items:      []domain.ExtractedItem{{Index: 0, UnitPrice: &price}},
		Confidence: 90,
	})
	// remove the proposal row so reconciliation has no target
	delete(f.proposals.byKey, [2]int64{1, 2})

	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 42, FromEmail: "vendas@acme.com",
		Subject: "Re: [SC-2025-00010] cotação", Body: "Widget: R$ 10,00",
	}}

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Errors != 1 {
		t.Errorf("expected 1 error, got %d", sum.Errors)
	}

	rec := f.records.rows[42]
	if rec.Status != domain.StatusError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	if rec.QuotationID == nil || rec.SupplierID == nil {
		t.Error("links must be kept for manual follow-up")
	}
	if rec.ErrorDetail == nil {
		t.Error("error detail missing")
	}
}

func TestRunUnresolvedMessageStaysPending(t *testing.T) {
	f := newFixture(t, nil)
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 9, FromEmail: "stranger@else.com", Subject: "newsletter", Body: "promo",
	}}

	sum, err := f.svc.Run(context.Background(), f.tenant, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Pending != 1 {
		t.Errorf("expected 1 pending, got %d", sum.Pending)
	}
	if f.records.rows[9].Status != domain.StatusPending {
		t.Errorf("expected pending record, got %s", f.records.rows[9].Status)
	}
}

func TestIgnoreRemovesRecordFromTriage(t *testing.T) {
	f := newFixture(t, nil)
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 9, FromEmail: "stranger@else.com", Subject: "newsletter", Body: "promo",
	}}

	if _, err := f.svc.Run(context.Background(), f.tenant, 7); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := f.records.rows[9]

	ignored, err := f.svc.Ignore(context.Background(), f.tenant, rec.ID)
	if err != nil {
		t.Fatalf("Ignore: %v", err)
	}
	if ignored.Status != domain.StatusIgnored {
		t.Errorf("expected ignored status, got %s", ignored.Status)
	}

	// classified records cannot be ignored
	rec.Status = domain.StatusClassified
	if _, err := f.svc.Ignore(context.Background(), f.tenant, rec.ID); !apperr.IsCode(err, apperr.CodeConflict) {
		t.Errorf("expected CONFLICT, got %v", err)
	}
}

func TestReclassifyReplaysExtraction(t *testing.T) {
	price := 10.0
	f := newFixture(t, &domain.CommercialPayload{
		Items:      []domain.ExtractedItem{{Index: 0, UnitPrice: &price}},
		Confidence: 90,
	})
	f.mailbox.messages = []out.NormalizedMessage{{
		UID: 9, FromEmail: "stranger@else.com", Subject: "proposta", Body: "Widget R$ 10,00",
	}}

	if _, err := f.svc.Run(context.Background(), f.tenant, 7); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := f.records.rows[9]
	if rec.Status != domain.StatusPending {
		t.Fatalf("precondition: expected pending, got %s", rec.Status)
	}

	updated, err := f.svc.Reclassify(context.Background(), f.tenant, rec.ID, 1, 2)
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if updated.Status != domain.StatusClassified || updated.Method != domain.MethodManual {
		t.Errorf("unexpected state %s/%s", updated.Status, updated.Method)
	}
	if updated.ProposalID == nil || *updated.ProposalID != 77 {
		t.Errorf("proposal link missing: %v", updated.ProposalID)
	}
	if f.proposals.byKey[[2]int64{1, 2}].Status != domain.ProposalReceived {
		t.Error("proposal not received after manual reclassification")
	}
}
