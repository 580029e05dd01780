// Package ingestion holds the per-tenant orchestrator: mailbox sweep,
// dedup, cascade, extraction, reconciliation, record persistence.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"mailroom_server/core/domain"
	portin "mailroom_server/core/port/in"
	"mailroom_server/core/port/out"
	"mailroom_server/core/service/classification"
	"mailroom_server/core/service/extraction"
	"mailroom_server/core/service/reconcile"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/crypto"
	"mailroom_server/pkg/logger"
	"mailroom_server/pkg/snowflake"
)

// Options bound the orchestrator's timing and sizes.
type Options struct {
	LookbackDays     int
	BodyExcerptRunes int
	TenantLockTTL    time.Duration
	OpenCountTTL     time.Duration
	MessageTimeout   time.Duration
	FetchTimeout     time.Duration
}

// Service implements port/in.IngestionService.
type Service struct {
	opts Options

	records    out.EmailRecordRepository
	quotations out.QuotationRepository
	suppliers  out.SupplierRepository
	proposals  out.ProposalRepository
	settings   out.SettingsRepository

	mailbox out.MailboxProvider
	locker  out.TenantLocker
	audit   out.AuditStore
	cache   out.CounterCache

	cascade    *classification.Cascade
	extractor  *extraction.Extractor
	reconciler *reconcile.Reconciler

	enc *crypto.Encryptor
	ids *snowflake.Generator
	log *logger.Logger
}

var _ portin.IngestionService = (*Service)(nil)

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Records    out.EmailRecordRepository
	Quotations out.QuotationRepository
	Suppliers  out.SupplierRepository
	Proposals  out.ProposalRepository
	Settings   out.SettingsRepository

	Mailbox out.MailboxProvider
	Locker  out.TenantLocker
	Audit   out.AuditStore
	Cache   out.CounterCache

	Cascade    *classification.Cascade
	Extractor  *extraction.Extractor
	Reconciler *reconcile.Reconciler

	Encryptor *crypto.Encryptor
	IDs       *snowflake.Generator
	Logger    *logger.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.BodyExcerptRunes <= 0 {
		opts.BodyExcerptRunes = 2000
	}
	if opts.TenantLockTTL <= 0 {
		opts.TenantLockTTL = 10 * time.Minute
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = 90 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}

	return &Service{
		opts:       opts,
		records:    deps.Records,
		quotations: deps.Quotations,
		suppliers:  deps.Suppliers,
		proposals:  deps.Proposals,
		settings:   deps.Settings,
		mailbox:    deps.Mailbox,
		locker:     deps.Locker,
		audit:      deps.Audit,
		cache:      deps.Cache,
		cascade:    deps.Cascade,
		extractor:  deps.Extractor,
		reconciler: deps.Reconciler,
		enc:        deps.Encryptor,
		ids:        deps.IDs,
		log:        deps.Logger,
	}
}

// Run sweeps one tenant's mailbox. Concurrent runs for the same tenant
// are rejected with RUN_IN_PROGRESS; the mailbox window is processed
// sequentially so reconciliation never races itself.
func (s *Service) Run(ctx context.Context, tenantID uuid.UUID, lookbackDays int) (*portin.RunSummary, error) {
	log := s.log.WithTenant(tenantID.String())
	summary := &portin.RunSummary{TenantID: tenantID}

	token, ok, err := s.locker.Acquire(ctx, tenantID, s.opts.TenantLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.RunInProgress(tenantID.String())
	}
	defer func() {
		if relErr := s.locker.Release(context.Background(), tenantID, token); relErr != nil {
			log.WithError(relErr).Warn("failed to release tenant lock")
		}
	}()

	openCount, err := s.openQuotationCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if openCount == 0 {
		summary.Skipped = true
		log.Debug("no open quotations, skipping mailbox")
		return summary, nil
	}

	settings, err := s.settings.GetByTenant(ctx, tenantID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			summary.Skipped = true
			log.Debug("no mailbox settings configured, skipping")
			return summary, nil
		}
		return nil, err
	}
	if !settings.Enabled {
		summary.Skipped = true
		return summary, nil
	}

	secret, err := s.enc.Decrypt(settings.EncryptedSecret)
	if err != nil {
		return nil, apperr.ConfigError("mailbox secret cannot be decrypted").WithError(err)
	}

	if lookbackDays <= 0 {
		lookbackDays = s.opts.LookbackDays
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	started := time.Now()

	// the mailbox session is a bounded operation; a hung server fails
	// this run and the next tick retries
	fetchCtx, cancelFetch := context.WithTimeout(ctx, s.opts.FetchTimeout)
	messages, fetchErr := s.mailbox.Fetch(fetchCtx, settings, secret, since)
	cancelFetch()
	summary.MessagesRead = len(messages)
	if fetchErr != nil {
		if len(messages) == 0 {
			// nothing fetched; abort the run, next tick retries
			return nil, fetchErr
		}
		// partial progress is still processed
		summary.PartialFetch = true
		msg := fetchErr.Error()
		summary.FetchError = &msg
		log.WithError(fetchErr).Warn("partial mailbox fetch, processing %d messages", len(messages))
	}

	open, err := s.quotations.ListOpen(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.suppliers.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for i := range messages {
		s.processMessage(ctx, tenantID, &messages[i], open, suppliers, summary, log)
	}

	log.WithDuration(time.Since(started)).
		WithFields(map[string]any{
			"read":       summary.MessagesRead,
			"new":        summary.NewlySeen,
			"classified": summary.Classified(),
			"pending":    summary.Pending,
			"errors":     summary.Errors,
		}).
		Info("ingestion run finished")

	return summary, nil
}

// openQuotationCount consults the short-TTL cache before hitting the
// database; idle tenants cost one cached integer per tick.
func (s *Service) openQuotationCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	key := "mailroom:open_count:" + tenantID.String()

	if s.cache != nil {
		if v, ok, err := s.cache.GetInt(ctx, key); err == nil && ok {
			return v, nil
		}
	}

	n, err := s.quotations.CountOpen(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil && s.opts.OpenCountTTL > 0 {
		if err := s.cache.SetInt(ctx, key, n, s.opts.OpenCountTTL); err != nil {
			s.log.WithError(err).Debug("open-count cache write failed")
		}
	}
	return n, nil
}

// processMessage runs the per-message sequence. Every failure is
// recorded on the row; nothing here aborts the run.
func (s *Service) processMessage(
	ctx context.Context,
	tenantID uuid.UUID,
	msg *out.NormalizedMessage,
	open []*domain.QuotationRequest,
	suppliers []*domain.Supplier,
	summary *portin.RunSummary,
	log *logger.Logger,
) {
	mctx, cancel := context.WithTimeout(ctx, s.opts.MessageTimeout)
	defer cancel()

	seen, err := s.records.ExistsByUID(mctx, tenantID, msg.UID)
	if err != nil {
		log.WithError(err).Error("dedup lookup failed for uid %d", msg.UID)
		summary.Errors++
		return
	}
	if seen {
		return
	}

	rec := s.newRecord(tenantID, msg)
	if err := s.records.Create(mctx, rec); err != nil {
		if apperr.IsCode(err, apperr.CodeDuplicateMessage) {
			// lost a race; the other writer owns this message
			return
		}
		log.WithError(err).Error("failed to create record for uid %d", msg.UID)
		summary.Errors++
		return
	}
	summary.NewlySeen++

	s.archiveBody(mctx, tenantID, rec, msg, log)

	s.classifyAndReconcile(mctx, tenantID, rec, msg, open, suppliers, summary, log)

	now := time.Now().UTC()
	rec.ProcessedAt = &now
	if err := s.records.Update(mctx, rec); err != nil {
		log.WithError(err).Error("failed to persist record %d", rec.ID)
		summary.Errors++
	}
}

func (s *Service) classifyAndReconcile(
	ctx context.Context,
	tenantID uuid.UUID,
	rec *domain.IncomingEmailRecord,
	msg *out.NormalizedMessage,
	open []*domain.QuotationRequest,
	suppliers []*domain.Supplier,
	summary *portin.RunSummary,
	log *logger.Logger,
) {
	outcome, err := s.cascade.Classify(ctx, &classification.Input{
		Message:   msg,
		Open:      open,
		Suppliers: suppliers,
		LatestOpenProposal: func(ctx context.Context, supplierID int64) (*domain.SupplierProposal, error) {
			return s.proposals.LatestOpenBySupplier(ctx, tenantID, supplierID)
		},
	})
	if err != nil {
		rec.MarkError(err.Error())
		summary.Errors++
		log.WithError(err).Warn("classification failed for uid %d", msg.UID)
		return
	}

	rec.ApplyOutcome(outcome)

	switch {
	case outcome.Resolved():
		s.countMethod(outcome.Method, summary)
		s.extractAndReconcile(ctx, tenantID, rec, msg, summary, log)
	case outcome.QuotationOnly():
		summary.QuotationOnly++
		summary.Pending++
	default:
		summary.Pending++
	}
}

func (s *Service) extractAndReconcile(
	ctx context.Context,
	tenantID uuid.UUID,
	rec *domain.IncomingEmailRecord,
	msg *out.NormalizedMessage,
	summary *portin.RunSummary,
	log *logger.Logger,
) {
	payload, err := s.extractor.Extract(ctx, msg.Body, msg.AttachmentText)
	if err != nil {
		rec.MarkError(err.Error())
		summary.Errors++
		log.WithError(err).Warn("extraction failed for record %d", rec.ID)
		return
	}

	// the raw payload is stored on the record regardless of whether
	// reconciliation succeeds
	if raw, mErr := json.Marshal(payload); mErr == nil {
		rec.ExtractedPayload = raw
	}

	proposalID, err := s.reconciler.Reconcile(ctx, tenantID, *rec.QuotationID, *rec.SupplierID, payload)
	if err != nil {
		rec.MarkError(err.Error())
		summary.Errors++
		log.WithError(err).Warn("reconciliation failed for record %d", rec.ID)
		return
	}
	rec.ProposalID = &proposalID
}

func (s *Service) newRecord(tenantID uuid.UUID, msg *out.NormalizedMessage) *domain.IncomingEmailRecord {
	rec := &domain.IncomingEmailRecord{
		ID:          s.ids.MustGenerate(),
		TenantID:    tenantID,
		MailboxUID:  msg.UID,
		FromEmail:   msg.FromEmail,
		Subject:     msg.Subject,
		ReceivedAt:  msg.ReceivedAt,
		BodyExcerpt: truncateRunes(msg.Body, s.opts.BodyExcerptRunes),
		Status:      domain.StatusPending,
		Method:      domain.MethodNone,
	}
	if msg.FromName != "" {
		name := msg.FromName
		rec.FromName = &name
	}
	return rec
}

// archiveBody copies the full body to the audit store. Best-effort: a
// down audit store degrades to excerpt-only persistence.
func (s *Service) archiveBody(ctx context.Context, tenantID uuid.UUID, rec *domain.IncomingEmailRecord, msg *out.NormalizedMessage, log *logger.Logger) {
	if s.audit == nil {
		return
	}
	err := s.audit.SaveBody(ctx, &out.EmailAuditDocument{
		TenantID:       tenantID.String(),
		RecordID:       rec.ID,
		MailboxUID:     msg.UID,
		Body:           msg.Body,
		AttachmentText: msg.AttachmentText,
	})
	if err != nil {
		log.WithError(err).Warn("audit store write failed for record %d", rec.ID)
	}
}

func (s *Service) countMethod(m domain.ClassificationMethod, summary *portin.RunSummary) {
	switch m {
	case domain.MethodSubjectTag:
		summary.ClassifiedBySubject++
	case domain.MethodSenderRegistry:
		summary.ClassifiedBySender++
	case domain.MethodSemantic:
		summary.ClassifiedBySemantic++
	}
}

// Reclassify manually links a stored record and replays extraction and
// reconciliation against the full archived body.
func (s *Service) Reclassify(ctx context.Context, tenantID uuid.UUID, recordID int64, quotationID, supplierID int64) (*domain.IncomingEmailRecord, error) {
	rec, err := s.records.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == domain.StatusClassified {
		return nil, apperr.Conflict("record is already classified")
	}

	quotation, err := s.quotations.GetByID(ctx, tenantID, quotationID)
	if err != nil {
		return nil, err
	}
	if !quotation.Status.IsOpen() {
		return nil, apperr.BadRequest(fmt.Sprintf("quotation %s is not open", quotation.Number))
	}

	rec.Method = domain.MethodManual
	rec.QuotationID = &quotationID
	rec.SupplierID = &supplierID
	rec.Status = domain.StatusClassified
	rec.ErrorDetail = nil
	conf := 100
	rec.Confidence = &conf

	body, attachment := rec.BodyExcerpt, ""
	if s.audit != nil {
		if doc, aErr := s.audit.GetBody(ctx, tenantID, recordID); aErr == nil && doc != nil {
			body, attachment = doc.Body, doc.AttachmentText
		}
	}

	msg := &out.NormalizedMessage{
		UID:       rec.MailboxUID,
		FromEmail: rec.FromEmail,
		Subject:   rec.Subject,
		Body:      body, AttachmentText: attachment,
	}

	summary := &portin.RunSummary{TenantID: tenantID}
	s.extractAndReconcile(ctx, tenantID, rec, msg, summary, s.log.WithTenant(tenantID.String()))

	now := time.Now().UTC()
	rec.ProcessedAt = &now
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Ignore takes a record out of the triage queue. Classified records
// cannot be ignored; their proposal links are live.
func (s *Service) Ignore(ctx context.Context, tenantID uuid.UUID, recordID int64) (*domain.IncomingEmailRecord, error) {
	rec, err := s.records.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == domain.StatusClassified {
		return nil, apperr.Conflict("record is already classified")
	}

	rec.Status = domain.StatusIgnored
	rec.ErrorDetail = nil
	now := time.Now().UTC()
	rec.ProcessedAt = &now
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords pages the triage queue.
func (s *Service) ListRecords(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.records.ListByStatus(ctx, tenantID, status, limit, offset)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
