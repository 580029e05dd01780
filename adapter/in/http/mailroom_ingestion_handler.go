// Package http holds the fiber handlers for the ingestion trigger
// surface. All routes are tenant-scoped: the tenant comes from the
// service JWT, never from the request body.
package http

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mailroom_server/core/domain"
	in "mailroom_server/core/port/in"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/crypto"
	"mailroom_server/pkg/response"
)

// IngestionHandler exposes run, triage and scheduler operations.
type IngestionHandler struct {
	service   in.IngestionService
	scheduler in.SchedulerControl
	settings  out.SettingsRepository
	enc       *crypto.Encryptor
}

func NewIngestionHandler(service in.IngestionService, scheduler in.SchedulerControl, settings out.SettingsRepository, enc *crypto.Encryptor) *IngestionHandler {
	return &IngestionHandler{
		service:   service,
		scheduler: scheduler,
		settings:  settings,
		enc:       enc,
	}
}

// Register registers ingestion routes.
func (h *IngestionHandler) Register(router fiber.Router) {
	ingestion := router.Group("/ingestion")

	ingestion.Post("/run", h.Run)

	ingestion.Get("/records", h.ListRecords)
	ingestion.Post("/records/:id/reclassify", h.Reclassify)
	ingestion.Post("/records/:id/ignore", h.Ignore)

	ingestion.Get("/scheduler", h.SchedulerStatus)
	ingestion.Post("/scheduler", h.SchedulerAction)

	ingestion.Get("/settings", h.GetSettings)
	ingestion.Put("/settings", h.UpsertSettings)
}

// Run triggers a synchronous sweep of the tenant's mailbox.
func (h *IngestionHandler) Run(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	var req struct {
		LookbackDays int `json:"lookback_days"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.Error(c, apperr.BadRequest("invalid request body"))
		}
	}
	if req.LookbackDays < 0 || req.LookbackDays > 90 {
		return response.Error(c, apperr.InvalidInput("lookback_days", "must be between 0 and 90"))
	}

	summary, err := h.service.Run(c.Context(), tenantID, req.LookbackDays)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, summary)
}

// ListRecords pages the triage queue, optionally filtered by status.
func (h *IngestionHandler) ListRecords(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	status := domain.ClassificationStatus(c.Query("status", string(domain.StatusPending)))
	switch status {
	case domain.StatusPending, domain.StatusClassified, domain.StatusIgnored, domain.StatusError:
	default:
		return response.Error(c, apperr.InvalidInput("status", "unknown classification status"))
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	records, total, err := h.service.ListRecords(c.Context(), tenantID, status, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.Map{
		"records": toRecordResponses(records),
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Reclassify manually links a record to a quotation/supplier pair and
// replays extraction.
func (h *IngestionHandler) Reclassify(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	recordID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return response.Error(c, apperr.InvalidInput("id", "must be an integer record id"))
	}

	var req struct {
		QuotationID int64 `json:"quotation_id"`
		SupplierID  int64 `json:"supplier_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, apperr.BadRequest("invalid request body"))
	}
	if req.QuotationID == 0 {
		return response.Error(c, apperr.MissingField("quotation_id"))
	}
	if req.SupplierID == 0 {
		return response.Error(c, apperr.MissingField("supplier_id"))
	}

	rec, err := h.service.Reclassify(c.Context(), tenantID, recordID, req.QuotationID, req.SupplierID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, toRecordResponse(rec))
}

// Ignore drops a record out of the triage queue.
func (h *IngestionHandler) Ignore(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	recordID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return response.Error(c, apperr.InvalidInput("id", "must be an integer record id"))
	}

	rec, err := h.service.Ignore(c.Context(), tenantID, recordID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, toRecordResponse(rec))
}

// SchedulerStatus reports the periodic sweep loop state.
func (h *IngestionHandler) SchedulerStatus(c *fiber.Ctx) error {
	if h.scheduler == nil {
		return response.Error(c, apperr.CapabilityUnavailable("scheduler"))
	}
	return response.OK(c, h.scheduler.Status())
}

// SchedulerAction starts or stops the periodic sweep loop.
func (h *IngestionHandler) SchedulerAction(c *fiber.Ctx) error {
	if h.scheduler == nil {
		return response.Error(c, apperr.CapabilityUnavailable("scheduler"))
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, apperr.BadRequest("invalid request body"))
	}

	switch req.Action {
	case "start":
		if err := h.scheduler.Start(); err != nil {
			return response.Error(c, err)
		}
	case "stop":
		if err := h.scheduler.Stop(); err != nil {
			return response.Error(c, err)
		}
	default:
		return response.Error(c, apperr.InvalidInput("action", `must be "start" or "stop"`))
	}

	return response.OK(c, h.scheduler.Status())
}

// GetSettings returns the tenant's mailbox connection, secret omitted.
func (h *IngestionHandler) GetSettings(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	settings, err := h.settings.GetByTenant(c.Context(), tenantID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, toSettingsResponse(settings))
}

// UpsertSettings stores or replaces the tenant's mailbox connection.
// The IMAP secret is encrypted before it touches the database.
func (h *IngestionHandler) UpsertSettings(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(uuid.UUID)

	var req struct {
		Host    string `json:"host"`
		Port    int    `json:"port"`
		Address string `json:"address"`
		Secret  string `json:"secret"`
		Folder  string `json:"folder"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, apperr.BadRequest("invalid request body"))
	}
	if req.Host == "" {
		return response.Error(c, apperr.MissingField("host"))
	}
	if req.Address == "" {
		return response.Error(c, apperr.MissingField("address"))
	}

	settings := &domain.MailboxSettings{
		TenantID: tenantID,
		Host:     req.Host,
		Port:     req.Port,
		Address:  req.Address,
		Folder:   req.Folder,
		Enabled:  req.Enabled,
	}

	if req.Secret != "" {
		encrypted, err := h.enc.Encrypt(req.Secret)
		if err != nil {
			return response.Error(c, apperr.InternalWithError(err))
		}
		settings.EncryptedSecret = encrypted
	} else {
		// keep the stored secret on partial updates
		existing, err := h.settings.GetByTenant(c.Context(), tenantID)
		if err == nil {
			settings.EncryptedSecret = existing.EncryptedSecret
		} else if !apperr.IsCode(err, apperr.CodeNotFound) {
			return response.Error(c, err)
		}
	}

	if err := h.settings.Upsert(c.Context(), settings); err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, toSettingsResponse(settings))
}

// =============================================================================
// Response Types
// =============================================================================

type RecordResponse struct {
	ID          int64   `json:"id"`
	MailboxUID  uint32  `json:"mailbox_uid"`
	FromEmail   string  `json:"from_email"`
	FromName    *string `json:"from_name,omitempty"`
	Subject     string  `json:"subject"`
	ReceivedAt  string  `json:"received_at"`
	BodyExcerpt string  `json:"body_excerpt"`

	Status     string `json:"status"`
	Method     string `json:"method"`
	Confidence *int   `json:"confidence,omitempty"`

	QuotationID *int64 `json:"quotation_id,omitempty"`
	SupplierID  *int64 `json:"supplier_id,omitempty"`
	ProposalID  *int64 `json:"proposal_id,omitempty"`

	ExtractedPayload json.RawMessage `json:"extracted_payload,omitempty"`
	ErrorDetail      *string         `json:"error_detail,omitempty"`
	ProcessedAt      *string         `json:"processed_at,omitempty"`
	CreatedAt        string          `json:"created_at"`
}

type SettingsResponse struct {
	TenantID string `json:"tenant_id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Address  string `json:"address"`
	Folder   string `json:"folder,omitempty"`
	Enabled  bool   `json:"enabled"`
}

func toRecordResponse(r *domain.IncomingEmailRecord) RecordResponse {
	resp := RecordResponse{
		ID:          r.ID,
		MailboxUID:  r.MailboxUID,
		FromEmail:   r.FromEmail,
		FromName:    r.FromName,
		Subject:     r.Subject,
		ReceivedAt:  r.ReceivedAt.Format(time.RFC3339),
		BodyExcerpt: r.BodyExcerpt,
		Status:      string(r.Status),
		Method:      string(r.Method),
		Confidence:  r.Confidence,
		QuotationID: r.QuotationID,
		SupplierID:  r.SupplierID,
		ProposalID:  r.ProposalID,
		ErrorDetail: r.ErrorDetail,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}

	if len(r.ExtractedPayload) > 0 {
		resp.ExtractedPayload = json.RawMessage(r.ExtractedPayload)
	}
	if r.ProcessedAt != nil {
		formatted := r.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &formatted
	}
	return resp
}

func toRecordResponses(records []*domain.IncomingEmailRecord) []RecordResponse {
	responses := make([]RecordResponse, len(records))
	for i, r := range records {
		responses[i] = toRecordResponse(r)
	}
	return responses
}

func toSettingsResponse(s *domain.MailboxSettings) SettingsResponse {
	return SettingsResponse{
		TenantID: s.TenantID.String(),
		Host:     s.Host,
		Port:     s.Port,
		Address:  s.Address,
		Folder:   s.Folder,
		Enabled:  s.Enabled,
	}
}
