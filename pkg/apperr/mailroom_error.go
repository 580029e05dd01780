package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Pipeline errors
	CodeTransportError        = "TRANSPORT_ERROR"
	CodeParseError            = "PARSE_ERROR"
	CodeCapabilityUnavailable = "CAPABILITY_UNAVAILABLE"
	CodeCapabilityError       = "CAPABILITY_ERROR"
	CodeReconcileTargetMissing = "RECONCILE_TARGET_MISSING"
	CodeDuplicateMessage      = "DUPLICATE_MESSAGE"
	CodeRunInProgress         = "RUN_IN_PROGRESS"

	// Internal errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// Pipeline errors

// Transport wraps a mailbox connection/auth failure. Aborts the tenant's
// run; retried on the next scheduled tick.
func Transport(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeTransportError,
		Message: fmt.Sprintf("mailbox transport failure: %s", operation),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// Parse marks a malformed message or attachment. Degrades to empty text.
func Parse(what string, err error) *AppError {
	return &AppError{
		Code:    CodeParseError,
		Message: fmt.Sprintf("failed to parse %s", what),
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

// CapabilityUnavailable marks a semantic capability with no configured
// credentials. Reduced-capability mode, not a failure.
func CapabilityUnavailable(capability string) *AppError {
	return &AppError{
		Code:    CodeCapabilityUnavailable,
		Message: fmt.Sprintf("capability not configured: %s", capability),
		Status:  http.StatusServiceUnavailable,
	}
}

// CapabilityError wraps a failed or timed-out semantic call.
func CapabilityError(capability string, err error) *AppError {
	return &AppError{
		Code:    CodeCapabilityError,
		Message: fmt.Sprintf("capability call failed: %s", capability),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// ReconcileTargetMissing marks reconciliation against a quotation/supplier
// pair with no existing proposal row.
func ReconcileTargetMissing(quotationID, supplierID int64) *AppError {
	return &AppError{
		Code:    CodeReconcileTargetMissing,
		Message: "no proposal exists for quotation/supplier pair",
		Status:  http.StatusUnprocessableEntity,
		Details: map[string]any{"quotation_id": quotationID, "supplier_id": supplierID},
	}
}

// DuplicateMessage marks a mailbox UID already recorded for the tenant.
func DuplicateMessage(uid uint32) *AppError {
	return &AppError{
		Code:    CodeDuplicateMessage,
		Message: "message already recorded",
		Status:  http.StatusConflict,
		Details: map[string]any{"mailbox_uid": uid},
	}
}

// RunInProgress marks an ingestion run that could not acquire the
// per-tenant lock.
func RunInProgress(tenantID string) *AppError {
	return &AppError{
		Code:    CodeRunInProgress,
		Message: "ingestion already running for tenant",
		Status:  http.StatusConflict,
		Details: map[string]any{"tenant_id": tenantID},
	}
}

// Internal errors
func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
