package pdftext

import (
	"testing"

	"mailroom_server/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

func TestExtractEmptyInput(t *testing.T) {
	e := NewExtractor("", testLogger())
	if got := e.Extract(nil); got != "" {
		t.Errorf("expected empty text for nil input, got %q", got)
	}
}

func TestExtractMalformedPDFIsNotAnError(t *testing.T) {
	e := NewExtractor("", testLogger())

	// garbage bytes: every backend must fail quietly
	if got := e.Extract([]byte("this is not a pdf at all")); got != "" {
		t.Errorf("expected empty text for malformed input, got %q", got)
	}
}

func TestPureGoBackendRecoversFromPanic(t *testing.T) {
	b := &pureGoBackend{}

	// truncated header is enough to drive the reader into error paths
	text, err := b.Extract([]byte("%PDF-1.7\ngarbage"))
	if err == nil && text != "" {
		t.Errorf("expected failure for truncated pdf, got %q", text)
	}
}

func TestMissingCLIBackendIsSkipped(t *testing.T) {
	if b := newPdftotextBackend("/nonexistent/pdftotext-binary"); b != nil {
		t.Error("absent binary must yield a nil backend")
	}
}
