// Package pdftext turns PDF attachment bytes into best-effort text via
// an ordered chain of backends. Backend availability is decided once at
// construction; a malformed PDF never reaches the caller as an error.
package pdftext

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"mailroom_server/core/port/out"
	"mailroom_server/pkg/logger"
)

// Backend is one extraction strategy. Failure means empty text.
type Backend interface {
	Name() string
	Extract(data []byte) (string, error)
}

// Extractor implements out.PDFTextExtractor over an ordered backend
// chain; the first backend returning non-empty text wins.
type Extractor struct {
	backends []Backend
	log      *logger.Logger
}

var _ out.PDFTextExtractor = (*Extractor)(nil)

// NewExtractor probes the optional CLI backend once and fixes the
// chain: pure-Go reader first, pdftotext as the layout-aware fallback.
func NewExtractor(pdftotextPath string, log *logger.Logger) *Extractor {
	backends := []Backend{&pureGoBackend{}}

	if cli := newPdftotextBackend(pdftotextPath); cli != nil {
		backends = append(backends, cli)
	} else {
		log.Debug("pdftotext binary not found, using pure-Go backend only")
	}

	return &Extractor{backends: backends, log: log}
}

// Extract returns the first non-empty backend result. Empty text is
// "no attachment evidence", not an error.
func (e *Extractor) Extract(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	for _, b := range e.backends {
		text, err := b.Extract(data)
		if err != nil {
			e.log.WithError(err).Debug("pdf backend %s failed", b.Name())
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

// ---- pure-Go backend -------------------------------------------------------

type pureGoBackend struct{}

func (b *pureGoBackend) Name() string { return "ledongthuc" }

// Extract recovers from panics: the reader is known to panic on some
// malformed cross-reference tables.
func (b *pureGoBackend) Extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = nil
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ---- pdftotext CLI backend -------------------------------------------------

type pdftotextBackend struct {
	path string
}

// newPdftotextBackend returns nil when the binary is absent.
func newPdftotextBackend(path string) *pdftotextBackend {
	if path == "" {
		path = "pdftotext"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil
	}
	return &pdftotextBackend{path: resolved}
}

func (b *pdftotextBackend) Name() string { return "pdftotext" }

func (b *pdftotextBackend) Extract(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "mailroom-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	outPath := filepath.Join(os.TempDir(), filepath.Base(tmp.Name())+".txt")
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// -layout keeps table columns readable for the extractor
	cmd := exec.CommandContext(ctx, b.path, "-layout", tmp.Name(), outPath)
	if err := cmd.Run(); err != nil {
		return "", err
	}

	text, err := os.ReadFile(outPath)
	if err != nil {
		return "", err
	}
	return string(text), nil
}
