// Package mailbox implements the read-only IMAP provider. Sessions are
// strictly polling: SEARCH SINCE over the lookback window, fetch, parse,
// logout. No flags are set and nothing is deleted on the server.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	charset "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/logger"
)

const (
	bodyPartMaxBytes  = 1 * 1024 * 1024  // per text part
	attachmentMaxSize = 25 * 1024 * 1024 // per PDF attachment
	dialTimeout       = 30 * time.Second
)

// IMAPAdapter implements out.MailboxProvider.
type IMAPAdapter struct {
	pdf out.PDFTextExtractor
	log *logger.Logger
}

var _ out.MailboxProvider = (*IMAPAdapter)(nil)

func NewIMAPAdapter(pdf out.PDFTextExtractor, log *logger.Logger) *IMAPAdapter {
	return &IMAPAdapter{pdf: pdf, log: log}
}

// Fetch lists messages received since the given date and normalizes
// each one. On a mid-stream transport failure the messages already
// normalized are returned together with the error, so partial progress
// is never lost. The whole session is bounded: the dial has its own
// timeout, and any deadline on ctx is pushed onto the connection so a
// hung server fails the pending command instead of stalling the run.
func (a *IMAPAdapter) Fetch(ctx context.Context, settings *domain.MailboxSettings, secret string, since time.Time) ([]out.NormalizedMessage, error) {
	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	cl, err := a.dial(ctx, settings.ServerAddr(), opts)
	if err != nil {
		return nil, apperr.Transport("dial", err)
	}
	defer func() {
		_ = cl.Logout().Wait()
	}()

	if err := cl.Login(settings.Address, secret).Wait(); err != nil {
		return nil, apperr.Transport("login", err)
	}

	folder := settings.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := cl.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, apperr.Transport("select "+folder, err)
	}

	criteria := &imap.SearchCriteria{Since: since}
	searchData, err := cl.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, apperr.Transport("search", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	return a.fetchMessages(ctx, cl, uids)
}

// dial opens the TLS session with a bounded connect and, when the
// caller's context carries a deadline, a matching I/O deadline on the
// connection itself.
func (a *IMAPAdapter) dial(ctx context.Context, addr string, opts *imapclient.Options) (*imapclient.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		dialer.Deadline = deadline
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return nil, err
	}
	if hasDeadline {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return imapclient.New(conn, opts), nil
}

func (a *IMAPAdapter) fetchMessages(ctx context.Context, cl *imapclient.Client, uids []imap.UID) ([]out.NormalizedMessage, error) {
	fetchSet := imap.UIDSetNum(uids...)
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := cl.Fetch(fetchSet, fetchOptions)
	defer fetchCmd.Close()

	var messages []out.NormalizedMessage
	for {
		if err := ctx.Err(); err != nil {
			return messages, apperr.Transport("fetch", err)
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		msg, err := a.parseMessage(msgData)
		if err != nil {
			// malformed message degrades, never aborts
			a.log.WithError(err).Warn("failed to parse message, skipping")
			continue
		}
		if msg != nil {
			messages = append(messages, *msg)
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, apperr.Transport("fetch", err)
	}
	return messages, nil
}

// parseMessage drains one fetch response into a normalized record. The
// body literal must be consumed inline: the protocol parser blocks
// until the literal is read.
func (a *IMAPAdapter) parseMessage(msgData *imapclient.FetchMessageData) (*out.NormalizedMessage, error) {
	var (
		envelope       *imap.Envelope
		uid            imap.UID
		body           string
		attachmentText string
	)

	for {
		item := msgData.Next()
		if item == nil {
			break
		}
		switch i := item.(type) {
		case imapclient.FetchItemDataEnvelope:
			envelope = i.Envelope
		case imapclient.FetchItemDataUID:
			uid = i.UID
		case imapclient.FetchItemDataBodySection:
			if i.Literal == nil {
				continue
			}
			body, attachmentText = a.parseBody(i.Literal)
		}
	}

	if envelope == nil {
		return nil, fmt.Errorf("message %d carried no envelope", uid)
	}

	msg := &out.NormalizedMessage{
		UID:            uint32(uid),
		Subject:        envelope.Subject,
		ReceivedAt:     envelope.Date,
		Body:           body,
		AttachmentText: attachmentText,
	}

	if len(envelope.From) > 0 {
		from := envelope.From[0]
		if from.Mailbox != "" {
			msg.FromEmail = strings.ToLower(fmt.Sprintf("%s@%s", from.Mailbox, from.Host))
		}
		msg.FromName = from.Name
	}
	if msg.FromEmail == "" {
		return nil, fmt.Errorf("message %d carried no sender address", uid)
	}

	return msg, nil
}

// parseBody walks the MIME tree: text/plain parts build the body,
// text/html is the tag-stripped fallback, PDF attachments feed the
// text extractor. Everything else is discarded.
func (a *IMAPAdapter) parseBody(literal imap.LiteralReader) (body, attachmentText string) {
	mr, err := mail.CreateReader(literal)
	if err != nil {
		a.log.WithError(err).Debug("failed to open mail reader")
		return "", ""
	}
	defer mr.Close()

	var textParts, htmlParts, pdfTexts []string

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.log.WithError(err).Debug("failed to read mail part")
			continue
		}

		switch h := p.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ctype, _, _ := h.ContentType()
			if !isPDFAttachment(filename, ctype) {
				_, _ = io.Copy(io.Discard, p.Body)
				continue
			}

			data, err := io.ReadAll(io.LimitReader(p.Body, attachmentMaxSize))
			if err != nil {
				a.log.WithError(err).Debug("failed to read pdf attachment %s", filename)
				continue
			}
			if text := a.pdf.Extract(data); text != "" {
				pdfTexts = append(pdfTexts, fmt.Sprintf("--- %s ---\n%s", filename, text))
			}

		case *mail.InlineHeader:
			ctype, _, _ := h.ContentType()
			data, err := io.ReadAll(io.LimitReader(p.Body, bodyPartMaxBytes))
			if err != nil || len(data) == 0 {
				continue
			}
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}

			switch {
			case strings.HasPrefix(ctype, "text/plain"):
				textParts = append(textParts, text)
			case strings.HasPrefix(ctype, "text/html"):
				htmlParts = append(htmlParts, text)
			}
		}
	}

	// plain text wins; html only when no plain part exists
	if len(textParts) > 0 {
		body = strings.Join(textParts, "\n\n")
	} else if len(htmlParts) > 0 {
		body = StripHTML(strings.Join(htmlParts, "\n\n"))
	}

	return body, strings.Join(pdfTexts, "\n\n")
}

func isPDFAttachment(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}
