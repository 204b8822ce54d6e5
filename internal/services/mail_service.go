package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/imageproc"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/mailer"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/supabase"
)

const (
	maxPDFBytes     = 15 * 1024 * 1024
	defaultPDFName  = "coloring-book.pdf"
	defaultSubject  = "Your PhotoLineArt coloring book"
	pdfContentType  = "application/pdf"
	csvContentType  = "text/csv"
	emailLogColumns = "timestamp,email,file_name,message_id"
)

type MailService struct {
	mailer Mailer
	store  blob.Store
	runner *background.Runner
	now    func() time.Time

	// auditMu serializes read-append-write cycles on the audit log.
	auditMu sync.Mutex
}

func NewMailService(m Mailer, store blob.Store, runner *background.Runner) *MailService {
	return &MailService{mailer: m, store: store, runner: runner, now: time.Now}
}

// SendPDF emails the decoded PDF as an attachment and records the delivery
// in the CSV audit log in the background.
func (s *MailService) SendPDF(ctx context.Context, req models.SendPDFRequest) (*models.SendPDFResponse, error) {
	if s.mailer == nil || !s.mailer.Configured() {
		return nil, apperror.Misconfigured("RESEND_API_KEY")
	}

	pdf, err := DecodePDF(req.PDFBase64)
	if err != nil {
		return nil, err
	}

	fileName := pdfFileName(req.FileName)
	subject := req.Subject
	if subject == "" {
		subject = defaultSubject
	}
	email := supabase.NormalizeEmail(req.Email)

	id, err := s.mailer.Send(ctx, mailer.Message{
		To:          []string{email},
		Subject:     subject,
		Text:        "Your coloring book is attached. Happy coloring!",
		HTML:        "<p>Your coloring book is attached. Happy coloring!</p>",
		Attachments: []mailer.Attachment{{FileName: fileName, Content: pdf}},
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUpstream, "failed to send email")
	}

	sentAt := s.now().UTC()
	s.runner.Go("email_audit", logrus.Fields{"email": email}, func(ctx context.Context) error {
		return s.appendAudit(ctx, sentAt, email, fileName, id)
	})

	logger.Log.WithFields(logrus.Fields{"email": email, "message_id": id}).Info("PDF emailed")
	return &models.SendPDFResponse{Status: models.StatusOK, ID: id}, nil
}

func (s *MailService) appendAudit(ctx context.Context, sentAt time.Time, email, fileName, messageID string) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	existing, err := s.store.Get(ctx, blob.EmailLogPath)
	if err != nil && !apperror.IsNotFound(err) {
		return fmt.Errorf("failed to read email log: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) == 0 {
		buf.WriteString(emailLogColumns + "\n")
	} else {
		buf.Write(existing)
		if !bytes.HasSuffix(existing, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{sentAt.Format(time.RFC3339), email, fileName, messageID}); err != nil {
		return fmt.Errorf("failed to encode email log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode email log row: %w", err)
	}

	if _, err := s.store.Put(ctx, blob.EmailLogPath, buf.Bytes(), csvContentType); err != nil {
		return fmt.Errorf("failed to write email log: %w", err)
	}
	return nil
}

// DecodePDF decodes a base64 PDF, with or without a data URI prefix, and
// checks that the bytes really are a PDF.
func DecodePDF(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxPDFBytes+3 {
		return nil, apperror.New(apperror.ErrCodePayloadTooLarge, "pdf is too large")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperror.Validation("pdfBase64 is not valid base64")
	}
	if len(data) > maxPDFBytes {
		return nil, apperror.New(apperror.ErrCodePayloadTooLarge, "pdf is too large")
	}
	if ct, err := imageproc.DetectContentType(data); err != nil || ct != pdfContentType {
		return nil, apperror.Validation("pdfBase64 does not contain a PDF")
	}
	return data, nil
}

func pdfFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultPDFName
	}
	name = strings.NewReplacer("/", "-", "\\", "-", "\"", "").Replace(name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
