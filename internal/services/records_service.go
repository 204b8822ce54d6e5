package services

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/supabase"
)

var plainText = bluemonday.StrictPolicy()

// RecordsService persists contact form submissions and client run logs.
type RecordsService struct {
	sink RecordSink
	now  func() time.Time
}

func NewRecordsService(sink RecordSink) *RecordsService {
	return &RecordsService{sink: sink, now: time.Now}
}

func (s *RecordsService) SubmitContact(ctx context.Context, req models.ContactRequest) (string, error) {
	msg := models.ContactMessage{
		ID:        uuid.New(),
		Name:      stripMarkup(req.Name),
		Email:     supabase.NormalizeEmail(req.Email),
		Message:   stripMarkup(req.Message),
		CreatedAt: s.now().UTC(),
	}
	if msg.Name == "" || msg.Message == "" {
		return "", apperror.Validation("name and message must contain text")
	}

	if err := s.sink.InsertContactMessage(ctx, msg); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "failed to save message")
	}
	logger.Log.WithFields(logrus.Fields{"id": msg.ID, "email": msg.Email}).Info("Contact message saved")
	return msg.ID.String(), nil
}

func (s *RecordsService) LogRun(ctx context.Context, req models.LogRunRequest) (string, error) {
	run := models.RunLog{
		ID:         uuid.New(),
		Email:      supabase.NormalizeEmail(req.Email),
		Context:    req.Context,
		ImageURL:   req.ImageURL,
		LineArtURL: req.LineArtURL,
		Status:     req.Status,
		DurationMS: req.DurationMS,
		Detail:     stripMarkup(req.Detail),
		CreatedAt:  s.now().UTC(),
	}

	if err := s.sink.InsertRun(ctx, run); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "failed to save run")
	}
	return run.ID.String(), nil
}

func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}
