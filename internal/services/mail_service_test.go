package services_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

func waitRunner(t *testing.T, r *background.Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestSendPDF_SendsAndAppendsAudit(t *testing.T) {
	store := blob.NewMemoryStore(testBaseURL)
	m := &fakeMailer{configured: true}
	runner := background.NewRunner(nil)
	svc := services.NewMailService(m, store, runner)
	ctx := context.Background()
	encoded := base64.StdEncoding.EncodeToString([]byte(minimalPDF))

	resp, err := svc.SendPDF(ctx, models.SendPDFRequest{Email: "Reader@Example.com", PDFBase64: encoded, FileName: "trip"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, resp.Status)
	assert.Equal(t, "msg-1", resp.ID)
	waitRunner(t, runner)

	_, err = svc.SendPDF(ctx, models.SendPDFRequest{Email: "second@example.com", PDFBase64: "data:application/pdf;base64," + encoded})
	require.NoError(t, err)
	waitRunner(t, runner)

	require.Len(t, m.sent, 2)
	assert.Equal(t, []string{"reader@example.com"}, m.sent[0].To)
	assert.Equal(t, "trip.pdf", m.sent[0].Attachments[0].FileName)
	assert.Equal(t, []byte(minimalPDF), m.sent[0].Attachments[0].Content)

	log, err := store.Get(ctx, blob.EmailLogPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(log)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,email,file_name,message_id", lines[0])
	assert.Contains(t, lines[1], ",reader@example.com,trip.pdf,msg-1")
	assert.Contains(t, lines[2], ",second@example.com,coloring-book.pdf,msg-1")
}

func TestSendPDF_Errors(t *testing.T) {
	store := blob.NewMemoryStore(testBaseURL)
	runner := background.NewRunner(nil)
	ctx := context.Background()
	valid := base64.StdEncoding.EncodeToString([]byte(minimalPDF))

	_, err := services.NewMailService(&fakeMailer{}, store, runner).
		SendPDF(ctx, models.SendPDFRequest{Email: "a@example.com", PDFBase64: valid})
	assert.True(t, apperror.IsMisconfigured(err))

	svc := services.NewMailService(&fakeMailer{configured: true}, store, runner)
	_, err = svc.SendPDF(ctx, models.SendPDFRequest{Email: "a@example.com", PDFBase64: "%%%"})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	notPDF := base64.StdEncoding.EncodeToString(twoTonePNG(t))
	_, err = svc.SendPDF(ctx, models.SendPDFRequest{Email: "a@example.com", PDFBase64: notPDF})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	failing := services.NewMailService(&fakeMailer{configured: true, err: errors.New("boom")}, store, runner)
	_, err = failing.SendPDF(ctx, models.SendPDFRequest{Email: "a@example.com", PDFBase64: valid})
	assert.Equal(t, apperror.ErrCodeUpstream, apperror.As(err).Code)

	waitRunner(t, runner)
	_, err = store.Get(ctx, blob.EmailLogPath)
	assert.True(t, apperror.IsNotFound(err))
}
