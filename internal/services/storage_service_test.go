package services_test

import (
	"context"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

func newStorageService() (*services.StorageService, *blob.MemoryStore, *services.MemoryStore, *background.Runner) {
	store := blob.NewMemoryStore(testBaseURL)
	records := services.NewMemoryStore()
	runner := background.NewRunner(nil)
	return services.NewStorageService(store, records, runner), store, records, runner
}

func TestUploadPDF(t *testing.T) {
	svc, store, _, _ := newStorageService()
	ctx := context.Background()

	resp, err := svc.UploadPDF(ctx, models.UploadPDFRequest{PDFBase64: base64.StdEncoding.EncodeToString([]byte(minimalPDF))})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^pdfs/\d{8}/[0-9a-f-]{36}\.pdf$`), resp.Pathname)

	data, err := store.Get(ctx, resp.Pathname)
	require.NoError(t, err)
	assert.Equal(t, []byte(minimalPDF), data)
}

func TestDeleteAsset(t *testing.T) {
	svc, store, _, _ := newStorageService()
	ctx := context.Background()
	obj, err := store.Put(ctx, "line-art/20250101/a.png", []byte("x"), "image/png")
	require.NoError(t, err)
	_, err = store.Put(ctx, blob.EmailLogPath, []byte("log"), "text/csv")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAsset(ctx, models.DeleteAssetRequest{URL: obj.URL}))
	_, err = store.Get(ctx, obj.Pathname)
	assert.True(t, apperror.IsNotFound(err))

	err = svc.DeleteAsset(ctx, models.DeleteAssetRequest{Pathname: blob.EmailLogPath})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	err = svc.DeleteAsset(ctx, models.DeleteAssetRequest{Pathname: "../uploads/x.png"})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	err = svc.DeleteAsset(ctx, models.DeleteAssetRequest{URL: "https://elsewhere.example.com/uploads/a.png"})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	err = svc.DeleteAsset(ctx, models.DeleteAssetRequest{})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)
}

func TestDownloadTarget_RecordsDownload(t *testing.T) {
	svc, store, records, runner := newStorageService()
	url := store.PublicURL("pdfs/20250101/book.pdf")

	target, err := svc.DownloadTarget(url, "Reader@Example.com", "")
	require.NoError(t, err)
	assert.Equal(t, url, target)
	waitRunner(t, runner)

	downloads := records.Downloads()
	require.Len(t, downloads, 1)
	assert.Equal(t, "reader@example.com", downloads[0].Email)
	assert.Equal(t, "pdf", downloads[0].Kind)

	_, err = svc.DownloadTarget("https://evil.example.com/phish", "", "")
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)
}
