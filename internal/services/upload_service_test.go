package services_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

var uploadPathPattern = regexp.MustCompile(`^uploads/\d{8}/[0-9a-f-]{36}\.png$`)

func newUploadService() (*services.UploadService, *blob.TokenSigner, *blob.MemoryStore) {
	store := blob.NewMemoryStore(testBaseURL)
	signer := blob.NewTokenSigner("secret", 10*time.Minute)
	return services.NewUploadService(store, signer, testBaseURL, 1024*1024, nil), signer, store
}

func TestIssueTarget(t *testing.T) {
	svc, signer, _ := newUploadService()

	resp, err := svc.IssueTarget(models.UploadTargetRequest{ContentType: "image/png", Size: 2048})
	require.NoError(t, err)
	assert.Regexp(t, uploadPathPattern, resp.Pathname)
	assert.True(t, strings.HasPrefix(resp.UploadURL, testBaseURL+"/api/blob/"+resp.Pathname+"?token="))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), resp.ExpiresAt, 5*time.Second)

	claims, err := signer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Pathname, claims.Pathname)
	assert.EqualValues(t, 1024*1024, claims.MaxBytes)
}

func TestIssueTarget_Rejects(t *testing.T) {
	svc, _, _ := newUploadService()

	_, err := svc.IssueTarget(models.UploadTargetRequest{ContentType: "image/gif"})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	_, err = svc.IssueTarget(models.UploadTargetRequest{ContentType: "image/jpeg", Size: 2 * 1024 * 1024})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)
}

func TestAccept_TokenIsReusableUntilExpiry(t *testing.T) {
	svc, signer, store := newUploadService()
	ctx := context.Background()

	target, err := svc.IssueTarget(models.UploadTargetRequest{ContentType: "image/png"})
	require.NoError(t, err)
	claims, err := signer.Verify(target.Token)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, claims, twoTonePNG(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	second := buf.Bytes()

	_, err = svc.Accept(ctx, claims, second)
	require.NoError(t, err)

	stored, err := store.Get(ctx, target.Pathname)
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestAccept(t *testing.T) {
	svc, _, store := newUploadService()
	ctx := context.Background()
	claims := &blob.UploadClaims{Pathname: "uploads/20250101/x.png", ContentType: "image/png", MaxBytes: 1024 * 1024}

	resp, err := svc.Accept(ctx, claims, twoTonePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Equal(t, store.PublicURL(claims.Pathname), resp.URL)

	_, err = svc.Accept(ctx, claims, []byte("<html>not an image</html>"))
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)

	small := &blob.UploadClaims{Pathname: claims.Pathname, MaxBytes: 10}
	_, err = svc.Accept(ctx, small, twoTonePNG(t))
	assert.Equal(t, apperror.ErrCodePayloadTooLarge, apperror.As(err).Code)
}
