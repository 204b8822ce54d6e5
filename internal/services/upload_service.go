package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/imageproc"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/metrics"
	"photolineart-backend/internal/models"
)

// UploadService issues signed upload targets and accepts the bytes sent to
// them.
type UploadService struct {
	store    blob.Store
	signer   *blob.TokenSigner
	baseURL  string
	maxBytes int64
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewUploadService(store blob.Store, signer *blob.TokenSigner, baseURL string, maxBytes int64, m *metrics.Collector) *UploadService {
	return &UploadService{
		store:    store,
		signer:   signer,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		maxBytes: maxBytes,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// IssueTarget reserves a date-partitioned pathname and signs a short-lived
// token that authorizes PUTs to that pathname only. The token is not
// single-use: until it expires, a second PUT overwrites the first.
func (s *UploadService) IssueTarget(req models.UploadTargetRequest) (*models.UploadTargetResponse, error) {
	if !blob.IsAllowedUploadType(req.ContentType) {
		return nil, apperror.Validation("contentType must be one of " + strings.Join(blob.AllowedUploadTypes, ", "))
	}
	if req.Size > s.maxBytes {
		return nil, apperror.Validation(fmt.Sprintf("size exceeds the %d byte limit", s.maxBytes))
	}

	ext, _ := blob.ExtensionFor(req.ContentType)
	pathname := blob.UploadPath(s.now(), ext)

	token, expiresAt, err := s.signer.Sign(pathname, req.ContentType, s.maxBytes)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to sign upload target")
	}

	return &models.UploadTargetResponse{
		UploadURL: s.baseURL + "/api/blob/" + pathname + "?token=" + token,
		Pathname:  pathname,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Accept stores the bytes of a verified upload. The sniffed content type must
// be an allowed image type; it wins over the declared one.
func (s *UploadService) Accept(ctx context.Context, claims *blob.UploadClaims, data []byte) (*models.BlobPutResponse, error) {
	if len(data) == 0 {
		return nil, apperror.Validation("upload body is empty")
	}
	if int64(len(data)) > claims.MaxBytes {
		return nil, apperror.New(apperror.ErrCodePayloadTooLarge, fmt.Sprintf("upload exceeds the %d byte limit", claims.MaxBytes))
	}

	contentType, err := imageproc.DetectContentType(data)
	if err != nil || !blob.IsAllowedUploadType(contentType) {
		return nil, apperror.Validation("upload is not an allowed image type")
	}

	obj, err := s.store.Put(ctx, claims.Pathname, data, contentType)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to store upload")
	}
	s.metrics.RecordUpload(contentType)

	logger.Log.WithFields(logrus.Fields{
		"pathname":     obj.Pathname,
		"content_type": contentType,
		"size":         len(data),
	}).Info("Upload stored")

	return &models.BlobPutResponse{
		URL:         obj.URL,
		Pathname:    obj.Pathname,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}
