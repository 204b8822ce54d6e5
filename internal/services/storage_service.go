package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/supabase"
)

const defaultDownloadKind = "pdf"

// StorageService handles stored assets on behalf of clients: PDF uploads,
// deletions and tracked downloads.
type StorageService struct {
	store     blob.Store
	downloads DownloadRecorder
	runner    *background.Runner
	now       func() time.Time
}

func NewStorageService(store blob.Store, downloads DownloadRecorder, runner *background.Runner) *StorageService {
	return &StorageService{store: store, downloads: downloads, runner: runner, now: time.Now}
}

func (s *StorageService) UploadPDF(ctx context.Context, req models.UploadPDFRequest) (*models.UploadPDFResponse, error) {
	pdf, err := DecodePDF(req.PDFBase64)
	if err != nil {
		return nil, err
	}

	obj, err := s.store.Put(ctx, blob.PDFPath(s.now()), pdf, pdfContentType)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to store pdf")
	}

	logger.Log.WithFields(logrus.Fields{"pathname": obj.Pathname, "size": len(pdf)}).Info("PDF stored")
	return &models.UploadPDFResponse{URL: obj.URL, Pathname: obj.Pathname}, nil
}

// DeleteAsset removes one blob identified by URL or pathname. Only paths
// under the prefixes this service manages may be deleted.
func (s *StorageService) DeleteAsset(ctx context.Context, req models.DeleteAssetRequest) error {
	pathname, err := s.resolveManaged(req.URL, req.Pathname)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, pathname); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "failed to delete asset")
	}
	logger.Log.WithField("pathname", pathname).Info("Asset deleted")
	return nil
}

// DownloadTarget validates that rawURL points at one of our assets and
// records the download in the background. The caller redirects to the
// returned URL.
func (s *StorageService) DownloadTarget(rawURL, email, kind string) (string, error) {
	if _, err := s.resolveManaged(rawURL, ""); err != nil {
		return "", err
	}
	if kind == "" {
		kind = defaultDownloadKind
	}

	if email != "" && s.downloads != nil {
		rec := models.DownloadRecord{
			ID:    uuid.New(),
			Email: supabase.NormalizeEmail(email),
			URL:   rawURL,
			Kind:  kind,
		}
		s.runner.Go("download_record", logrus.Fields{"email": rec.Email, "kind": kind}, func(ctx context.Context) error {
			return s.downloads.RecordDownload(ctx, rec)
		})
	}
	return rawURL, nil
}

func (s *StorageService) resolveManaged(rawURL, pathname string) (string, error) {
	switch {
	case rawURL != "":
		p, ok := s.store.PathFromURL(rawURL)
		if !ok {
			return "", apperror.Validation("url does not point at this service's storage")
		}
		pathname = p
	case pathname == "":
		return "", apperror.Validation("url or pathname is required")
	}

	cleaned := blob.CleanPath(pathname)
	if cleaned == "" || !blob.IsManagedPath(cleaned) {
		return "", apperror.Validation(fmt.Sprintf("path %q is not a managed asset", pathname))
	}
	return cleaned, nil
}
