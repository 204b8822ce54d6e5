package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

const (
	qrSize          = 256
	defaultTitle    = "My coloring book"
	jsonContentType = "application/json"
)

// PortalService publishes manifests of finished pages. Portals are mutable
// and overwritten wholesale; bundles are written once.
type PortalService struct {
	store      blob.Store
	portalBase string
	now        func() time.Time
}

func NewPortalService(store blob.Store, portalBaseURL string) *PortalService {
	return &PortalService{
		store:      store,
		portalBase: strings.TrimSuffix(portalBaseURL, "/"),
		now:        time.Now,
	}
}

func (s *PortalService) portalURL(id string) string {
	return s.portalBase + "/" + id
}

// InitPortal creates an empty portal with its QR code.
func (s *PortalService) InitPortal(ctx context.Context, title string) (*models.PortalResponse, error) {
	id := uuid.New().String()
	portalURL := s.portalURL(id)

	qrURL, err := s.putQR(ctx, blob.PortalQRPath(id), portalURL)
	if err != nil {
		return nil, err
	}

	manifest := models.PortalManifest{
		ID:        id,
		CreatedAt: s.now().UTC(),
		Title:     titleOrDefault(title),
		Items:     []models.ManifestItem{},
		PortalURL: portalURL,
		QRPngURL:  qrURL,
	}
	manifestURL, err := s.putManifest(ctx, blob.PortalManifestPath(id), manifest)
	if err != nil {
		return nil, err
	}

	logger.Log.WithField("portal_id", id).Info("Portal created")
	return &models.PortalResponse{ID: id, PortalURL: portalURL, QRPngURL: qrURL, ManifestURL: manifestURL}, nil
}

// UpdateManifest replaces the items of an existing portal. Concurrent updates
// are last-write-wins.
func (s *PortalService) UpdateManifest(ctx context.Context, req models.PortalUpdateRequest) (*models.PortalResponse, error) {
	manifest, err := s.readManifest(ctx, blob.PortalManifestPath(req.ID))
	if err != nil {
		return nil, err
	}

	manifest.Items = req.Items
	if manifest.Items == nil {
		manifest.Items = []models.ManifestItem{}
	}
	if req.Title != "" {
		manifest.Title = req.Title
	}
	if req.Model != "" {
		manifest.Model = req.Model
	}

	manifestURL, err := s.putManifest(ctx, blob.PortalManifestPath(req.ID), *manifest)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"portal_id": req.ID, "items": len(manifest.Items)}).Debug("Portal manifest updated")
	return &models.PortalResponse{
		ID:          manifest.ID,
		PortalURL:   manifest.PortalURL,
		QRPngURL:    manifest.QRPngURL,
		ManifestURL: manifestURL,
	}, nil
}

// CreateBundle snapshots items into a new bundle. With copyAssets every
// image we host is copied under the bundle prefix so the bundle survives
// deletion of the originals. A failed copy keeps the original URL.
func (s *PortalService) CreateBundle(ctx context.Context, req models.BundleCreateRequest) (*models.PortalResponse, error) {
	id := uuid.New().String()
	portalURL := s.portalURL(id)
	log := logger.Log.WithField("bundle_id", id)

	title := req.Title
	if title == "" && req.PortalID != "" {
		if portal, err := s.readManifest(ctx, blob.PortalManifestPath(req.PortalID)); err == nil {
			title = portal.Title
		}
	}

	items := make([]models.ManifestItem, len(req.Items))
	copy(items, req.Items)
	if req.CopyAssets {
		copied := make(map[string]string)
		for i := range items {
			items[i].OriginalURL = s.copyAsset(ctx, id, items[i].OriginalURL, copied, log)
			items[i].LineArtURL = s.copyAsset(ctx, id, items[i].LineArtURL, copied, log)
		}
	}

	qrURL, err := s.putQR(ctx, blob.BundleQRPath(id), portalURL)
	if err != nil {
		return nil, err
	}

	manifest := models.PortalManifest{
		ID:        id,
		CreatedAt: s.now().UTC(),
		Title:     titleOrDefault(title),
		Items:     items,
		PortalURL: portalURL,
		QRPngURL:  qrURL,
		Model:     req.Model,
	}
	manifestURL, err := s.putManifest(ctx, blob.BundleManifestPath(id), manifest)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"items": len(items), "copy_assets": req.CopyAssets}).Info("Bundle created")
	return &models.PortalResponse{ID: id, PortalURL: portalURL, QRPngURL: qrURL, ManifestURL: manifestURL}, nil
}

// GetBundle resolves id as a bundle first and as a portal second.
func (s *PortalService) GetBundle(ctx context.Context, id string) (*models.PortalManifest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.Validation("id must be a UUID")
	}

	manifest, err := s.readManifest(ctx, blob.BundleManifestPath(id))
	if err == nil {
		return manifest, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}
	return s.readManifest(ctx, blob.PortalManifestPath(id))
}

func (s *PortalService) copyAsset(ctx context.Context, bundleID, rawURL string, copied map[string]string, log *logrus.Entry) string {
	if rawURL == "" {
		return rawURL
	}
	if done, ok := copied[rawURL]; ok {
		return done
	}
	src, ok := s.store.PathFromURL(rawURL)
	if !ok {
		return rawURL
	}

	data, err := s.store.Get(ctx, src)
	if err != nil {
		log.WithError(err).WithField("source", src).Warn("Failed to read asset for bundle copy")
		return rawURL
	}
	obj, err := s.store.Put(ctx, blob.BundleAssetPath(bundleID, src), data, blob.ContentTypeFor(src))
	if err != nil {
		log.WithError(err).WithField("source", src).Warn("Failed to copy asset into bundle")
		return rawURL
	}
	copied[rawURL] = obj.URL
	return obj.URL
}

func (s *PortalService) putQR(ctx context.Context, pathname, content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	obj, err := s.store.Put(ctx, pathname, png, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to store QR code: %w", err)
	}
	return obj.URL, nil
}

func (s *PortalService) putManifest(ctx context.Context, pathname string, manifest models.PortalManifest) (string, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	obj, err := s.store.Put(ctx, pathname, data, jsonContentType)
	if err != nil {
		return "", fmt.Errorf("failed to store manifest: %w", err)
	}
	return obj.URL, nil
}

func (s *PortalService) readManifest(ctx context.Context, pathname string) (*models.PortalManifest, error) {
	data, err := s.store.Get(ctx, pathname)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.New(apperror.ErrCodeNotFound, "manifest not found")
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest models.PortalManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return defaultTitle
}
