package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

var ErrNothingToPublish = errors.New("no ready items to publish")

type PublishResult struct {
	Portal *models.PortalResponse `json:"portal"`
	Bundle *models.PortalResponse `json:"bundle"`
	Items  []models.ManifestItem  `json:"items"`
	// Flagged counts items whose tip enhancement failed.
	Flagged int `json:"flagged"`
}

// Portal returns the portal created by the first manifest sync, if any.
func (p *Pipeline) Portal() *models.PortalResponse {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()
	if p.portal == nil {
		return nil
	}
	portal := *p.portal
	return &portal
}

// readyItems collects ready items in list order along with their ids and
// the model that produced them.
func (p *Pipeline) readyItems() ([]string, []models.ManifestItem, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	items := []models.ManifestItem{}
	model := ""
	for _, it := range p.items {
		if it.State != StateReady {
			continue
		}
		ids = append(ids, it.ID)
		items = append(items, it.manifestItem())
		if model == "" && it.Analysis != nil {
			model = it.Analysis.Model
		}
	}
	return ids, items, model
}

// syncManifest overwrites the portal manifest with the current ready items,
// creating the portal on first use. It returns a nil portal when none exists
// and nothing is ready. Concurrent writers elsewhere are last-write-wins.
func (p *Pipeline) syncManifest(ctx context.Context) (*models.PortalResponse, error) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	_, items, model := p.readyItems()

	if p.portal == nil {
		if len(items) == 0 {
			return nil, nil
		}
		err := Retry(ctx, "portal init", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
			portal, err := p.api.InitPortal(ctx, p.opts.Title)
			if err == nil {
				p.portal = portal
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		logger.Log.WithFields(logrus.Fields{"portal": p.portal.ID, "url": p.portal.PortalURL}).Info("Portal created")
	}

	req := models.PortalUpdateRequest{ID: p.portal.ID, Title: p.opts.Title, Items: items, Model: model}
	err := Retry(ctx, "portal update", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		_, err := p.api.UpdatePortal(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	portal := *p.portal
	return &portal, nil
}

// Publish enhances the tips of every ready item, syncs the manifest and
// snapshots it into a bundle. Enhancement is best-effort: a failed call
// publishes the items unchanged and per-item failures are flagged.
func (p *Pipeline) Publish(ctx context.Context) (*PublishResult, error) {
	ids, items, model := p.readyItems()
	if len(items) == 0 {
		return nil, ErrNothingToPublish
	}

	var enhanced []models.ManifestItem
	err := Retry(ctx, "tips enhance", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		var err error
		enhanced, err = p.api.EnhanceTips(ctx, items)
		return err
	})
	if err != nil || len(enhanced) != len(items) {
		logger.Log.WithError(err).Warn("Tip enhancement skipped")
		enhanced = items
	} else {
		p.applyEnhanced(ids, enhanced)
	}

	portal, err := p.syncManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sync manifest: %w", err)
	}
	if portal == nil {
		// every ready item was removed while tips were enhanced
		return nil, ErrNothingToPublish
	}

	var bundle *models.PortalResponse
	err = Retry(ctx, "bundle create", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		var err error
		bundle, err = p.api.CreateBundle(ctx, models.BundleCreateRequest{
			PortalID:   portal.ID,
			Title:      p.opts.Title,
			Items:      enhanced,
			CopyAssets: p.opts.CopyAssets,
			Model:      model,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}

	result := &PublishResult{Portal: portal, Bundle: bundle, Items: enhanced}
	for _, it := range enhanced {
		if it.EnhancementError != "" {
			result.Flagged++
		}
	}
	logger.Log.WithFields(logrus.Fields{
		"bundle":  bundle.ID,
		"items":   len(enhanced),
		"flagged": result.Flagged,
	}).Info("Published bundle")
	return result, nil
}

func (p *Pipeline) applyEnhanced(ids []string, enhanced []models.ManifestItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i, id := range ids {
		it := p.findLocked(id)
		if it == nil || it.Analysis == nil {
			continue
		}
		if msg := enhanced[i].EnhancementError; msg != "" {
			it.record(now, EventError, "tip enhancement failed: "+msg)
			continue
		}
		analysis := *it.Analysis
		analysis.Tips = enhanced[i].Tips
		it.Analysis = &analysis
	}
	p.notifyLocked()
}
