package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/llm"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
)

const (
	tipsWorkers             = 3
	enhancementFailedReason = "tip enhancement failed"
)

type TipsService struct {
	advisor TipAdvisor
	catalog *palette.Catalog
	workers int
}

func NewTipsService(advisor TipAdvisor, catalog *palette.Catalog) *TipsService {
	return &TipsService{advisor: advisor, catalog: catalog, workers: tipsWorkers}
}

// Enhance enriches the tips of every item with the pencils their text
// mentions. Items are processed by a small worker pool; a failed item keeps
// its tips and carries an enhancementError. Results keep the input order.
func (s *TipsService) Enhance(ctx context.Context, items []models.ManifestItem) ([]models.ManifestItem, error) {
	if s.advisor == nil || !s.advisor.Configured() {
		return nil, apperror.Misconfigured("OPENAI_API_KEY")
	}

	results := make([]models.ManifestItem, len(items))
	copy(results, items)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.enhanceItem(ctx, results[i])
			}
		}()
	}

	for i := range results {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, nil
}

func (s *TipsService) enhanceItem(ctx context.Context, item models.ManifestItem) models.ManifestItem {
	item.EnhancementError = ""
	if len(item.Tips) == 0 {
		return item
	}

	candidates := item.Palette
	if len(candidates) == 0 {
		candidates = s.catalog.ForSet(item.Set)
	}

	enhanced, err := s.advisor.EnhanceTipColors(ctx, item.Tips, candidates)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{"title": item.Title}).Warn("Tip enhancement failed for item")
		item.EnhancementError = enhancementFailedReason
		return item
	}
	item.Tips = llm.ApplyTipColors(item.Tips, enhanced)
	return item
}
