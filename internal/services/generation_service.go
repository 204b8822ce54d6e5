package services

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/imageproc"
	"photolineart-backend/internal/llm"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/metrics"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/replicate"
	"photolineart-backend/internal/supabase"
)

const (
	DefaultPrompt = "Convert this photo into clean black and white line art for a coloring book. " +
		"Keep every recognizable shape and outline, remove all shading, fills and textures, " +
		"use a pure white background and closed, continuous outlines."

	defaultPaletteSet   = 120
	sampleBuckets       = 12
	errGenerationFailed = "generation failed"
)

type GenerationService struct {
	credits   CreditsStore
	store     blob.Store
	model     LineArtModel
	modelName string
	advisor   TipAdvisor
	fetcher   ImageFetcher
	catalog   *palette.Catalog
	runner    *background.Runner
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewGenerationService(
	credits CreditsStore,
	store blob.Store,
	model LineArtModel,
	modelName string,
	advisor TipAdvisor,
	fetcher ImageFetcher,
	catalog *palette.Catalog,
	runner *background.Runner,
	m *metrics.Collector,
) *GenerationService {
	return &GenerationService{
		credits:   credits,
		store:     store,
		model:     model,
		modelName: modelName,
		advisor:   advisor,
		fetcher:   fetcher,
		catalog:   catalog,
		runner:    runner,
		metrics:   m,
		now:       time.Now,
	}
}

// creditDecision is the outcome of gating one request.
type creditDecision struct {
	generationType string
	remaining      int
}

// Generate turns an uploaded photo into line art plus a pencil analysis. A
// request without credits returns a no_credits response and touches nothing.
func (s *GenerationService) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	start := time.Now()

	if s.model == nil || !s.model.Configured() {
		return nil, apperror.Misconfigured("REPLICATE_API_TOKEN")
	}

	opts := models.GenerationOptions{}
	if req.Options != nil {
		opts = *req.Options
	}
	if opts.PaletteSet != 0 && !palette.ValidSet(opts.PaletteSet) {
		return nil, apperror.Validation("paletteSet must be one of 12, 24, 36, 48, 60, 72, 120")
	}
	genContext := req.Context
	if genContext == "" {
		genContext = models.ContextSingle
	}

	log := logger.Log.WithFields(logrus.Fields{
		"email":   supabase.NormalizeEmail(req.Email),
		"context": genContext,
	})

	decision, err := s.gate(ctx, req.Email, genContext)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		log.Info("Generation refused: no credits")
		s.metrics.RecordGeneration(models.StatusNoCredits, time.Since(start))
		return &models.GenerateResponse{Status: models.StatusNoCredits, CreditsRemaining: 0}, nil
	}

	lineArtURL, analysis, err := s.generate(ctx, req.ImageURL, opts, log)
	if err != nil {
		log.WithError(err).Error("Generation failed")
		s.metrics.RecordGeneration("error", time.Since(start))
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, errGenerationFailed)
	}

	s.consumeCredit(req.Email, decision.generationType)
	s.metrics.RecordGeneration(decision.generationType, time.Since(start))

	log.WithFields(logrus.Fields{
		"generation_type": decision.generationType,
		"line_art_url":    lineArtURL,
		"duration_ms":     time.Since(start).Milliseconds(),
	}).Info("Generation finished")

	return &models.GenerateResponse{
		Status:           models.StatusOK,
		GenerationType:   decision.generationType,
		CreditsRemaining: decision.remaining,
		LineArtURL:       lineArtURL,
		Analysis:         analysis,
	}, nil
}

// gate returns nil when the caller has neither a free trial nor paid credits.
func (s *GenerationService) gate(ctx context.Context, email, genContext string) (*creditDecision, error) {
	if genContext == models.ContextBook {
		return &creditDecision{generationType: models.GenerationUnlimited}, nil
	}

	row, err := s.credits.GetOrCreateCredits(ctx, email)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, errGenerationFailed)
	}

	switch {
	case row.FreeTrialAvailable():
		return &creditDecision{generationType: models.GenerationFree, remaining: row.CreditsRemaining}, nil
	case row.CreditsRemaining > 0:
		return &creditDecision{generationType: models.GenerationPaid, remaining: row.CreditsRemaining - 1}, nil
	default:
		return nil, nil
	}
}

// consumeCredit applies the credit update after a successful generation. It
// runs in the background and a failure only gets logged.
func (s *GenerationService) consumeCredit(email, generationType string) {
	switch generationType {
	case models.GenerationFree:
		s.runner.Go("credits_mark_free", logrus.Fields{"email": supabase.NormalizeEmail(email)}, func(ctx context.Context) error {
			_, err := s.credits.MarkFreeUsed(ctx, email)
			return err
		})
	case models.GenerationPaid:
		s.runner.Go("credits_decrement", logrus.Fields{"email": supabase.NormalizeEmail(email)}, func(ctx context.Context) error {
			_, err := s.credits.DecrementCredits(ctx, email)
			return err
		})
	}
}

func (s *GenerationService) generate(ctx context.Context, imageURL string, opts models.GenerationOptions, log *logrus.Entry) (string, *models.LineArtAnalysis, error) {
	src, modelInput, err := s.prepareSource(ctx, imageURL, log)
	if err != nil {
		return "", nil, err
	}

	outputURL, prediction, err := s.model.Run(ctx, s.modelName, replicate.Input{
		Prompt:       BuildPrompt(opts),
		InputImage:   modelInput,
		OutputFormat: "png",
		AspectRatio:  aspectRatio(opts.OutputSize),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to run line-art model: %w", err)
	}
	log.WithField("prediction_id", prediction.ID).Debug("Prediction succeeded")

	output, err := s.model.Download(ctx, outputURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download line art: %w", err)
	}
	obj, err := s.store.Put(ctx, blob.LineArtPath(s.now()), output, "image/png")
	if err != nil {
		return "", nil, fmt.Errorf("failed to store line art: %w", err)
	}

	analysis := s.analyze(ctx, imageURL, src, opts.PaletteSet, log)
	return obj.URL, analysis, nil
}

// prepareSource loads the photo, rotates it upright and overwrites it in
// place when it lives in our store. Formats that cannot be decoded are sent
// to the model by URL and yield no sampled colors.
func (s *GenerationService) prepareSource(ctx context.Context, imageURL string, log *logrus.Entry) (image.Image, string, error) {
	pathname, inStore := s.store.PathFromURL(imageURL)

	var data []byte
	var err error
	if inStore {
		data, err = s.store.Get(ctx, pathname)
	} else {
		data, err = s.fetcher.Fetch(ctx, imageURL)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load source image: %w", err)
	}

	normalized, err := imageproc.Normalize(data)
	if err != nil {
		log.WithError(err).Warn("Source image could not be decoded, passing URL through")
		return nil, imageURL, nil
	}

	if inStore {
		if _, err := s.store.Put(ctx, pathname, normalized.Data, normalized.ContentType); err != nil {
			return nil, "", fmt.Errorf("failed to overwrite normalized image: %w", err)
		}
	}

	modelInput, err := imageproc.ModelInput(normalized.Image)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode model input: %w", err)
	}
	return normalized.Image, modelInput, nil
}

func (s *GenerationService) analyze(ctx context.Context, imageURL string, src image.Image, paletteSet int, log *logrus.Entry) *models.LineArtAnalysis {
	if paletteSet == 0 {
		paletteSet = defaultPaletteSet
	}
	candidates := s.catalog.ForSet(paletteSet)

	var samples []string
	if src != nil {
		samples = palette.DominantColors(src, sampleBuckets)
	}
	matches := palette.Match(samples, palette.MaxPaletteSize, candidates)

	var semantic []models.ColorTip
	tipsModel := ""
	if s.advisor != nil && s.advisor.Configured() {
		semantic = s.advisor.GenerateSemanticTips(ctx, imageURL, candidates, matches)
		if len(semantic) > 0 {
			tipsModel = s.advisor.Model()
			enhanced, err := s.advisor.EnhanceTipColors(ctx, semantic, candidates)
			if err != nil {
				log.WithError(err).Warn("Tip color enhancement failed")
			} else {
				semantic = llm.ApplyTipColors(semantic, enhanced)
			}
		}
	}
	if len(semantic) > 0 {
		s.metrics.RecordTips("semantic", len(semantic))
	} else {
		s.metrics.RecordTips("fallback", len(matches))
	}

	matched := palette.Colors(matches)
	fallback := palette.FallbackTips(matches, palette.EnsurePaletteCoverage(nil, matched, candidates))
	tips := palette.EnsureTipCoverage(semantic, fallback)
	colors := palette.EnsurePaletteCoverage(palette.TipColors(tips), matched, candidates)

	return &models.LineArtAnalysis{
		SourceImage: imageURL,
		Palette:     colors,
		Tips:        tips,
		Model:       s.modelName,
		PaletteSet:  paletteSet,
		TipsModel:   tipsModel,
	}
}

// BuildPrompt returns the caller's prompt, or the default prompt refined by
// the style and line options.
func BuildPrompt(opts models.GenerationOptions) string {
	if p := strings.TrimSpace(opts.Prompt); p != "" {
		return p
	}

	var b strings.Builder
	b.WriteString(DefaultPrompt)
	switch opts.LineThickness {
	case "thin":
		b.WriteString(" Use thin, delicate lines.")
	case "bold":
		b.WriteString(" Use bold, thick lines suitable for young children.")
	case "medium":
		b.WriteString(" Use medium weight lines.")
	}
	if style := strings.TrimSpace(opts.Style); style != "" {
		fmt.Fprintf(&b, " Style: %s.", style)
	}
	return b.String()
}

func aspectRatio(outputSize string) string {
	switch outputSize {
	case "square":
		return "1:1"
	case "letter", "a4":
		return "3:4"
	default:
		return "match_input_image"
	}
}
