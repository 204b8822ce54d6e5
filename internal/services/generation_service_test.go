package services_test

import (
	"context"
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
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/services"
)

type generationFixture struct {
	svc     *services.GenerationService
	credits *services.MemoryStore
	store   *blob.MemoryStore
	model   *fakeModel
	advisor *fakeAdvisor
	runner  *background.Runner
	photo   string
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	f := &generationFixture{
		credits: services.NewMemoryStore(),
		store:   blob.NewMemoryStore(testBaseURL),
		model:   &fakeModel{configured: true},
		advisor: &fakeAdvisor{},
		runner:  background.NewRunner(nil),
	}
	f.svc = services.NewGenerationService(
		f.credits, f.store, f.model, "black-forest-labs/flux-kontext-pro",
		f.advisor, &fakeFetcher{err: errors.New("no network in tests")},
		palette.MustDefault(), f.runner, nil,
	)

	obj, err := f.store.Put(context.Background(), "uploads/20250101/photo.png", twoTonePNG(t), "image/png")
	require.NoError(t, err)
	f.photo = obj.URL
	return f
}

func (f *generationFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Wait(ctx))
}

func TestGenerate_FreeThenNoCredits(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	req := models.GenerateRequest{ImageURL: f.photo, Email: "New@Example.com", Context: models.ContextSingle}

	first, err := f.svc.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, first.Status)
	assert.Equal(t, models.GenerationFree, first.GenerationType)
	assert.True(t, strings.HasPrefix(first.LineArtURL, testBaseURL+"/api/blob/line-art/"))
	require.NotNil(t, first.Analysis)
	assert.NotEmpty(t, first.Analysis.Palette)
	f.wait(t)

	second, err := f.svc.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoCredits, second.Status)
	assert.Equal(t, 0, second.CreditsRemaining)
	assert.Nil(t, second.Analysis)
	assert.Equal(t, 1, f.model.Calls())
}

func TestGenerate_PaidDecrementsAfterSuccess(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	_, err := f.credits.AddPurchasedCredits(ctx, "buyer@example.com", 2)
	require.NoError(t, err)
	_, err = f.credits.MarkFreeUsed(ctx, "buyer@example.com")
	require.NoError(t, err)

	resp, err := f.svc.Generate(ctx, models.GenerateRequest{ImageURL: f.photo, Email: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.GenerationPaid, resp.GenerationType)
	assert.Equal(t, 1, resp.CreditsRemaining)
	f.wait(t)

	row, err := f.credits.GetCredits(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, row.CreditsRemaining)
}

func TestGenerate_BookContextBypassesCredits(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := f.svc.Generate(ctx, models.GenerateRequest{ImageURL: f.photo, Email: "book@example.com", Context: models.ContextBook})
		require.NoError(t, err)
		assert.Equal(t, models.GenerationUnlimited, resp.GenerationType)
	}
	f.wait(t)

	row, err := f.credits.GetCredits(ctx, "book@example.com")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGenerate_MisconfiguredFailsBeforeAnyCall(t *testing.T) {
	f := newGenerationFixture(t)
	f.model.configured = false

	_, err := f.svc.Generate(context.Background(), models.GenerateRequest{ImageURL: f.photo, Email: "a@example.com"})
	require.Error(t, err)
	assert.True(t, apperror.IsMisconfigured(err))
	assert.Equal(t, 0, f.model.Calls())

	row, err := f.credits.GetCredits(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGenerate_ModelFailureKeepsFreeTrial(t *testing.T) {
	f := newGenerationFixture(t)
	f.model.err = errors.New("prediction failed")
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, models.GenerateRequest{ImageURL: f.photo, Email: "a@example.com"})
	require.Error(t, err)
	appErr := apperror.As(err)
	assert.Equal(t, apperror.ErrCodeInternal, appErr.Code)
	assert.Equal(t, "generation failed", appErr.Message)
	f.wait(t)

	row, err := f.credits.GetCredits(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.FreeTrialAvailable())
}

func TestGenerate_FallbackAnalysisBounds(t *testing.T) {
	f := newGenerationFixture(t)

	resp, err := f.svc.Generate(context.Background(), models.GenerateRequest{
		ImageURL: f.photo,
		Email:    "a@example.com",
		Options:  &models.GenerationOptions{PaletteSet: 24},
	})
	require.NoError(t, err)

	a := resp.Analysis
	assert.Equal(t, 24, a.PaletteSet)
	assert.Empty(t, a.TipsModel)
	assert.GreaterOrEqual(t, len(a.Palette), palette.MinPaletteSize)
	assert.LessOrEqual(t, len(a.Palette), palette.MaxPaletteSize)
	assert.GreaterOrEqual(t, len(a.Tips), palette.MinTips)
	assert.LessOrEqual(t, len(a.Tips), palette.MaxTips)
	assert.True(t, strings.HasPrefix(f.model.lastInput.InputImage, "data:image/jpeg;base64,"))
}

func TestGenerate_TwoColorPhotoStillGetsMinimumTips(t *testing.T) {
	f := newGenerationFixture(t)

	resp, err := f.svc.Generate(context.Background(), models.GenerateRequest{
		ImageURL: f.photo,
		Email:    "sparse@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)

	tips := resp.Analysis.Tips
	require.Len(t, tips, palette.MinTips)
	seen := make(map[int]bool)
	for _, tip := range tips {
		assert.False(t, seen[tip.FCNo], "pencil %d repeated", tip.FCNo)
		seen[tip.FCNo] = true
		assert.NotEmpty(t, tip.Tip)
	}

	inPalette := make(map[int]bool)
	for _, c := range resp.Analysis.Palette {
		inPalette[c.FCNo] = true
	}
	for _, tip := range tips {
		assert.True(t, inPalette[tip.FCNo], "tip pencil %d missing from palette", tip.FCNo)
	}
}

func TestGenerate_UsesSemanticTips(t *testing.T) {
	f := newGenerationFixture(t)
	cat := palette.MustDefault()
	red, ok := cat.Lookup(219)
	require.True(t, ok)

	f.advisor.configured = true
	for _, region := range []string{"sky", "roof", "door", "grass", "dog", "fence"} {
		f.advisor.tips = append(f.advisor.tips, models.ColorTip{
			Region: region, FCNo: red.FCNo, FCName: red.FCName, Hex: red.Hex, Tip: "Color the " + region,
		})
	}

	resp, err := f.svc.Generate(context.Background(), models.GenerateRequest{ImageURL: f.photo, Email: "a@example.com"})
	require.NoError(t, err)

	a := resp.Analysis
	assert.Equal(t, "gpt-test", a.TipsModel)
	require.Len(t, a.Tips, 6)
	assert.Equal(t, "sky", a.Tips[0].Region)
	assert.NotEmpty(t, a.Tips[0].Colors)
	assert.EqualValues(t, 1, f.advisor.enhanced)
}

func TestGenerate_RejectsUnknownPaletteSet(t *testing.T) {
	f := newGenerationFixture(t)
	_, err := f.svc.Generate(context.Background(), models.GenerateRequest{
		ImageURL: f.photo,
		Email:    "a@example.com",
		Options:  &models.GenerationOptions{PaletteSet: 13},
	})
	require.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.As(err).Code)
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "my prompt", services.BuildPrompt(models.GenerationOptions{Prompt: "  my prompt "}))

	p := services.BuildPrompt(models.GenerationOptions{LineThickness: "bold", Style: "cartoon"})
	assert.True(t, strings.HasPrefix(p, services.DefaultPrompt))
	assert.Contains(t, p, "bold")
	assert.Contains(t, p, "Style: cartoon.")
}
