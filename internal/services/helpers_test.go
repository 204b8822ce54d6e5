package services_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/llm"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/mailer"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/replicate"
)

const testBaseURL = "http://api.test"

func init() {
	logger.Silence()
}

type fakeModel struct {
	configured bool
	err        error
	calls      int32
	lastInput  replicate.Input
	mu         sync.Mutex
}

func (f *fakeModel) Configured() bool { return f.configured }

func (f *fakeModel) Run(ctx context.Context, model string, input replicate.Input) (string, *replicate.Prediction, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.lastInput = input
	f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	return "https://replicate.delivery/out.png", &replicate.Prediction{ID: "pred-1", Status: "succeeded"}, nil
}

func (f *fakeModel) Download(ctx context.Context, url string) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\nline-art"), nil
}

func (f *fakeModel) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type fakeAdvisor struct {
	configured bool
	tips       []models.ColorTip
	enhanceErr error
	failTitles map[string]bool
	enhanced   int32
}

func (f *fakeAdvisor) Configured() bool { return f.configured }
func (f *fakeAdvisor) Model() string    { return "gpt-test" }

func (f *fakeAdvisor) GenerateSemanticTips(ctx context.Context, imageURL string, candidates []models.PaletteColor, matches []palette.MatchResult) []models.ColorTip {
	return f.tips
}

func (f *fakeAdvisor) EnhanceTipColors(ctx context.Context, tips []models.ColorTip, candidates []models.PaletteColor) ([]llm.TipColors, error) {
	atomic.AddInt32(&f.enhanced, 1)
	if f.enhanceErr != nil {
		return nil, f.enhanceErr
	}
	for _, t := range tips {
		if f.failTitles[t.Region] {
			return nil, errors.New("llm unavailable")
		}
	}
	out := make([]llm.TipColors, 0, len(tips))
	for _, t := range tips {
		out = append(out, llm.TipColors{Region: t.Region, Colors: []models.PaletteColor{candidates[0]}})
	}
	return out, nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f.data, f.err
}

type fakeMailer struct {
	configured bool
	err        error
	sent       []mailer.Message
	mu         sync.Mutex
}

func (f *fakeMailer) Configured() bool { return f.configured }

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

// twoTonePNG returns a photo-like PNG split into a red and a blue half.
func twoTonePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{R: 200, G: 30, B: 30, A: 255}
			if x >= 20 {
				c = color.RGBA{R: 30, G: 60, B: 200, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const minimalPDF = "%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n"
