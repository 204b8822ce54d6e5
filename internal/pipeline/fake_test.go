package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/pipeline"
)

func init() {
	logger.Silence()
}

// fakeAPI records calls and answers like the server would.
type fakeAPI struct {
	mu sync.Mutex

	targets     int
	puts        int
	generations int
	inflight    int
	maxInflight int
	portalInits int
	updates     []models.PortalUpdateRequest
	bundles     []models.BundleCreateRequest

	putErr       error
	generateErr  error
	noCredits    bool
	generateWait time.Duration
	// block, when set, is consulted on each generation; a non-nil channel
	// holds that call until it is closed.
	block       func(call int) chan struct{}
	enhanceErrs map[string]string
}

func (f *fakeAPI) CreateUploadTarget(ctx context.Context, req models.UploadTargetRequest) (*models.UploadTargetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets++
	path := fmt.Sprintf("uploads/20250101/%d.png", f.targets)
	return &models.UploadTargetResponse{
		UploadURL: "http://api.test/api/blob/" + path + "?token=t",
		Pathname:  path,
		Token:     "t",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (f *fakeAPI) PutBlob(ctx context.Context, uploadURL string, data []byte, contentType string, progress func(sent, total int64)) (*models.BlobPutResponse, error) {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	progress(int64(len(data))/2, int64(len(data)))
	progress(int64(len(data)), int64(len(data)))
	return &models.BlobPutResponse{URL: uploadURL[:len(uploadURL)-len("?token=t")], ContentType: contentType, Size: int64(len(data))}, nil
}

func (f *fakeAPI) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	f.mu.Lock()
	f.generations++
	call := f.generations
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	err, noCredits, wait, block := f.generateErr, f.noCredits, f.generateWait, f.block
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if block != nil {
		if ch := block(call); ch != nil {
			<-ch
		}
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	if err != nil {
		return nil, err
	}
	if noCredits {
		return &models.GenerateResponse{Status: models.StatusNoCredits}, nil
	}
	return &models.GenerateResponse{
		Status:         models.StatusOK,
		GenerationType: models.GenerationFree,
		LineArtURL:     fmt.Sprintf("http://api.test/api/blob/line-art/20250101/%d.png", call),
		Analysis: &models.LineArtAnalysis{
			SourceImage: req.ImageURL,
			Palette:     []models.PaletteColor{{FCNo: 219, FCName: "Deep scarlet red", Hex: "#E3000F"}},
			Tips:        []models.ColorTip{{Region: "sky", FCNo: 219, FCName: "Deep scarlet red", Tip: "Layer lightly."}},
			Model:       "test/model",
			PaletteSet:  120,
		},
	}, nil
}

func (f *fakeAPI) InitPortal(ctx context.Context, title string) (*models.PortalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalInits++
	return &models.PortalResponse{ID: "portal-1", PortalURL: "https://photolineart.test/p/portal-1"}, nil
}

func (f *fakeAPI) UpdatePortal(ctx context.Context, req models.PortalUpdateRequest) (*models.PortalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return &models.PortalResponse{ID: req.ID}, nil
}

func (f *fakeAPI) EnhanceTips(ctx context.Context, items []models.ManifestItem) ([]models.ManifestItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ManifestItem, len(items))
	for i, it := range items {
		out[i] = it
		if msg, ok := f.enhanceErrs[it.LineArtURL]; ok {
			out[i].EnhancementError = msg
			continue
		}
		out[i].Tips = append([]models.ColorTip(nil), it.Tips...)
		for j := range out[i].Tips {
			out[i].Tips[j].Colors = []models.PaletteColor{{FCNo: 219}}
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateBundle(ctx context.Context, req models.BundleCreateRequest) (*models.PortalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles = append(f.bundles, req)
	return &models.PortalResponse{ID: "bundle-1"}, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) read(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

var errBoom = errors.New("boom")

func pngSource(t *testing.T, name string) pipeline.Source {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return pipeline.Source{Name: name, Data: buf.Bytes()}
}

func fastOptions() pipeline.Options {
	return pipeline.Options{
		Email: "batch@example.com",
		Title: "Test book",
		Retry: pipeline.RetryPolicy{Attempts: 1, Delay: time.Millisecond},
	}
}

func waitSettled(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}
