package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/checkout"
	"photolineart-backend/internal/handlers"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/metrics"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/pdfbook"
	"photolineart-backend/internal/replicate"
	"photolineart-backend/internal/services"
)

const testBaseURL = "http://api.test"

var uploadPathPattern = regexp.MustCompile(`^uploads/\d{8}/[0-9a-f-]{36}\.png$`)

func init() {
	logger.Silence()
	gin.SetMode(gin.TestMode)
}

type stubModel struct {
	calls int32
}

func (s *stubModel) Configured() bool { return true }

func (s *stubModel) Run(ctx context.Context, model string, input replicate.Input) (string, *replicate.Prediction, error) {
	atomic.AddInt32(&s.calls, 1)
	return "https://replicate.delivery/out.png", &replicate.Prediction{ID: "pred-1", Status: "succeeded"}, nil
}

func (s *stubModel) Download(ctx context.Context, url string) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\nline-art"), nil
}

type noFetch struct{}

func (noFetch) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return nil, context.DeadlineExceeded
}

type testServer struct {
	router  *gin.Engine
	store   *blob.MemoryStore
	records *services.MemoryStore
	model   *stubModel
	runner  *background.Runner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := blob.NewMemoryStore(testBaseURL)
	records := services.NewMemoryStore()
	model := &stubModel{}
	runner := background.NewRunner(nil)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	signer := blob.NewTokenSigner("test-secret", 10*time.Minute)
	catalog := palette.MustDefault()

	generation := services.NewGenerationService(records, store, model, "test/model", nil, noFetch{}, catalog, runner, collector)
	credits := services.NewCreditsService(records, 10)
	storage := services.NewStorageService(store, records, runner)

	router := handlers.NewRouter(handlers.RouterConfig{
		Upload:   handlers.NewUploadHandler(services.NewUploadService(store, signer, testBaseURL, 1024*1024, collector), store),
		Generate: handlers.NewGenerateHandler(generation),
		Credits:  handlers.NewCreditsHandler(credits),
		Checkout: handlers.NewCheckoutHandler(checkout.NewClient(checkout.Config{}), credits),
		Portal:   handlers.NewPortalHandler(services.NewPortalService(store, "https://photolineart.test/p")),
		Tips:     handlers.NewTipsHandler(services.NewTipsService(nil, catalog)),
		PDF: handlers.NewPDFHandler(
			services.NewMailService(nil, store, runner),
			storage,
			pdfbook.NewBuilder(services.AssetLoader(store, noFetch{})),
		),
		Assets:        handlers.NewAssetsHandler(storage),
		Records:       handlers.NewRecordsHandler(services.NewRecordsService(records)),
		Signer:        signer,
		Metrics:       collector,
		Gatherer:      reg,
		ServeBlobs:    true,
		RateLimit:     1000,
		DisableLogger: true,
	})

	return &testServer{router: router, store: store, records: records, model: model, runner: runner}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		payload, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	if _, raw := body.([]byte); !raw && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.runner.Wait(ctx))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func photoPNG(t *testing.T) []byte {
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

// upload runs the two-step upload and returns the stored blob URL.
func (s *testServer) upload(t *testing.T) string {
	t.Helper()

	w := s.do(http.MethodPost, "/api/blob-upload", models.UploadTargetRequest{ContentType: "image/png"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var target models.UploadTargetResponse
	decode(t, w, &target)
	assert.Regexp(t, uploadPathPattern, target.Pathname)

	u, err := url.Parse(target.UploadURL)
	require.NoError(t, err)
	w = s.do(http.MethodPut, u.RequestURI(), photoPNG(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var put models.BlobPutResponse
	decode(t, w, &put)
	assert.Equal(t, target.Pathname, put.Pathname)
	return put.URL
}

func TestUploadThenServe(t *testing.T) {
	s := newTestServer(t)
	blobURL := s.upload(t)

	u, err := url.Parse(blobURL)
	require.NoError(t, err)
	w := s.do(http.MethodGet, u.Path, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestUploadPut_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/blob/uploads/20250101/x.png", photoPNG(t))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGenerate_FreeThenNoCredits(t *testing.T) {
	s := newTestServer(t)
	photo := s.upload(t)
	req := models.GenerateRequest{ImageURL: photo, Email: "first@example.com", Context: models.ContextSingle}

	w := s.do(http.MethodPost, "/api/ai-lineart", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first models.GenerateResponse
	decode(t, w, &first)
	assert.Equal(t, models.StatusOK, first.Status)
	assert.Equal(t, models.GenerationFree, first.GenerationType)
	require.NotNil(t, first.Analysis)
	assert.NotEmpty(t, first.Analysis.Palette)
	assert.GreaterOrEqual(t, len(first.Analysis.Tips), palette.MinTips)
	s.drain(t)

	w = s.do(http.MethodPost, "/api/ai-lineart", req)
	require.Equal(t, http.StatusOK, w.Code)
	var second models.GenerateResponse
	decode(t, w, &second)
	assert.Equal(t, models.StatusNoCredits, second.Status)
	assert.Equal(t, 0, second.CreditsRemaining)
	assert.EqualValues(t, 1, atomic.LoadInt32(&s.model.calls))

	w = s.do(http.MethodGet, "/api/credits?email=FIRST@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits models.CreditsResponse
	decode(t, w, &credits)
	assert.True(t, credits.FreeTrialUsed)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing email", map[string]string{"imageUrl": "https://example.com/a.png"}},
		{"bad url", map[string]string{"imageUrl": "not a url", "email": "a@b.co"}},
		{"bad context", map[string]string{"imageUrl": "https://example.com/a.png", "email": "a@b.co", "context": "poster"}},
		{"bad palette set", map[string]interface{}{
			"imageUrl": "https://example.com/a.png", "email": "a@b.co",
			"options": map[string]int{"paletteSet": 13},
		}},
		{"not json", []byte("{")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/ai-lineart", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp models.ErrorResponse
			decode(t, w, &resp)
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		})
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&s.model.calls))
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/ai-lineart", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	var resp models.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "METHOD_NOT_ALLOWED", resp.Error.Code)

	w = s.do(http.MethodPost, "/api/bundles-get", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp models.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestMisconfiguredProviders(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path string
		body interface{}
	}{
		{"/api/create-checkout-session", models.CheckoutRequest{Email: "a@b.co"}},
		{"/api/tips-enhance", models.TipsEnhanceRequest{Items: []models.ManifestItem{{Title: "Cat"}}}},
		{"/api/send-pdf", models.SendPDFRequest{Email: "a@b.co", PDFBase64: "JVBERi0="}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var resp models.ErrorResponse
			decode(t, w, &resp)
			assert.Equal(t, "MISCONFIGURED", resp.Error.Code)
		})
	}
}

func TestPortalLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/portal-init", models.PortalInitRequest{Title: "Summer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var portal models.PortalResponse
	decode(t, w, &portal)
	assert.Equal(t, "https://photolineart.test/p/"+portal.ID, portal.PortalURL)

	item := models.ManifestItem{Title: "Dog", LineArtURL: "https://example.com/dog.png"}
	w = s.do(http.MethodPost, "/api/portal-update", models.PortalUpdateRequest{ID: portal.ID, Items: []models.ManifestItem{item}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/bundles-get?id="+portal.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var manifest models.PortalManifest
	decode(t, w, &manifest)
	assert.Equal(t, "Summer", manifest.Title)
	require.Len(t, manifest.Items, 1)
	assert.Equal(t, "Dog", manifest.Items[0].Title)

	w = s.do(http.MethodGet, "/api/bundles-get?id=00000000-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func checkoutCompletedEvent(sessionID string, packs string) map[string]interface{} {
	return map[string]interface{}{
		"id":   "evt_" + sessionID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": "paid",
				"metadata":       map[string]string{"email": "buyer@example.com", "packs": packs},
			},
		},
	}
}

func TestStripeWebhook_GrantsCredits(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/stripe-webhook", checkoutCompletedEvent("cs_test_1", "2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/credits?email=buyer@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits models.CreditsResponse
	decode(t, w, &credits)
	assert.Equal(t, 20, credits.CreditsRemaining)
	assert.Equal(t, 20, credits.TotalPurchased)
}

func TestStripeWebhook_RedeliveryGrantsOnce(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/stripe-webhook", checkoutCompletedEvent("cs_test_1", "2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first models.StatusResponse
	decode(t, w, &first)
	assert.Equal(t, models.StatusOK, first.Status)

	w = s.do(http.MethodPost, "/api/stripe-webhook", checkoutCompletedEvent("cs_test_1", "2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second models.StatusResponse
	decode(t, w, &second)
	assert.Equal(t, models.StatusDuplicate, second.Status)
	assert.Equal(t, "cs_test_1", second.ID)

	w = s.do(http.MethodGet, "/api/credits?email=buyer@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var credits models.CreditsResponse
	decode(t, w, &credits)
	assert.Equal(t, 20, credits.CreditsRemaining)
	assert.Equal(t, 20, credits.TotalPurchased)
}

func TestContactAndLogRun(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/contact", models.ContactRequest{
		Name: "Ana", Email: "ana@example.com", Message: "<b>Love</b> it",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, s.records.ContactMessages(), 1)
	assert.Equal(t, "Love it", s.records.ContactMessages()[0].Message)

	w = s.do(http.MethodPost, "/api/log-run", models.LogRunRequest{Status: "ok", DurationMS: 1200})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, s.records.Runs(), 1)
}

func TestDownloadRedirectsAndRecords(t *testing.T) {
	s := newTestServer(t)
	obj, err := s.store.Put(context.Background(), "pdfs/20250101/book.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/api/download?email=reader@example.com&url="+url.QueryEscape(obj.URL), nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, obj.URL, w.Header().Get("Location"))
	s.drain(t)
	require.Len(t, s.records.Downloads(), 1)
	assert.Equal(t, "pdf", s.records.Downloads()[0].Kind)

	w = s.do(http.MethodGet, "/api/download?url="+url.QueryEscape("https://evil.example.com/x.pdf"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuildPDF(t *testing.T) {
	s := newTestServer(t)
	photo := s.upload(t)

	w := s.do(http.MethodPost, "/api/build-pdf", models.BuildPDFRequest{
		Layout: "single",
		Items:  []models.ManifestItem{{Title: "Cat", LineArtURL: photo}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/health", nil)

	w := s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "photolineart_http_requests_total")
}
