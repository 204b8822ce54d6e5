package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/metrics"
	"photolineart-backend/internal/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Health   *HealthHandler
	Upload   *UploadHandler
	Generate *GenerateHandler
	Credits  *CreditsHandler
	Checkout *CheckoutHandler
	Portal   *PortalHandler
	Tips     *TipsHandler
	PDF      *PDFHandler
	Assets   *AssetsHandler
	Records  *RecordsHandler

	Signer  *blob.TokenSigner
	Metrics *metrics.Collector
	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer

	// ServeBlobs mounts GET /api/blob/*pathname for the in-memory backend.
	ServeBlobs bool

	RateLimit       int64
	RateLimitPeriod time.Duration
	DisableLogger   bool
}

var routedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

type endpoint struct {
	method   string
	handlers []gin.HandlerFunc
}

func on(method string, handlers ...gin.HandlerFunc) endpoint {
	return endpoint{method: method, handlers: handlers}
}

// mount registers the endpoints of one path and answers every other method
// with 405 and an Allow header.
func mount(r gin.IRoutes, path string, endpoints ...endpoint) {
	allowed := make([]string, 0, len(endpoints))
	taken := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		r.Handle(ep.method, path, ep.handlers...)
		allowed = append(allowed, ep.method)
		taken[ep.method] = true
	}

	reject := methodNotAllowed(allowed...)
	for _, m := range routedMethods {
		if !taken[m] {
			r.Handle(m, path, reject)
		}
	}
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	if !cfg.DisableLogger {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestMetrics(cfg.Metrics))
	router.NoRoute(notFound)

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("", nil)
	}
	mount(router, "/health", on(http.MethodGet, health.Health))
	if cfg.Gatherer != nil {
		mount(router, "/metrics", on(http.MethodGet, gin.WrapH(metrics.Handler(cfg.Gatherer))))
	}

	api := router.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateLimitPeriod))

	mount(api, "/blob-upload", on(http.MethodPost, cfg.Upload.CreateTarget))
	blobEndpoints := []endpoint{on(http.MethodPut, middleware.UploadToken(cfg.Signer), cfg.Upload.Put)}
	if cfg.ServeBlobs {
		blobEndpoints = append(blobEndpoints, on(http.MethodGet, cfg.Upload.Get))
	}
	mount(api, "/blob/*pathname", blobEndpoints...)

	mount(api, "/ai-lineart", on(http.MethodPost, cfg.Generate.Generate))
	mount(api, "/credits", on(http.MethodGet, cfg.Credits.Get))
	mount(api, "/create-checkout-session", on(http.MethodPost, cfg.Checkout.CreateSession))
	mount(api, "/stripe-webhook", on(http.MethodPost, cfg.Checkout.HandleWebhook))

	mount(api, "/portal-init", on(http.MethodPost, cfg.Portal.Init))
	mount(api, "/portal-update", on(http.MethodPost, cfg.Portal.Update))
	mount(api, "/bundles-create", on(http.MethodPost, cfg.Portal.CreateBundle))
	mount(api, "/bundles-get", on(http.MethodGet, cfg.Portal.GetBundle))
	mount(api, "/tips-enhance", on(http.MethodPost, cfg.Tips.Enhance))

	mount(api, "/send-pdf", on(http.MethodPost, cfg.PDF.SendPDF))
	mount(api, "/build-pdf", on(http.MethodPost, cfg.PDF.BuildPDF))
	mount(api, "/upload-pdf", on(http.MethodPost, cfg.PDF.UploadPDF))

	mount(api, "/contact", on(http.MethodPost, cfg.Records.Contact))
	mount(api, "/log-run", on(http.MethodPost, cfg.Records.LogRun))
	mount(api, "/download", on(http.MethodGet, cfg.Assets.Download))
	mount(api, "/delete-asset", on(http.MethodPost, cfg.Assets.Delete))

	return router
}
