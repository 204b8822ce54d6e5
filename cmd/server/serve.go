package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/checkout"
	"photolineart-backend/internal/config"
	"photolineart-backend/internal/database"
	"photolineart-backend/internal/handlers"
	"photolineart-backend/internal/llm"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/mailer"
	"photolineart-backend/internal/metrics"
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/pdfbook"
	"photolineart-backend/internal/replicate"
	"photolineart-backend/internal/services"
	"photolineart-backend/internal/supabase"
)

const (
	resendBaseURL   = "https://api.resend.com/"
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

type serveOptions struct {
	migrate bool
}

func newServeCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "Apply pending migrations before serving when DATABASE_URL is set")
	return cmd
}

// persistence groups the stores picked for this deployment.
type persistence struct {
	blobs     blob.Store
	credits   services.CreditsStore
	downloads services.DownloadRecorder
	records   services.RecordSink
	close     func()
}

func openPersistence(ctx context.Context, cfg *config.Config, migrate bool) (*persistence, error) {
	memory := services.NewMemoryStore()
	p := &persistence{credits: memory, downloads: memory, records: memory, close: func() {}}

	switch cfg.BlobBackend {
	case "memory":
		p.blobs = blob.NewMemoryStore(cfg.BaseURL)
		logger.Log.Warn("Using in-memory blob storage; uploads are lost on restart")
	default:
		storage, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage client: %w", err)
		}
		p.blobs = storage

		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			return nil, err
		}
		p.records = supabase.NewRecordClient(client)
	}

	if cfg.DatabaseURL == "" {
		logger.Log.Warn("DATABASE_URL not set; credits and downloads are kept in memory")
		return p, nil
	}

	if migrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	dbClient := supabase.NewDatabaseClient(db)
	p.credits = dbClient
	p.downloads = dbClient
	p.close = func() {
		if err := dbClient.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close database")
		}
	}
	return p, nil
}

func runServe(parent context.Context, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.Environment)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openPersistence(ctx, cfg, opts.migrate)
	if err != nil {
		return err
	}
	defer store.close()

	catalog, err := palette.Default()
	if err != nil {
		return fmt.Errorf("failed to load palette catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	runner := background.NewRunner(collector)

	signer := blob.NewTokenSigner(cfg.UploadSigningSecret, cfg.UploadTokenTTL)
	fetcher := services.NewSafeFetcher(fetchTimeout)
	model := replicate.NewClient(cfg.ReplicateBaseURL, cfg.ReplicateAPIToken)
	advisor := llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	mail := mailer.NewClient(resendBaseURL, cfg.ResendAPIKey, cfg.MailFrom)
	payments := checkout.NewClient(checkout.Config{
		SecretKey:  cfg.StripeSecretKey,
		PriceID:    cfg.StripePriceID,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})

	generation := services.NewGenerationService(store.credits, store.blobs, model, cfg.ReplicateModel, advisor, fetcher, catalog, runner, collector)
	credits := services.NewCreditsService(store.credits, cfg.StripeCreditsPack)
	storage := services.NewStorageService(store.blobs, store.downloads, runner)

	router := handlers.NewRouter(handlers.RouterConfig{
		Health: handlers.NewHealthHandler(cfg.BlobBackend, map[string]handlers.Provider{
			"replicate": model,
			"openai":    advisor,
			"resend":    mail,
			"stripe":    payments,
		}),
		Upload:   handlers.NewUploadHandler(services.NewUploadService(store.blobs, signer, cfg.BaseURL, cfg.MaxUploadBytes, collector), store.blobs),
		Generate: handlers.NewGenerateHandler(generation),
		Credits:  handlers.NewCreditsHandler(credits),
		Checkout: handlers.NewCheckoutHandler(payments, credits),
		Portal:   handlers.NewPortalHandler(services.NewPortalService(store.blobs, cfg.PortalURL)),
		Tips:     handlers.NewTipsHandler(services.NewTipsService(advisor, catalog)),
		PDF: handlers.NewPDFHandler(
			services.NewMailService(mail, store.blobs, runner),
			storage,
			pdfbook.NewBuilder(services.AssetLoader(store.blobs, fetcher)),
		),
		Assets:          handlers.NewAssetsHandler(storage),
		Records:         handlers.NewRecordsHandler(services.NewRecordsService(store.records)),
		Signer:          signer,
		Metrics:         collector,
		Gatherer:        reg,
		ServeBlobs:      cfg.BlobBackend == "memory",
		RateLimit:       cfg.RateLimitLimit,
		RateLimitPeriod: cfg.RateLimitPeriod,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Log.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"blobs":       cfg.BlobBackend,
		"replicate":   model.Configured(),
		"openai":      advisor.Configured(),
		"stripe":      payments.Configured(),
		"resend":      mail.Configured(),
	}).Info("Server starting")

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	return serveGracefully(ctx, server, listener, runner, shutdownTimeout)
}

type drainer interface {
	Wait(ctx context.Context) error
}

// serveGracefully serves until ctx is done, then stops accepting requests,
// waits for in-flight ones and drains background tasks before returning.
// Callers may close shared resources once it returns.
func serveGracefully(ctx context.Context, server *http.Server, listener net.Listener, tasks drainer, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("Failed to stop HTTP server")
		}
		if err := tasks.Wait(shutdownCtx); err != nil {
			logger.Log.WithError(err).Warn("Background tasks still running at shutdown")
		}
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-done
	logger.Log.Info("Server stopped")
	return nil
}
