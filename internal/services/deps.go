package services

import (
	"context"

	"photolineart-backend/internal/llm"
	"photolineart-backend/internal/mailer"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/palette"
	"photolineart-backend/internal/replicate"
)

// CreditsStore persists per-email credit balances.
type CreditsStore interface {
	GetOrCreateCredits(ctx context.Context, email string) (*models.CreditsRow, error)
	GetCredits(ctx context.Context, email string) (*models.CreditsRow, error)
	MarkFreeUsed(ctx context.Context, email string) (bool, error)
	DecrementCredits(ctx context.Context, email string) (int, error)
	// FulfillCheckout adds purchased credits once per checkout session. It
	// reports false, with the current row, when sessionID was already fulfilled.
	FulfillCheckout(ctx context.Context, sessionID, email string, credits int) (*models.CreditsRow, bool, error)
}

type DownloadRecorder interface {
	RecordDownload(ctx context.Context, rec models.DownloadRecord) error
}

// RecordSink stores append-only business records.
type RecordSink interface {
	InsertContactMessage(ctx context.Context, msg models.ContactMessage) error
	InsertRun(ctx context.Context, run models.RunLog) error
}

// LineArtModel is the generative image model.
type LineArtModel interface {
	Configured() bool
	Run(ctx context.Context, model string, input replicate.Input) (string, *replicate.Prediction, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// TipAdvisor produces semantic tips and tip color enrichment.
type TipAdvisor interface {
	Configured() bool
	Model() string
	GenerateSemanticTips(ctx context.Context, imageURL string, candidates []models.PaletteColor, matches []palette.MatchResult) []models.ColorTip
	EnhanceTipColors(ctx context.Context, tips []models.ColorTip, candidates []models.PaletteColor) ([]llm.TipColors, error)
}

// ImageFetcher downloads a remote image.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Mailer delivers email and returns the provider message id.
type Mailer interface {
	Configured() bool
	Send(ctx context.Context, msg mailer.Message) (string, error)
}
