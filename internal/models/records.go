package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type CreditsRow struct {
	Email            string       `db:"email"`
	FreeUsedAt       sql.NullTime `db:"free_used_at"`
	CreditsRemaining int          `db:"credits_remaining"`
	TotalPurchased   int          `db:"total_purchased"`
	LastPurchaseAt   sql.NullTime `db:"last_purchase_at"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r *CreditsRow) FreeTrialAvailable() bool {
	return !r.FreeUsedAt.Valid
}

type ContactMessage struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type RunLog struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email,omitempty"`
	Context    string    `json:"context,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	LineArtURL string    `json:"line_art_url,omitempty"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type DownloadRecord struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	URL       string    `db:"url"`
	Kind      string    `db:"kind"`
	CreatedAt time.Time `db:"created_at"`
}
