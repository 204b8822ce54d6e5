package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"photolineart-backend/internal/models"
)

const creditsColumns = `email, free_used_at, credits_remaining, total_purchased, last_purchase_at, created_at, updated_at`

// DatabaseClient talks to the Supabase Postgres instance directly for the
// tables that need conditional updates.
type DatabaseClient struct {
	db *sqlx.DB
}

func NewDatabaseClient(db *sqlx.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetOrCreateCredits returns the credits row for email, creating an empty one
// on first lookup.
func (d *DatabaseClient) GetOrCreateCredits(ctx context.Context, email string) (*models.CreditsRow, error) {
	var row models.CreditsRow
	err := d.db.GetContext(ctx, &row, `
		INSERT INTO credits (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET updated_at = credits.updated_at
		RETURNING `+creditsColumns, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to get credits: %w", err)
	}
	return &row, nil
}

// MarkFreeUsed consumes the free trial. It reports false when the trial had
// already been used.
func (d *DatabaseClient) MarkFreeUsed(ctx context.Context, email string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE credits
		SET free_used_at = NOW(), updated_at = NOW()
		WHERE email = $1 AND free_used_at IS NULL
	`, NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to mark free trial used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark free trial used: %w", err)
	}
	return n > 0, nil
}

// DecrementCredits consumes one paid credit, never going below zero, and
// returns the remaining balance.
func (d *DatabaseClient) DecrementCredits(ctx context.Context, email string) (int, error) {
	var remaining int
	err := d.db.GetContext(ctx, &remaining, `
		UPDATE credits
		SET credits_remaining = GREATEST(credits_remaining - 1, 0), updated_at = NOW()
		WHERE email = $1
		RETURNING credits_remaining
	`, NormalizeEmail(email))
	if err != nil {
		return 0, fmt.Errorf("failed to decrement credits: %w", err)
	}
	return remaining, nil
}

// FulfillCheckout claims sessionID and adds the purchased credits in one
// transaction. A session that was already claimed leaves the balance as is.
func (d *DatabaseClient) FulfillCheckout(ctx context.Context, sessionID, email string, credits int) (*models.CreditsRow, bool, error) {
	if credits <= 0 {
		return nil, false, fmt.Errorf("credits must be positive")
	}
	email = NormalizeEmail(email)

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO checkout_sessions (session_id, email, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, email, credits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim checkout session: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim checkout session: %w", err)
	}

	var row models.CreditsRow
	if claimed == 0 {
		err = tx.GetContext(ctx, &row, `
			INSERT INTO credits (email)
			VALUES ($1)
			ON CONFLICT (email) DO UPDATE SET updated_at = credits.updated_at
			RETURNING `+creditsColumns, email)
	} else {
		err = tx.GetContext(ctx, &row, `
			INSERT INTO credits (email, credits_remaining, total_purchased, last_purchase_at)
			VALUES ($1, $2, $2, NOW())
			ON CONFLICT (email) DO UPDATE SET
				credits_remaining = credits.credits_remaining + $2,
				total_purchased = credits.total_purchased + $2,
				last_purchase_at = NOW(),
				updated_at = NOW()
			RETURNING `+creditsColumns, email, credits)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to add purchased credits: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit checkout transaction: %w", err)
	}
	return &row, claimed > 0, nil
}

func (d *DatabaseClient) GetCredits(ctx context.Context, email string) (*models.CreditsRow, error) {
	var row models.CreditsRow
	err := d.db.GetContext(ctx, &row, `SELECT `+creditsColumns+` FROM credits WHERE email = $1`, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credits: %w", err)
	}
	return &row, nil
}

func (d *DatabaseClient) RecordDownload(ctx context.Context, rec models.DownloadRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO downloads (id, email, url, kind)
		VALUES (:id, :email, :url, :kind)
	`, rec)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}
