package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/supabase"
)

type CreditsService struct {
	store          CreditsStore
	creditsPerPack int
}

func NewCreditsService(store CreditsStore, creditsPerPack int) *CreditsService {
	if creditsPerPack <= 0 {
		creditsPerPack = 1
	}
	return &CreditsService{store: store, creditsPerPack: creditsPerPack}
}

// Lookup reports the credit state for email. An unknown email reads as a
// fresh account without creating a row.
func (s *CreditsService) Lookup(ctx context.Context, email string) (*models.CreditsResponse, error) {
	row, err := s.store.GetCredits(ctx, email)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to load credits")
	}

	resp := &models.CreditsResponse{Email: supabase.NormalizeEmail(email)}
	if row == nil {
		return resp, nil
	}
	resp.FreeTrialUsed = !row.FreeTrialAvailable()
	resp.CreditsRemaining = row.CreditsRemaining
	resp.TotalPurchased = row.TotalPurchased
	if row.LastPurchaseAt.Valid {
		t := row.LastPurchaseAt.Time
		resp.LastPurchaseAt = &t
	}
	return resp, nil
}

// Fulfill grants the credits bought in a completed checkout. Stripe may
// deliver the same session more than once; only the first delivery adds
// credits and the returned bool reports whether this one did.
func (s *CreditsService) Fulfill(ctx context.Context, sessionID, email string, packs int) (*models.CreditsRow, bool, error) {
	if sessionID == "" {
		return nil, false, apperror.Validation("checkout session has no id")
	}
	if email == "" {
		return nil, false, apperror.Validation("checkout session has no customer email")
	}
	if packs <= 0 {
		packs = 1
	}

	credits := packs * s.creditsPerPack
	row, applied, err := s.store.FulfillCheckout(ctx, sessionID, email, credits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fulfill checkout: %w", err)
	}

	fields := logrus.Fields{
		"session_id": sessionID,
		"email":      row.Email,
		"balance":    row.CreditsRemaining,
	}
	if !applied {
		logger.Log.WithFields(fields).Warn("Checkout session already fulfilled")
		return row, false, nil
	}
	fields["credits"] = credits
	logger.Log.WithFields(fields).Info("Credits purchased")
	return row, true, nil
}

func (s *CreditsService) CreditsPerPack() int {
	return s.creditsPerPack
}
