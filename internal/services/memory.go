package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/supabase"
)

// MemoryStore keeps credits and records in process memory. It backs local
// development without a database and the test suites.
type MemoryStore struct {
	mu        sync.Mutex
	credits   map[string]*models.CreditsRow
	sessions  map[string]bool
	contacts  []models.ContactMessage
	runs      []models.RunLog
	downloads []models.DownloadRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credits:  make(map[string]*models.CreditsRow),
		sessions: make(map[string]bool),
	}
}

func (m *MemoryStore) GetOrCreateCredits(ctx context.Context, email string) (*models.CreditsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rowLocked(email), nil
}

func (m *MemoryStore) GetCredits(ctx context.Context, email string) (*models.CreditsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.credits[supabase.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (m *MemoryStore) MarkFreeUsed(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.credits[supabase.NormalizeEmail(email)]
	if !ok {
		return false, fmt.Errorf("credits row not found")
	}
	if row.FreeUsedAt.Valid {
		return false, nil
	}
	row.FreeUsedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	row.UpdatedAt = row.FreeUsedAt.Time
	return true, nil
}

func (m *MemoryStore) DecrementCredits(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.credits[supabase.NormalizeEmail(email)]
	if !ok {
		return 0, fmt.Errorf("credits row not found")
	}
	if row.CreditsRemaining > 0 {
		row.CreditsRemaining--
	}
	row.UpdatedAt = time.Now().UTC()
	return row.CreditsRemaining, nil
}

// AddPurchasedCredits grants credits without a checkout session. Tests use it
// to seed paid balances.
func (m *MemoryStore) AddPurchasedCredits(ctx context.Context, email string, credits int) (*models.CreditsRow, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("credits must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addPurchasedLocked(email, credits), nil
}

func (m *MemoryStore) FulfillCheckout(ctx context.Context, sessionID, email string, credits int) (*models.CreditsRow, bool, error) {
	if credits <= 0 {
		return nil, false, fmt.Errorf("credits must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sessionID] {
		return m.rowLocked(email), false, nil
	}
	m.sessions[sessionID] = true
	return m.addPurchasedLocked(email, credits), true, nil
}

func (m *MemoryStore) rowLocked(email string) *models.CreditsRow {
	key := supabase.NormalizeEmail(email)
	row, ok := m.credits[key]
	if !ok {
		now := time.Now().UTC()
		row = &models.CreditsRow{Email: key, CreatedAt: now, UpdatedAt: now}
		m.credits[key] = row
	}
	copied := *row
	return &copied
}

func (m *MemoryStore) addPurchasedLocked(email string, credits int) *models.CreditsRow {
	key := supabase.NormalizeEmail(email)
	now := time.Now().UTC()
	row, ok := m.credits[key]
	if !ok {
		row = &models.CreditsRow{Email: key, CreatedAt: now}
		m.credits[key] = row
	}
	row.CreditsRemaining += credits
	row.TotalPurchased += credits
	row.LastPurchaseAt = sql.NullTime{Time: now, Valid: true}
	row.UpdatedAt = now
	copied := *row
	return &copied
}

func (m *MemoryStore) RecordDownload(ctx context.Context, rec models.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now().UTC()
	m.downloads = append(m.downloads, rec)
	return nil
}

func (m *MemoryStore) InsertContactMessage(ctx context.Context, msg models.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, msg)
	return nil
}

func (m *MemoryStore) InsertRun(ctx context.Context, run models.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) ContactMessages() []models.ContactMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ContactMessage(nil), m.contacts...)
}

func (m *MemoryStore) Runs() []models.RunLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RunLog(nil), m.runs...)
}

func (m *MemoryStore) Downloads() []models.DownloadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DownloadRecord(nil), m.downloads...)
}
