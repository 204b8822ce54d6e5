package supabase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"photolineart-backend/internal/models"
)

// RecordClient appends rows through the PostgREST API for tables that are
// insert-only.
type RecordClient struct {
	client *Client
}

func NewRecordClient(client *Client) *RecordClient {
	return &RecordClient{client: client}
}

func (r *RecordClient) InsertContactMessage(ctx context.Context, msg models.ContactMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.client.insert("contact_messages", msg)
}

func (r *RecordClient) InsertRun(ctx context.Context, run models.RunLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return r.client.insert("runs", run)
}
