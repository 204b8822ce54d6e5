package mailer_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/mailer"
)

func TestSend_PostsAttachment(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer server.Close()

	client := mailer.NewClient(server.URL, "re_test", "Books <books@example.com>")
	id, err := client.Send(context.Background(), mailer.Message{
		To:          []string{"a@example.com"},
		Subject:     "Your book",
		Text:        "attached",
		Attachments: []mailer.Attachment{{FileName: "book.pdf", Content: []byte("%PDF-1.4")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)

	assert.Equal(t, "Books <books@example.com>", got["from"])
	attachments := got["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]interface{})
	assert.Equal(t, "book.pdf", first["filename"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), first["content"])
}

func TestSend_RetriesServerErrorOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	}))
	defer server.Close()

	client := mailer.NewClient(server.URL, "key", "from@example.com").WithRetryDelay(time.Millisecond)
	id, err := client.Send(context.Background(), mailer.Message{To: []string{"a@example.com"}, Subject: "s"})
	require.NoError(t, err)
	assert.Equal(t, "ok", id)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSend_DoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := mailer.NewClient(server.URL, "key", "from@example.com").WithRetryDelay(time.Millisecond)
	_, err := client.Send(context.Background(), mailer.Message{To: []string{"a@example.com"}, Subject: "s"})

	var statusErr *mailer.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSend_RequiresRecipient(t *testing.T) {
	client := mailer.NewClient("", "key", "from@example.com")
	_, err := client.Send(context.Background(), mailer.Message{Subject: "s"})
	assert.Error(t, err)
	assert.True(t, client.Configured())
	assert.False(t, mailer.NewClient("", "", "").Configured())
}
