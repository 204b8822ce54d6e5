package checkout_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/checkout"
)

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "price_123", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "3", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "3", r.PostForm.Get("metadata[packs]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/pay/cs_test_1"}`))
	}))
	defer server.Close()

	client := checkout.NewClient(checkout.Config{
		SecretKey:  "sk_test_123",
		PriceID:    "price_123",
		SuccessURL: "https://photolineart.app/success",
		CancelURL:  "https://photolineart.app/cancel",
		APIBaseURL: server.URL,
	})
	require.True(t, client.Configured())

	sess, err := client.CreateSession("buyer@example.com", 3)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", sess.URL)
}

func TestCreateSession_NotConfigured(t *testing.T) {
	client := checkout.NewClient(checkout.Config{})
	assert.False(t, client.Configured())
	_, err := client.CreateSession("a@example.com", 1)
	assert.ErrorIs(t, err, checkout.ErrNotConfigured)
}

func TestParseEvent(t *testing.T) {
	paid := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"payment_status": "paid",
			"customer_details": {"email": "Buyer@Example.com"},
			"metadata": {"packs": "2"}
		}}
	}`)
	f, err := checkout.ParseEvent(paid)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "cs_1", f.SessionID)
	assert.Equal(t, "Buyer@Example.com", f.Email)
	assert.Equal(t, 2, f.Packs)

	unpaid := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_2","payment_status":"unpaid"}}}`)
	f, err = checkout.ParseEvent(unpaid)
	require.NoError(t, err)
	assert.Nil(t, f)

	other := []byte(`{"type":"invoice.paid","data":{"object":{}}}`)
	f, err = checkout.ParseEvent(other)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = checkout.ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}
