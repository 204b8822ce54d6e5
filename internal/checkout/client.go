// Package checkout creates Stripe checkout sessions for credit packs and
// parses the webhook events that fulfill them.
package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const eventSessionCompleted = "checkout.session.completed"

var ErrNotConfigured = errors.New("stripe is not configured")

type Config struct {
	SecretKey  string
	PriceID    string
	SuccessURL string
	CancelURL  string
	// APIBaseURL overrides the Stripe API endpoint. Used by tests.
	APIBaseURL string
}

type Client struct {
	api *client.API
	cfg Config
}

func NewClient(cfg Config) *Client {
	c := &Client{cfg: cfg}
	if cfg.SecretKey == "" {
		return c
	}

	backendCfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(2)}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
	}
	c.api = &client.API{}
	c.api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.api != nil && c.cfg.PriceID != ""
}

type Session struct {
	ID  string
	URL string
}

// CreateSession starts a hosted checkout for packs credit packs. The email and
// pack count travel in metadata so the webhook can fulfill without a lookup.
func (c *Client) CreateSession(email string, packs int) (*Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if packs <= 0 {
		packs = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(email),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PriceID),
				Quantity: stripe.Int64(int64(packs)),
			},
		},
	}
	params.AddMetadata("email", email)
	params.AddMetadata("packs", strconv.Itoa(packs))

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// Fulfillment is what a paid checkout grants.
type Fulfillment struct {
	SessionID string
	Email     string
	Packs     int
}

// ParseEvent decodes a webhook payload. It returns nil without error for
// events that grant nothing: other event types and unpaid sessions.
//
// TODO: verify the Stripe-Signature header with webhook.ConstructEvent once
// STRIPE_WEBHOOK_SECRET is provisioned; until then a forged payload can
// grant credits.
func ParseEvent(payload []byte) (*Fulfillment, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.Type != eventSessionCompleted {
		return nil, nil
	}
	if event.Data == nil {
		return nil, errors.New("event has no data")
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}

	f := &Fulfillment{SessionID: sess.ID, Email: sessionEmail(&sess), Packs: 1}
	if n, err := strconv.Atoi(sess.Metadata["packs"]); err == nil && n > 0 {
		f.Packs = n
	}
	return f, nil
}

func sessionEmail(sess *stripe.CheckoutSession) string {
	if e := sess.Metadata["email"]; e != "" {
		return e
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	if sess.CustomerEmail != "" {
		return sess.CustomerEmail
	}
	return sess.ClientReferenceID
}
