// Package mailer sends transactional email through the Resend HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.resend.com/"

type Attachment struct {
	FileName string
	Content  []byte
}

type Message struct {
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	retryDelay time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resend returned status %d: %s", e.StatusCode, e.Body)
}

func NewClient(baseURL, apiKey, from string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: time.Second,
	}
}

func (c *Client) WithRetryDelay(d time.Duration) *Client {
	c.retryDelay = d
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type attachmentPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type sendRequest struct {
	From        string              `json:"from"`
	To          []string            `json:"to"`
	Subject     string              `json:"subject"`
	HTML        string              `json:"html,omitempty"`
	Text        string              `json:"text,omitempty"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers msg and returns the provider message id. Server errors are
// retried once.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("message has no recipients")
	}

	payload := sendRequest{
		From:    c.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, attachmentPayload{
			Filename: a.FileName,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	var id string
	for attempt := 0; attempt < 2; attempt++ {
		id, err = c.sendOnce(ctx, body)
		if err == nil {
			return id, nil
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode < 500 || attempt == 1 {
			break
		}
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", err
}

func (c *Client) sendOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out sendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.ID, nil
}
