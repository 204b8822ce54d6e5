package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"photolineart-backend/internal/logger"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultDeadline     = 2 * time.Minute
	maxRetries          = 3
)

// Prediction statuses reported by Replicate.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

var ErrPredictionTimeout = errors.New("prediction did not finish before the deadline")

type Client struct {
	baseURL      string
	apiToken     string
	httpClient   *http.Client
	pollInterval time.Duration
	deadline     time.Duration
	backoffs     []time.Duration
}

// Input is the subset of model inputs the line-art models accept.
type Input struct {
	Prompt       string `json:"prompt"`
	InputImage   string `json:"input_image"`
	OutputFormat string `json:"output_format,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	Seed         *int   `json:"seed,omitempty"`
}

type createPredictionRequest struct {
	Input Input `json:"input"`
}

type Prediction struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output"`
	Error     json.RawMessage `json:"error"`
	Logs      string          `json:"logs"`
	CreatedAt time.Time       `json:"created_at"`
	URLs      struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Body       string
	Op         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to %s: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}

// IsServerError reports whether err is a 5xx response from Replicate.
func IsServerError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= 500
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: DefaultPollInterval,
		deadline:     DefaultDeadline,
		backoffs:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// WithTiming overrides the poll interval, the wait deadline and the retry
// backoffs. Used by tests.
func (c *Client) WithTiming(pollInterval, deadline time.Duration, backoffs ...time.Duration) *Client {
	c.pollInterval = pollInterval
	c.deadline = deadline
	c.backoffs = backoffs
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.apiToken != ""
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) do(ctx context.Context, method, url, op string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody), Op: op}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
	}
	return nil
}

// CreatePrediction submits a prediction against an official model
// ("owner/name").
func (c *Client) CreatePrediction(ctx context.Context, model string, input Input) (*Prediction, error) {
	var prediction Prediction
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, http.MethodPost, c.endpoint("models/"+model+"/predictions"), "create prediction",
			createPredictionRequest{Input: input}, &prediction)
	}, maxRetries)
	if err != nil {
		return nil, err
	}
	if prediction.ID == "" {
		return nil, fmt.Errorf("prediction id is empty in response")
	}
	return &prediction, nil
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var prediction Prediction
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, http.MethodGet, c.endpoint("predictions/"+id), "get prediction", nil, &prediction)
	}, maxRetries)
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

// WaitForPrediction polls until the prediction reaches a terminal status or
// the deadline elapses.
func (c *Client) WaitForPrediction(ctx context.Context, id string) (*Prediction, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	// deadline expiry is a timeout, cancellation by the caller is not
	waitErr := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pollCtx.Err() != nil || strings.Contains(err.Error(), "deadline") {
			return ErrPredictionTimeout
		}
		return err
	}

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			return nil, waitErr(err)
		}

		prediction, err := c.GetPrediction(pollCtx, id)
		if err != nil {
			return nil, waitErr(err)
		}

		logger.Log.WithFields(logrus.Fields{
			"prediction_id": id,
			"status":        prediction.Status,
		}).Debug("Polled prediction")

		switch prediction.Status {
		case StatusSucceeded:
			return prediction, nil
		case StatusFailed, StatusCanceled:
			return nil, fmt.Errorf("prediction %s %s: %s", id, prediction.Status, prediction.ErrorMessage())
		}
	}
}

// Run submits a prediction, waits for it and returns the first output URL.
func (c *Client) Run(ctx context.Context, model string, input Input) (string, *Prediction, error) {
	created, err := c.CreatePrediction(ctx, model, input)
	if err != nil {
		return "", nil, err
	}

	prediction := created
	if created.Status != StatusSucceeded {
		prediction, err = c.WaitForPrediction(ctx, created.ID)
		if err != nil {
			return "", nil, err
		}
	}

	outputURL, err := prediction.OutputURL()
	if err != nil {
		return "", nil, err
	}
	return outputURL, prediction, nil
}

// Download fetches a prediction output file.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := c.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &StatusError{StatusCode: resp.StatusCode, Body: string(body), Op: "download output"}
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read output: %w", err)
		}
		return nil
	}, maxRetries)
	return data, err
}

// OutputURL handles models that return a single URL or a list of URLs.
func (p *Prediction) OutputURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", fmt.Errorf("prediction %s has no output", p.ID)
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil && single != "" {
		return single, nil
	}

	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}

	return "", fmt.Errorf("prediction %s has unexpected output: %s", p.ID, string(p.Output))
}

func (p *Prediction) ErrorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return "unknown error"
	}
	var msg string
	if err := json.Unmarshal(p.Error, &msg); err == nil {
		return msg
	}
	return string(p.Error)
}

// RetryWithBackoff retries fn only while it fails with a 5xx response.
// Client errors and transport failures are returned immediately.
func (c *Client) RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsServerError(err) {
			return err
		}

		lastErr = err
		if i == maxRetries-1 {
			break
		}
		var wait time.Duration
		if i < len(c.backoffs) {
			wait = c.backoffs[i]
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
