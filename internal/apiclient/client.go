// Package apiclient talks to a running PhotoLineArt server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"photolineart-backend/internal/models"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable reports whether err is worth another attempt: transport
// failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// Generation polls the model for up to two minutes server side.
			Timeout: 150 * time.Second,
		},
	}
}

// WithHTTPClient swaps the transport, used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
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
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var envelope models.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

func (c *Client) Health(ctx context.Context) error {
	var resp models.HealthResponse
	return c.doJSON(ctx, http.MethodGet, "/health", nil, &resp)
}

func (c *Client) CreateUploadTarget(ctx context.Context, req models.UploadTargetRequest) (*models.UploadTargetResponse, error) {
	var resp models.UploadTargetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/blob-upload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PutBlob uploads data to a signed upload URL, reporting bytes sent.
func (c *Client) PutBlob(ctx context.Context, uploadURL string, data []byte, contentType string, progress func(sent, total int64)) (*models.BlobPutResponse, error) {
	if _, err := url.ParseRequestURI(uploadURL); err != nil {
		return nil, fmt.Errorf("invalid upload url: %w", err)
	}

	body := &progressReader{r: bytes.NewReader(data), total: int64(len(data)), report: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", contentType)

	var resp models.BlobPutResponse
	if err := c.send(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	var resp models.GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai-lineart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Credits(ctx context.Context, email string) (*models.CreditsResponse, error) {
	var resp models.CreditsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/credits?email="+url.QueryEscape(email), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) InitPortal(ctx context.Context, title string) (*models.PortalResponse, error) {
	var resp models.PortalResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/portal-init", models.PortalInitRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdatePortal(ctx context.Context, req models.PortalUpdateRequest) (*models.PortalResponse, error) {
	var resp models.PortalResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/portal-update", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) EnhanceTips(ctx context.Context, items []models.ManifestItem) ([]models.ManifestItem, error) {
	var resp models.TipsEnhanceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/tips-enhance", models.TipsEnhanceRequest{Items: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) CreateBundle(ctx context.Context, req models.BundleCreateRequest) (*models.PortalResponse, error) {
	var resp models.PortalResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/bundles-create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetBundle(ctx context.Context, id string) (*models.PortalManifest, error) {
	var resp models.PortalManifest
	if err := c.doJSON(ctx, http.MethodGet, "/api/bundles-get?id="+url.QueryEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BuildPDF renders items server side and returns the PDF bytes.
func (c *Client) BuildPDF(ctx context.Context, req models.BuildPDFRequest) ([]byte, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/build-pdf"), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.report != nil {
			p.report(p.sent, p.total)
		}
	}
	return n, err
}
