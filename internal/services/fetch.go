package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

const maxFetchBytes = 25 * 1024 * 1024

// SafeFetcher downloads user-supplied image URLs through a client that
// refuses private, loopback and link-local destinations.
type SafeFetcher struct {
	client *http.Client
}

func NewSafeFetcher(timeout time.Duration) *SafeFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &SafeFetcher{client: safeurl.Client(config).Client}
}

func (f *SafeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxFetchBytes)
	}
	return data, nil
}
