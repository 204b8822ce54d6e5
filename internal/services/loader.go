package services

import (
	"context"

	"photolineart-backend/internal/blob"
)

// AssetLoader reads images referenced by manifest items. URLs of our own
// store are read directly; anything else goes through the SSRF-safe fetcher.
func AssetLoader(store blob.Store, fetcher ImageFetcher) func(ctx context.Context, rawURL string) ([]byte, error) {
	return func(ctx context.Context, rawURL string) ([]byte, error) {
		if pathname, ok := store.PathFromURL(rawURL); ok {
			return store.Get(ctx, pathname)
		}
		return fetcher.Fetch(ctx, rawURL)
	}
}
