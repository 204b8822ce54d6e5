package blob

import (
	"context"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Pathname    string    `json:"pathname"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Store is the blob storage the service writes artifacts to. Get returns an
// error satisfying apperror.IsNotFound when the pathname does not exist.
type Store interface {
	Put(ctx context.Context, pathname string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, pathname string) ([]byte, error)
	Delete(ctx context.Context, pathnames ...string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	PublicURL(pathname string) string
	// PathFromURL reports the pathname behind a public URL of this store.
	PathFromURL(rawURL string) (string, bool)
}
