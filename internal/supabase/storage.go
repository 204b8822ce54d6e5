package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
)

// StorageClient is the Supabase Storage implementation of blob.Store. The
// bucket is expected to be public so manifest and image URLs can be shared.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var _ blob.Store = (*StorageClient)(nil)

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) (*StorageClient, error) {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	if baseURL == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("supabase url and service role key are required")
	}
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

func (s *StorageClient) Put(ctx context.Context, pathname string, data []byte, contentType string) (blob.Object, error) {
	if err := ctx.Err(); err != nil {
		return blob.Object{}, err
	}
	pathname = blob.CleanPath(pathname)
	if pathname == "" {
		return blob.Object{}, apperror.Validation("pathname is required")
	}

	upsert := true
	cacheControl := "3600"
	if strings.HasSuffix(pathname, ".json") || strings.HasSuffix(pathname, ".csv") {
		// manifests and logs are overwritten in place
		cacheControl = "0"
	}
	_, err := s.client.UploadFile(s.bucket, pathname, bytes.NewReader(data), storage.FileOptions{
		ContentType:  &contentType,
		Upsert:       &upsert,
		CacheControl: &cacheControl,
	})
	if err != nil {
		return blob.Object{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return blob.Object{
		Pathname:    pathname,
		URL:         s.PublicURL(pathname),
		ContentType: contentType,
		Size:        int64(len(data)),
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func (s *StorageClient) Get(ctx context.Context, pathname string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, blob.CleanPath(pathname))
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}

func (s *StorageClient) Delete(ctx context.Context, pathnames ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(pathnames) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(pathnames))
	for _, p := range pathnames {
		if c := blob.CleanPath(p); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if _, err := s.client.RemoveFile(s.bucket, cleaned); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

// List returns the objects directly under prefix. Supabase lists one folder
// level at a time, so prefix should name a folder.
func (s *StorageClient) List(ctx context.Context, prefix string) ([]blob.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folder := strings.TrimSuffix(blob.CleanPath(prefix), "/")
	files, err := s.client.ListFiles(s.bucket, folder, storage.FileSearchOptions{
		Limit: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	out := make([]blob.Object, 0, len(files))
	for _, f := range files {
		// folders come back without an id
		if f.Id == "" {
			continue
		}
		p := f.Name
		if folder != "" {
			p = folder + "/" + f.Name
		}
		obj := blob.Object{Pathname: p, URL: s.PublicURL(p)}
		if meta, ok := f.Metadata.(map[string]interface{}); ok {
			if ct, ok := meta["mimetype"].(string); ok {
				obj.ContentType = ct
			}
			if size, ok := meta["size"].(float64); ok {
				obj.Size = int64(size)
			}
		}
		if ts, err := time.Parse(time.RFC3339, f.UpdatedAt); err == nil {
			obj.UpdatedAt = ts
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *StorageClient) PublicURL(pathname string) string {
	return s.publicPrefix() + blob.CleanPath(pathname)
}

func (s *StorageClient) PathFromURL(rawURL string) (string, bool) {
	return blob.PathFromPublicURL(rawURL, s.publicPrefix())
}

func (s *StorageClient) publicPrefix() string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/", s.baseURL, s.bucket)
}

func isNotFound(err error) bool {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		if storageErr.Status == http.StatusNotFound {
			return true
		}
		msg := strings.ToLower(storageErr.Message)
		return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
	}
	return false
}
