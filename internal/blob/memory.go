package blob

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"photolineart-backend/internal/apperror"
)

type memoryObject struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// MemoryStore keeps blobs in process memory. Public URLs point at the
// server's own GET /api/blob/ route.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (m *MemoryStore) Put(ctx context.Context, pathname string, data []byte, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	pathname = CleanPath(pathname)
	if pathname == "" {
		return Object{}, apperror.Validation("pathname is required")
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	now := time.Now().UTC()

	m.mu.Lock()
	m.objects[pathname] = memoryObject{data: buf, contentType: contentType, updatedAt: now}
	m.mu.Unlock()

	return Object{
		Pathname:    pathname,
		URL:         m.PublicURL(pathname),
		ContentType: contentType,
		Size:        int64(len(buf)),
		UpdatedAt:   now,
	}, nil
}

func (m *MemoryStore) Get(ctx context.Context, pathname string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	obj, ok := m.objects[CleanPath(pathname)]
	m.mu.RUnlock()
	if !ok {
		return nil, apperror.ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// ContentType returns the stored content type of pathname.
func (m *MemoryStore) ContentType(pathname string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[CleanPath(pathname)]
	return obj.contentType, ok
}

func (m *MemoryStore) Delete(ctx context.Context, pathnames ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pathnames {
		delete(m.objects, CleanPath(p))
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Object
	for p, obj := range m.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, Object{
			Pathname:    p,
			URL:         m.PublicURL(p),
			ContentType: obj.contentType,
			Size:        int64(len(obj.data)),
			UpdatedAt:   obj.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pathname < out[j].Pathname })
	return out, nil
}

func (m *MemoryStore) PublicURL(pathname string) string {
	return m.baseURL + "/api/blob/" + CleanPath(pathname)
}

func (m *MemoryStore) PathFromURL(rawURL string) (string, bool) {
	return PathFromPublicURL(rawURL, m.baseURL+"/api/blob/")
}

// PathFromPublicURL strips a store's public URL prefix, ignoring any query.
func PathFromPublicURL(rawURL, prefix string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	s := u.String()
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	p, err := url.PathUnescape(strings.TrimPrefix(s, prefix))
	if err != nil {
		return "", false
	}
	p = CleanPath(p)
	return p, p != ""
}
