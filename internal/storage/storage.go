package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/learnhub/apiserver/config"
	"github.com/learnhub/apiserver/types"
)

// Key prefixes for uploaded media.
const (
	ProfilePrefix   = "profiles"
	ThumbnailPrefix = "course"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Object is a stored upload and the public URL it is served from.
type Object struct {
	Key string
	URL string
}

// Storage wraps an ObjectStorage backend and maps keys to CDN URLs.
type Storage struct {
	backend ObjectStorage
	cdnBase string
	now     func() time.Time
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage, cdnBase string) *Storage {
	return &Storage{
		backend: backend,
		cdnBase: strings.TrimRight(cdnBase, "/"),
		now:     time.Now,
	}
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.ObjectStorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "minio":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	case "memory":
		backend = NewMemoryBackend("local")
	default:
		return nil, fmt.Errorf("unsupported object storage backend %q", cfg.Backend)
	}
	if cfg.CDNBaseURL == "" {
		return nil, errors.New("cdn base url is required")
	}
	return NewStorage(backend, cfg.CDNBaseURL), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Upload stores file under prefix and returns its key and public URL.
func (s *Storage) Upload(ctx context.Context, prefix string, file types.FileUpload) (Object, error) {
	key := ObjectKey(prefix, file.Filename, s.now())
	if err := s.backend.Put(ctx, key, file.Data, file.ContentType); err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Object{Key: key, URL: s.PublicURL(key)}, nil
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// PublicURL returns the CDN URL an object is served from. Each key segment
// is path-escaped; the key itself stays as stored.
func (s *Storage) PublicURL(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.cdnBase + "/" + strings.Join(segments, "/")
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ObjectKey builds "<prefix>/<unix millis>-<base name>". Whitespace in the
// base name is replaced with dashes.
func ObjectKey(prefix, filename string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	base = strings.Join(strings.Fields(base), "-")
	return fmt.Sprintf("%s/%d-%s", prefix, at.UnixMilli(), base)
}

// MemoryBackend keeps objects in memory. It serves the memory store mode.
type MemoryBackend struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func NewMemoryBackend(bucket string) *MemoryBackend {
	return &MemoryBackend{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *MemoryBackend) EnsureBucket(context.Context) error { return nil }

func (m *MemoryBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(data)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Has reports whether key is stored.
func (m *MemoryBackend) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *MemoryBackend) Bucket() string { return m.bucket }
