package services

import (
	"context"
	"errors"
	"sync"

	"github.com/learnhub/apiserver/internal/storage"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/types"
)

const testCDN = "https://cdn.test"

// recordingStore wraps the in-memory storage backend and counts calls.
type recordingStore struct {
	*storage.Storage
	backend   *storage.MemoryBackend
	uploads   []storage.Object
	deletes   []string
	uploadErr error
}

func newRecordingStore() *recordingStore {
	backend := storage.NewMemoryBackend("test")
	return &recordingStore{Storage: storage.NewStorage(backend, testCDN), backend: backend}
}

func (r *recordingStore) Upload(ctx context.Context, prefix string, file types.FileUpload) (storage.Object, error) {
	if r.uploadErr != nil {
		return storage.Object{}, r.uploadErr
	}
	obj, err := r.Storage.Upload(ctx, prefix, file)
	if err == nil {
		r.uploads = append(r.uploads, obj)
	}
	return obj, err
}

func (r *recordingStore) Delete(ctx context.Context, key string) error {
	r.deletes = append(r.deletes, key)
	return r.Storage.Delete(ctx, key)
}

type published struct {
	eventType string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{eventType, payload})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

type mapCache struct {
	items       map[string]types.CourseDetail
	gets        int
	invalidated []string
	err         error
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]types.CourseDetail)}
}

func (c *mapCache) Get(_ context.Context, id string) (types.CourseDetail, bool, error) {
	c.gets++
	if c.err != nil {
		return types.CourseDetail{}, false, c.err
	}
	detail, ok := c.items[id]
	return detail, ok, nil
}

func (c *mapCache) Set(_ context.Context, detail types.CourseDetail) error {
	if c.err != nil {
		return c.err
	}
	c.items[detail.ID] = detail
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	delete(c.items, id)
	return c.err
}

// racingUsers hides existing emails from the pre-check, as if another
// request inserted the same email in between.
type racingUsers struct {
	UserRepository
}

func (racingUsers) GetByEmail(context.Context, string) (types.User, error) {
	return types.User{}, store.ErrNotFound
}

// brokenCourses fails every write.
type brokenCourses struct {
	CourseRepository
}

var errDatabaseDown = errors.New("database down")

func (brokenCourses) Create(context.Context, types.Course) (types.Course, error) {
	return types.Course{}, errDatabaseDown
}
