package revalidate

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Invalidator removes rendered artifacts from the live cache so the
// next request regenerates them.
type Invalidator interface {
	InvalidateTag(ctx context.Context, tag string) (int, error)
	InvalidatePath(ctx context.Context, path string) (int, error)
}

const (
	cacheTagPrefix  = "pressgate:cache:tag:"
	cachePagePrefix = "pressgate:cache:page:"
)

type redisInvalidator struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisInvalidator constructs an Invalidator over the deployed
// artifact cache: each tag key is a set of page keys.
func NewRedisInvalidator(addr, password string, db int) (Invalidator, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisInvalidator{client: client, timeout: 2 * time.Second}, nil
}

func (r *redisInvalidator) InvalidateTag(ctx context.Context, tag string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	setKey := cacheTagPrefix + tag
	members, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	keys := append(members, setKey)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(members), nil
}

func (r *redisInvalidator) InvalidatePath(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	deleted, err := r.client.Del(ctx, cachePagePrefix+path).Result()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// MemoryInvalidator is the single-instance fallback used when no
// shared cache is configured, and the fake used in tests.
type MemoryInvalidator struct {
	mu    sync.Mutex
	tags  map[string]map[string]struct{}
	pages map[string]struct{}
}

// NewMemoryInvalidator constructs an empty in-memory cache index.
func NewMemoryInvalidator() *MemoryInvalidator {
	return &MemoryInvalidator{
		tags:  make(map[string]map[string]struct{}),
		pages: make(map[string]struct{}),
	}
}

// Put records a cached page under the given tags.
func (m *MemoryInvalidator) Put(path string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = struct{}{}
	for _, tag := range tags {
		if m.tags[tag] == nil {
			m.tags[tag] = make(map[string]struct{})
		}
		m.tags[tag][path] = struct{}{}
	}
}

// Cached reports whether a page is still present.
func (m *MemoryInvalidator) Cached(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pages[path]
	return ok
}

func (m *MemoryInvalidator) InvalidateTag(_ context.Context, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := m.tags[tag]
	for path := range paths {
		delete(m.pages, path)
	}
	delete(m.tags, tag)
	return len(paths), nil
}

func (m *MemoryInvalidator) InvalidatePath(_ context.Context, path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[path]; !ok {
		return 0, nil
	}
	delete(m.pages, path)
	return 1, nil
}
