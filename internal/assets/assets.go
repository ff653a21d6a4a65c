// Package assets handles asset loading and caching.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by loaders for unknown keys.
var ErrNotFound = errors.New("asset not found")

// Loader produces the value for a key.
type Loader[V any] interface {
	Load(key string) (V, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc[V any] func(key string) (V, error)

func (f LoaderFunc[V]) Load(key string) (V, error) { return f(key) }

// Manager loads assets through a chain of loaders, caching each key after
// its first successful load. Concurrent loads of one key share a single
// loader call.
type Manager[V any] struct {
	loaders []Loader[V]
	cache   *Cache[V]
	group   singleflight.Group
	mu      sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager[V any]() *Manager[V] {
	return &Manager[V]{
		cache: NewCache[V](),
	}
}

// AddLoader adds a loader to the manager.
// Loaders are searched in reverse order (last added = highest priority).
func (m *Manager[V]) AddLoader(l Loader[V]) {
	m.mu.Lock()
	m.loaders = append(m.loaders, l)
	m.mu.Unlock()
}

// Load returns the cached value for key, loading it on a miss.
func (m *Manager[V]) Load(key string) (V, error) {
	// Check cache first
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.cache.peek(key); ok {
			return v, nil
		}
		v, err := m.load(key)
		if err != nil {
			return v, err
		}
		m.cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (m *Manager[V]) load(key string) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero V
	for i := len(m.loaders) - 1; i >= 0; i-- {
		v, err := m.loaders[i].Load(key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return zero, fmt.Errorf("loading %s: %w", key, err)
		}
	}
	return zero, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Cache returns the underlying cache.
func (m *Manager[V]) Cache() *Cache[V] { return m.cache }

// Close drops all loaders and cached values.
func (m *Manager[V]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders = nil
	m.cache.Clear()
}

// Dir loads files below a root directory. Keys use forward slashes and may
// not escape the root.
type Dir string

func (d Dir) Load(key string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("asset path %q escapes root", key)
	}
	data, err := os.ReadFile(filepath.Join(string(d), clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Cache is a simple in-memory cache for loaded assets.
type Cache[V any] struct {
	data map[string]V
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{
		data: make(map[string]V),
	}
}

// Get retrieves an item from cache.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// peek looks up key without touching the stats.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores an item in cache.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
}

// Len returns the number of cached items.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]V)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
