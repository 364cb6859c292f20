package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// LoadFunc produces a freshly resolved Set, e.g. from a directory or URL.
type LoadFunc func(ctx context.Context) (*Set, error)

// Cache holds the current schema Set and republishes it on reload.
// Consumers that derive state from the schemas (such as the blueprint
// factory) subscribe via Watch and invalidate themselves in bulk.
type Cache struct {
	load  LoadFunc
	watch chan *Set
	mu    sync.RWMutex
	set   *Set
}

// NewCache creates a Cache backed by the given loader. Call Init before use.
func NewCache(load LoadFunc) *Cache {
	return &Cache{
		load:  load,
		watch: make(chan *Set, 1),
	}
}

// Init performs the initial load.
func (c *Cache) Init(ctx context.Context) error {
	if err := c.Reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	return nil
}

// Reload replaces the whole Set and notifies watchers.
func (c *Cache) Reload(ctx context.Context) error {
	set, err := c.load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.set = set
	c.mu.Unlock()

	select {
	case c.watch <- set:
	default:
		// watcher is behind; it will pick up the next snapshot
	}
	return nil
}

// Snapshot returns the current Set.
func (c *Cache) Snapshot() *Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// Watch returns a channel receiving the new Set after every reload.
func (c *Cache) Watch() <-chan *Set {
	return c.watch
}

// Close stops notifying watchers.
func (c *Cache) Close() {
	close(c.watch)
}

// Handler registers an endpoint on the provided mux that serves the cached
// schema set as JSON.
func (c *Cache) Handler(mux *http.ServeMux, path ...string) {
	endpoint := "/api/schema"
	if len(path) > 0 && path[0] != "" {
		endpoint = path[0]
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshot().Datasets()); err != nil {
			http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		}
	})
}
