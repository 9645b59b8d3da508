package env

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/earningsedge/internal/s0_data"
)

// PanelLoader loads the panel stored at path
type PanelLoader func(path string) (*s0_data.Panel, error)

// PanelCache loads each panel path at most once and hands the same read-only
// panel to every caller. Entries are never evicted or invalidated; a panel
// rebuilt on disk is only seen by a new cache.
type PanelCache struct {
	loader PanelLoader
	group  singleflight.Group

	mu     sync.RWMutex
	panels map[string]*s0_data.Panel
}

// NewPanelCache creates a cache backed by loader (s0_data.ReadPanel when nil)
func NewPanelCache(loader PanelLoader) *PanelCache {
	if loader == nil {
		loader = s0_data.ReadPanel
	}
	return &PanelCache{
		loader: loader,
		panels: make(map[string]*s0_data.Panel),
	}
}

// Get returns the panel for path, loading it on first use.
// Concurrent first calls share one load; failed loads are not cached.
func (c *PanelCache) Get(path string) (*s0_data.Panel, error) {
	c.mu.RLock()
	panel, ok := c.panels[path]
	c.mu.RUnlock()
	if ok {
		return panel, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.panels[path]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded, err := c.loader(path)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.panels[path] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*s0_data.Panel), nil
}

// Len returns the number of cached panels
func (c *PanelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.panels)
}
