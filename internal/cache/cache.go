package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// Cache holds the published war state together with its pre-serialized JSON.
// The state is only ever replaced as a whole under the write lock.
type Cache struct {
	mu        sync.RWMutex
	state     model.WarState
	data      []byte
	etag      string
	updatedAt time.Time
	streams   map[string]model.StreamStatus
}

func New() *Cache {
	return &Cache{streams: make(map[string]model.StreamStatus)}
}

// State returns the current state. Slices and maps are shared with the cache
// and must be treated as read-only.
func (c *Cache) State() model.WarState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Update builds the next state from the current one and publishes it in one swap.
// If serialization fails nothing is published.
func (c *Cache) Update(fn func(model.WarState) model.WarState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.state)
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	c.state = next
	c.data = data
	c.etag = etag(data)
	c.updatedAt = time.Now()
	return nil
}

// Get returns the serialized state and its ETag, or nil if nothing was published yet.
func (c *Cache) Get() ([]byte, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return nil, ""
	}
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out, c.etag
}

// UpdatedAt returns the last time the state was published.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Select sets the selected planet if it exists in the catalog.
func (c *Cache) Select(index int) (bool, error) {
	found := false
	err := c.Update(func(s model.WarState) model.WarState {
		if _, ok := s.PlanetByIndex(index); ok {
			found = true
			s.SelectedPlanet = &index
		}
		return s
	})
	return found && err == nil, err
}

func (c *Cache) SetStreamStatus(name string, st model.StreamStatus) {
	c.mu.Lock()
	c.streams[name] = st
	c.mu.Unlock()
}

// Streams returns a copy of every stream's last reported status.
func (c *Cache) Streams() map[string]model.StreamStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.StreamStatus, len(c.streams))
	for k, v := range c.streams {
		out[k] = v
	}
	return out
}

func etag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
