package node

import (
	"context"
	"sync"
)

// Cache is the in-memory node name cache, optionally write-through to a
// Repository so learned names survive restarts.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Cache struct {
	mu    sync.RWMutex
	names map[string]Names

	// repo is optional; nil means in-memory only.
	repo Repository

	// logger for persistence errors (optional, set via SetLogger).
	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// NewCache creates a name cache backed by the given repository.
// Pass nil for an in-memory-only cache.
func NewCache(repo Repository) *Cache {
	return &Cache{
		names: make(map[string]Names),
		repo:  repo,
	}
}

// SetLogger sets a logger for persistence warnings.
func (c *Cache) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Load hydrates the cache from the repository.
// Call once at startup, before the pipeline starts.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If the repository read fails
func (c *Cache) Load(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}

	stored, err := c.repo.All(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.names = stored
	c.mu.Unlock()

	return nil
}

// DisplayName returns the best available name for a node:
// long name, else short name, else the id itself.
func (c *Cache) DisplayName(id string) string {
	c.mu.RLock()
	n, ok := c.names[id]
	c.mu.RUnlock()

	if ok {
		if n.Long != "" {
			return n.Long
		}
		if n.Short != "" {
			return n.Short
		}
	}
	return id
}

// Update merges newly learned names for a node into the cache and
// persists the merged result. Empty fields in names leave the cached
// value untouched, so a nodeinfo packet carrying only a short name does
// not erase a previously learned long name.
//
// Persistence failures are logged and swallowed: the cache stays usable
// in memory even when the database is unhappy.
func (c *Cache) Update(ctx context.Context, id string, names Names) {
	if id == "" || (names == Names{}) {
		return
	}

	c.mu.Lock()
	merged := c.names[id].merge(names)
	c.names[id] = merged
	logger := c.logger
	c.mu.Unlock()

	if c.repo == nil {
		return
	}
	if err := c.repo.Upsert(ctx, id, merged); err != nil {
		if logger != nil {
			logger.Warn("failed to persist node names", "node_id", id, "error", err)
		}
	}
}

// Len returns the number of nodes with cached names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
