package automation

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// Cache holds the compiled RuleSet and reloads it from the store once it is
// older than ttl. A failed reload keeps serving the previous set.
type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger

	mu       sync.Mutex
	set      *RuleSet
	loadedAt time.Time
}

func NewCache(store Store, ttl time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Rules returns the current compiled set, reloading when stale.
func (c *Cache) Rules(ctx context.Context) (*RuleSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.set, nil
	}
	rules, err := c.store.ListActive(ctx)
	if err != nil {
		if c.set != nil {
			c.logger.Warn("automation rule reload failed, serving previous set", "error", err)
			return c.set, nil
		}
		return nil, err
	}
	c.set = Compile(rules, c.logger)
	c.loadedAt = c.now()
	c.logger.Debug("automation rules loaded", "count", c.set.Len())
	return c.set, nil
}

// Invalidate forces the next Rules call to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
