// Package reportcache caches rendered task reports so repeated report reads
// between submissions do not rebuild the aggregation. Any submission for the
// task invalidates its entry.
package reportcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/NethermindEth/agentarena-arbiter/internal/triage"
)

// Cache is a TTL-bound in-memory report cache keyed by task ID.
type Cache struct {
	cache *gocache.Cache
}

// New creates a report cache whose entries expire after ttl. The janitor
// sweeps at the same interval.
func New(ttl time.Duration) *Cache {
	return &Cache{
		cache: gocache.New(ttl, ttl),
	}
}

// Get returns the cached report for a task, if present and unexpired.
func (c *Cache) Get(taskID string) (*triage.TaskReport, bool) {
	if val, found := c.cache.Get(taskID); found {
		return val.(*triage.TaskReport), true
	}
	return nil, false
}

// Set stores a report under the default TTL.
func (c *Cache) Set(taskID string, r *triage.TaskReport) {
	c.cache.SetDefault(taskID, r)
}

// Invalidate drops the task's cached report.
func (c *Cache) Invalidate(taskID string) {
	c.cache.Delete(taskID)
}
