// Package schemacache tracks the most recently observed Relation body
// for each rel_id. It is logically single-writer (one replication or
// consume loop updates it); the read-write lock exists only so a
// metrics or control-loop goroutine can Snapshot it concurrently.
package schemacache

import (
	"sync"

	"github.com/streamkeep/pgcdc/pkg/event"
)

type Cache struct {
	mu    sync.RWMutex
	table map[uint32]event.RelationBody
}

func New() *Cache {
	return &Cache{table: make(map[uint32]event.RelationBody)}
}

// Update overwrites (or creates) the cached entry for rel.RelID.
func (c *Cache) Update(rel event.RelationBody) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table[rel.RelID] = rel
}

// Get returns the cached Relation body for relID, if known.
func (c *Cache) Get(relID uint32) (event.RelationBody, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rel, ok := c.table[relID]
	return rel, ok
}

// Reset discards every cached entry. Called on reconnect, before the
// replication session's own Relation messages repopulate it.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = make(map[uint32]event.RelationBody)
}

// Snapshot returns a copy of the full rel_id -> RelationBody map, safe
// for a concurrent reader (e.g. the control loop) to range over.
func (c *Cache) Snapshot() map[uint32]event.RelationBody {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint32]event.RelationBody, len(c.table))
	for k, v := range c.table {
		out[k] = v
	}
	return out
}

// Len reports the number of cached relations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}
