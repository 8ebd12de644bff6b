package client

import (
	"sync"

	"github.com/meshline/syncd/pkg/project"
	"github.com/meshline/syncd/pkg/types"
)

// Cache is the local materialized copy of the list: the locally-known event
// log plus its projection. It is the single shared resource between the
// interactive edit path and the coordinator's remote-update path — both
// routes go through Append, so the two paths can never hold divergent
// copies.
type Cache struct {
	mu     sync.Mutex
	events []*types.Event
	seen   map[string]bool
	state  *project.State
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		seen:  make(map[string]bool),
		state: project.NewState(),
	}
}

// Append adds one event to the local log and folds it into the projection.
// Duplicate event ids are ignored and reported as false: receiving an event
// twice (a self-echo, a replayed frame) is redundant work, not an error.
func (c *Cache) Append(ev *types.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(ev)
}

// AppendAll appends a batch in order and returns how many were new.
func (c *Cache) AppendAll(events []*types.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, ev := range events {
		if c.appendLocked(ev) {
			added++
		}
	}
	return added
}

func (c *Cache) appendLocked(ev *types.Event) bool {
	if ev == nil || c.seen[ev.ID] {
		return false
	}
	c.seen[ev.ID] = true
	c.events = append(c.events, ev.Clone())
	c.state.Apply(ev)
	return true
}

// Items returns the projected list ordered by position.
func (c *Cache) Items() []*types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Items()
}

// Get returns the projected item with the given id, or nil.
func (c *Cache) Get(id string) *types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Get(id)
}

// Len returns the number of live projected items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Len()
}

// Events returns a copy of the locally-known event log in arrival order.
func (c *Cache) Events() []*types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Event, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Clone()
	}
	return out
}
