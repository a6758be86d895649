package reconcile

import (
	"sync"

	"github.com/vovakirdan/roomcast/internal/core"
)

// Cache holds one reconciled log per room. It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	rooms map[string]*roomLog
}

type roomLog struct {
	msgs []core.Message
	ids  map[string]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{rooms: make(map[string]*roomLog)}
}

// Insert adds msg to its room's log. It reports false when the id was already present.
func (c *Cache) Insert(msg core.Message) bool {
	return c.Merge(msg.Room, msg) == 1
}

// Merge folds msgs into room's log and returns how many were new.
// Messages are filed under room regardless of their own Room field.
func (c *Cache) Merge(room string, msgs ...core.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	log, ok := c.rooms[room]
	if !ok {
		log = &roomLog{ids: make(map[string]struct{})}
		c.rooms[room] = log
	}

	fresh := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := log.ids[m.ID]; dup {
			continue
		}
		log.ids[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}
	log.msgs = Merge(log.msgs, fresh...)
	return len(fresh)
}

// Messages returns a copy of room's log in display order.
func (c *Cache) Messages(room string) []core.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	log, ok := c.rooms[room]
	if !ok {
		return nil
	}
	out := make([]core.Message, len(log.msgs))
	copy(out, log.msgs)
	return out
}

// Len returns the number of messages in room's log.
func (c *Cache) Len(room string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if log, ok := c.rooms[room]; ok {
		return len(log.msgs)
	}
	return 0
}

// Reset drops room's log.
func (c *Cache) Reset(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}
