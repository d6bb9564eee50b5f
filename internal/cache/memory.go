package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryEntries = 10000

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
	elem    *list.Element
}

// MemoryClient is a bounded LRU Client for a single process. Expired entries
// are dropped when read; the least recently used entry is evicted when full.
type MemoryClient struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memoryEntry
	order    *list.List
	now      func() time.Time
}

// NewMemoryClient creates a cache holding at most capacity entries.
func NewMemoryClient(capacity int) *MemoryClient {
	if capacity <= 0 {
		capacity = defaultMemoryEntries
	}
	return &MemoryClient{
		capacity: capacity,
		items:    make(map[string]*memoryEntry),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !ent.expires.IsZero() && !c.now().Before(ent.expires) {
		c.remove(ent)
		return nil, ErrCacheMiss
	}
	c.order.MoveToFront(ent.elem)
	return ent.value, nil
}

// Set stores value. A zero ttl keeps the entry until it is evicted; a
// negative ttl stores an already expired entry.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl != 0 {
		expires = c.now().Add(ttl)
	}

	if ent, ok := c.items[key]; ok {
		ent.value, ent.expires = value, expires
		c.order.MoveToFront(ent.elem)
		return nil
	}

	if len(c.items) >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.remove(c.items[back.Value.(string)])
		}
	}
	c.items[key] = &memoryEntry{key: key, value: value, expires: expires, elem: c.order.PushFront(key)}
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[key]; ok {
		c.remove(ent)
	}
	return nil
}

func (c *MemoryClient) Ping(context.Context) error { return nil }

// Close drops every entry.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*memoryEntry)
	c.order.Init()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryClient) remove(ent *memoryEntry) {
	c.order.Remove(ent.elem)
	delete(c.items, ent.key)
}

var _ Client = (*MemoryClient)(nil)
