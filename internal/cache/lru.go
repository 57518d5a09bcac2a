package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a bounded, optionally expiring map. Entries may belong to a
// group so that all entries derived from one record can be dropped together
// without scanning the keys. A TTL of zero disables expiry.
type LRUCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	order  *list.List // front is most recently used
	byKey  map[string]*list.Element
	groups map[string]map[string]struct{}

	hits, misses, evictions uint64
}

type entry[T any] struct {
	key, group string
	value      T
	deadline   time.Time
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Size      int
	Groups    int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		capacity: max(capacity, 1),
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		byKey:    make(map[string]*list.Element),
		groups:   make(map[string]map[string]struct{}),
	}
}

// WithClock replaces the time source used for expiry.
func (c *LRUCache[T]) WithClock(now func() time.Time) *LRUCache[T] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *LRUCache[T]) stale(e *entry[T], at time.Time) bool {
	return c.ttl > 0 && at.After(e.deadline)
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if ok {
		e := el.Value.(*entry[T])
		if !c.stale(e, c.now()) {
			c.order.MoveToFront(el)
			c.hits++
			return e.value, true
		}
		c.unlink(el)
	}
	c.misses++
	var zero T
	return zero, false
}

// Set stores value under key outside any group.
func (c *LRUCache[T]) Set(key string, value T) {
	c.SetInGroup("", key, value)
}

// SetInGroup stores value under key and files it under group. Re-setting a
// key moves it to the new group.
func (c *LRUCache[T]) SetInGroup(group, key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.unlink(el)
	}
	e := &entry[T]{key: key, group: group, value: value, deadline: c.now().Add(c.ttl)}
	c.byKey[key] = c.order.PushFront(e)
	if group != "" {
		members := c.groups[group]
		if members == nil {
			members = make(map[string]struct{})
			c.groups[group] = members
		}
		members[key] = struct{}{}
	}

	for c.order.Len() > c.capacity {
		c.unlink(c.order.Back())
		c.evictions++
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok {
		c.unlink(el)
	}
}

// DeleteGroup drops every entry of group and reports how many were removed.
func (c *LRUCache[T]) DeleteGroup(group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.groups[group]
	n := 0
	for key := range members {
		if el, ok := c.byKey[key]; ok {
			c.unlink(el)
			n++
		}
	}
	return n
}

// DeleteFunc drops every key match accepts and reports how many were
// removed.
func (c *LRUCache[T]) DeleteFunc(match func(key string) bool) int {
	return c.removeWhere(func(e *entry[T]) bool { return match(e.key) })
}

// CleanExpired drops expired entries and reports how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	at := c.now()
	c.mu.Unlock()
	return c.removeWhere(func(e *entry[T]) bool { return c.stale(e, at) })
}

func (c *LRUCache[T]) removeWhere(pred func(*entry[T]) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if pred(el.Value.(*entry[T])) {
			c.unlink(el)
			n++
		}
		el = next
	}
	return n
}

// Clear drops every entry. Counters are kept.
func (c *LRUCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.byKey)
	clear(c.groups)
}

// unlink removes el from every index. The caller holds mu.
func (c *LRUCache[T]) unlink(el *list.Element) {
	e := el.Value.(*entry[T])
	c.order.Remove(el)
	delete(c.byKey, e.key)
	if members, ok := c.groups[e.group]; ok {
		delete(members, e.key)
		if len(members) == 0 {
			delete(c.groups, e.group)
		}
	}
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.order.Len(),
		Groups:    len(c.groups),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
