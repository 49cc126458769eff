package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry holds one cached value and its expiry.
type lruEntry struct {
	key        string
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e *lruEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) > e.ttl
}

// LRUTier is a bounded in-process cache. Least-recently-used entries are
// evicted on capacity overflow; TTL is checked lazily on access. Get and
// Set are O(1). Safe for concurrent use.
type LRUTier struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recent

	hits      int64
	misses    int64
	evictions int64

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewLRUTier creates a bounded LRU tier.
func NewLRUTier(capacity int) *LRUTier {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUTier{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached value and whether it was present and fresh.
// Expired entries are removed on access and counted as evictions.
func (t *LRUTier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[key]
	if !ok {
		t.misses++
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if entry.expired(t.now()) {
		t.removeElement(el)
		t.evictions++
		t.misses++
		return nil, false
	}
	t.order.MoveToFront(el)
	t.hits++
	return entry.value, true
}

// Set inserts a value. An existing key is overwritten as a fresh insert;
// entries are never updated in place.
func (t *LRUTier) Set(key string, value []byte, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.items[key]; ok {
		t.removeElement(el)
	}
	for t.order.Len() >= t.capacity {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		t.removeElement(oldest)
		t.evictions++
	}
	entry := &lruEntry{key: key, value: value, insertedAt: t.now(), ttl: ttl}
	t.items[key] = t.order.PushFront(entry)
}

// Delete removes a key if present.
func (t *LRUTier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.items[key]
	if !ok {
		return false
	}
	t.removeElement(el)
	return true
}

// Len returns the number of live entries, expired ones included until
// their lazy removal.
func (t *LRUTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// Counters returns hits, misses and evictions.
func (t *LRUTier) Counters() (hits, misses, evictions int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hits, t.misses, t.evictions
}

func (t *LRUTier) removeElement(el *list.Element) {
	entry := el.Value.(*lruEntry)
	t.order.Remove(el)
	delete(t.items, entry.key)
}
