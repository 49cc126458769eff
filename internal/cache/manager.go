package cache

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// Tier is the contract the shared tier satisfies. Absence is reported
// without error; errors mean the tier is unhealthy.
type Tier interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Close() error
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Errors    int64 `json:"errors"`
}

// Manager is the hybrid cache backing expensive agent sub-calls: a
// bounded local LRU tier in front of an optional shared tier. The cache
// is advisory only — any tier failure degrades to a miss and the
// memoized computation proceeds against the source of truth.
type Manager struct {
	local  *LRUTier
	shared Tier // nil when cross-process sharing is disabled
	ttl    time.Duration
	logger *logging.Logger
	flight singleflight.Group

	sharedHits int64
	errorCount int64
}

// Options configures a Manager.
type Options struct {
	LocalCapacity int
	DefaultTTL    time.Duration
	Shared        Tier
	Logger        *logging.Logger
}

// NewManager creates a hybrid cache manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		local:  NewLRUTier(opts.LocalCapacity),
		shared: opts.Shared,
		ttl:    ttl,
		logger: logger,
	}
}

// Get checks the local tier first and falls through to the shared tier
// on a local miss, repopulating local on a shared hit.
func (m *Manager) Get(key string) ([]byte, bool) {
	if value, ok := m.local.Get(key); ok {
		return value, true
	}
	if m.shared == nil {
		return nil, false
	}
	value, ok, err := m.shared.Get(key)
	if err != nil {
		atomic.AddInt64(&m.errorCount, 1)
		m.logger.Warn("shared cache tier get failed, treating as miss", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	atomic.AddInt64(&m.sharedHits, 1)
	m.local.Set(key, value, m.ttl)
	return value, true
}

// Set writes to both tiers. Shared-tier failures are logged, not
// propagated.
func (m *Manager) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.local.Set(key, value, ttl)
	if m.shared != nil {
		if err := m.shared.Set(key, value, ttl); err != nil {
			atomic.AddInt64(&m.errorCount, 1)
			m.logger.Warn("shared cache tier set failed", "error", err)
		}
	}
}

// Delete removes the key from both tiers.
func (m *Manager) Delete(key string) {
	m.local.Delete(key)
	if m.shared != nil {
		if err := m.shared.Delete(key); err != nil {
			atomic.AddInt64(&m.errorCount, 1)
			m.logger.Warn("shared cache tier delete failed", "error", err)
		}
	}
}

// Do memoizes fn under key: concurrent callers for the same key share a
// single execution, and a cached value short-circuits entirely. A
// failing fn is never cached.
func (m *Manager) Do(key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if value, ok := m.Get(key); ok {
		return value, nil
	}
	result, err, _ := m.flight.Do(key, func() (any, error) {
		if value, ok := m.Get(key); ok {
			return value, nil
		}
		value, err := fn()
		if err != nil {
			return nil, err
		}
		m.Set(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Stats returns combined counters across tiers.
func (m *Manager) Stats() Stats {
	hits, misses, evictions := m.local.Counters()
	return Stats{
		Hits:      hits + atomic.LoadInt64(&m.sharedHits),
		Misses:    misses,
		Evictions: evictions,
		Errors:    atomic.LoadInt64(&m.errorCount),
	}
}

// Close releases the shared tier, if any.
func (m *Manager) Close() error {
	if m.shared != nil {
		return m.shared.Close()
	}
	return nil
}
