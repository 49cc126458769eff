package cache

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
)

// SharedTier is the cross-process cache tier backed by badger. Entries
// expire through badger's native TTL support. All failures are reported
// to the caller, which degrades them to misses.
type SharedTier struct {
	db *badger.DB
}

// OpenSharedTier opens (or creates) the badger store at dir.
func OpenSharedTier(dir string) (*SharedTier, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &SharedTier{db: db}, nil
}

// Get returns the stored value for key, reporting absence without error.
func (t *SharedTier) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.ErrCache("shared tier get failed").WithCause(err)
	}
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (t *SharedTier) Set(key string, value []byte, ttl time.Duration) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return core.ErrCache("shared tier set failed").WithCause(err)
	}
	return nil
}

// Delete removes key if present.
func (t *SharedTier) Delete(key string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return core.ErrCache("shared tier delete failed").WithCause(err)
	}
	return nil
}

// Close releases the underlying store.
func (t *SharedTier) Close() error {
	return t.db.Close()
}
