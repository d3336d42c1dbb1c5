package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const defaultKeyPrefix = "score:"

// BadgerCache is a Cache persisted in BadgerDB. Expiry is delegated to
// badger entry TTLs.
type BadgerCache struct {
	db     *badger.DB
	prefix []byte
	owned  bool

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerCache opens (or creates) a badger database at dir.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for score cache: %w", err)
	}

	c := NewBadgerCache(db, "")
	c.owned = true
	return c, nil
}

// NewBadgerCache wraps an existing database. The caller keeps ownership of
// db; Close leaves it open.
func NewBadgerCache(db *badger.DB, prefix string) *BadgerCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &BadgerCache{
		db:     db,
		prefix: []byte(prefix),
	}
}

func (c *BadgerCache) makeKey(key string) []byte {
	k := make([]byte, 0, len(c.prefix)+len(key))
	k = append(k, c.prefix...)
	return append(k, key...)
}

func (c *BadgerCache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *BadgerCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.isClosed() {
		return false, ErrClosed
	}

	var found bool
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.makeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, dst); err != nil {
				return fmt.Errorf("decode cached value: %w", err)
			}
			found = true
			return nil
		})
	})
	return found, err
}

func (c *BadgerCache) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(c.makeKey(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (c *BadgerCache) Delete(ctx context.Context, key string) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.makeKey(key))
	})
}

// Purge removes every entry under this cache's prefix.
func (c *BadgerCache) Purge() error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.db.DropPrefix(c.prefix)
}

func (c *BadgerCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.owned {
		return c.db.Close()
	}
	return nil
}
