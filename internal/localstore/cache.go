package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const metadataPrefix = "meta/"

// MetadataCache stores serialized schema metadata per connection and variant.
// Expiry is delegated to Badger entry TTLs.
type MetadataCache struct {
	db *badger.DB
}

func metadataKey(conn, variant string) []byte {
	return []byte(metadataPrefix + conn + "/" + variant)
}

func (c *MetadataCache) Load(ctx context.Context, conn, variant string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metadataKey(conn, variant))
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
		return nil, false, fmt.Errorf("read metadata cache: %w", err)
	}
	return value, true, nil
}

func (c *MetadataCache) Save(ctx context.Context, conn, variant string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := badger.NewEntry(metadataKey(conn, variant), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached variant of a connection.
func (c *MetadataCache) Invalidate(ctx context.Context, conn string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := []byte(metadataPrefix + conn + "/")
	err := c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate metadata cache: %w", err)
	}
	return nil
}
