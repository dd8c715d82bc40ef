package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/querymind/querymind/internal/connections"
)

const connectionPrefix = "conn/"

// ConnectionStore implements connections.Store.
type ConnectionStore struct {
	db *badger.DB
}

var _ connections.Store = (*ConnectionStore)(nil)

func (s *ConnectionStore) Put(ctx context.Context, profile connections.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(connectionPrefix+profile.Name), payload)
	})
}

func (s *ConnectionStore) Get(ctx context.Context, name string) (connections.Profile, error) {
	if err := ctx.Err(); err != nil {
		return connections.Profile{}, err
	}
	var profile connections.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(connectionPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return connections.Profile{}, connections.ErrNotFound
	}
	if err != nil {
		return connections.Profile{}, fmt.Errorf("read connection %q: %w", name, err)
	}
	return profile, nil
}

func (s *ConnectionStore) List(ctx context.Context) ([]connections.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []connections.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(connectionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var profile connections.Profile
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &profile)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, profile)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return out, nil
}

func (s *ConnectionStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := []byte(connectionPrefix + name)
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete connection %q: %w", name, err)
	}
	return deleted, nil
}
