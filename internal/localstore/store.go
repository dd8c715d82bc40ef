// Package localstore keeps QueryMind's local state in an embedded Badger
// database: saved connection profiles and the schema metadata cache.
package localstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	keySize        = 32
	defaultKeyFile = ".connection_key"
	indexCacheSize = 16 << 20
)

type Config struct {
	Dir      string
	KeyFile  string
	InMemory bool
	Logger   *slog.Logger
}

type Store struct {
	db *badger.DB
}

// Open opens the state database. On disk the database is encrypted with a
// 32-byte key read from KeyFile, generated on first start when missing.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(cfg.Dir) == "" {
			return nil, errors.New("state dir is required for persistent state")
		}
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir %s: %w", cfg.Dir, err)
		}
		keyFile := cfg.KeyFile
		if keyFile == "" {
			keyFile = filepath.Join(cfg.Dir, defaultKeyFile)
		}
		key, err := loadOrCreateKey(keyFile)
		if err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(filepath.Join(cfg.Dir, "state")).
			WithEncryptionKey(key).
			WithIndexCacheSize(indexCacheSize)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("state database is closed")
	}
	return nil
}

func (s *Store) Connections() *ConnectionStore {
	return &ConnectionStore{db: s.db}
}

func (s *Store) MetadataCache() *MetadataCache {
	return &MetadataCache{db: s.db}
}

func loadOrCreateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("key file %s must hold %d hex-encoded bytes", path, keySize)
		}
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate state key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", path, err)
	}
	return key, nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}
