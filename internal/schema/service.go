package schema

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/target"
)

const DefaultCacheTTL = time.Hour

// Cache stores serialized metadata per connection and variant.
type Cache interface {
	Load(ctx context.Context, conn, variant string) ([]byte, bool, error)
	Save(ctx context.Context, conn, variant string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, conn string) error
}

// Service extracts metadata through a TTL cache. A nil cache disables
// caching.
type Service struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewService(cache Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{cache: cache, ttl: ttl, logger: logger}
}

// Metadata returns the metadata of the connection's target, read from the
// cache when useCache is set and a fresh entry exists. Freshly extracted
// metadata is always written back.
func (s *Service) Metadata(ctx context.Context, conn string, db *target.DB, opts Options, useCache bool) (Metadata, error) {
	if db == nil || db.SQL == nil {
		return Metadata{}, errors.New("target database is required")
	}
	if opts.DatabaseName == "" {
		opts.DatabaseName = db.Database
	}
	if opts.Schema == "" {
		opts.Schema = db.Schema
	}
	variant := opts.Variant()

	if useCache && s.cache != nil {
		if metadata, ok := s.load(ctx, conn, variant); ok {
			observability.ObserveSchemaCache(true)
			return metadata, nil
		}
		observability.ObserveSchemaCache(false)
	}

	extractor, err := NewExtractor(db.Dialect, s.logger)
	if err != nil {
		return Metadata{}, err
	}
	metadata, err := extractor.Extract(ctx, db.SQL, opts)
	if err != nil {
		return Metadata{}, err
	}

	if s.cache != nil {
		s.save(ctx, conn, variant, metadata)
	}
	return metadata, nil
}

// Invalidate drops every cached variant of a connection.
func (s *Service) Invalidate(ctx context.Context, conn string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, conn)
}

func (s *Service) load(ctx context.Context, conn, variant string) (Metadata, bool) {
	raw, ok, err := s.cache.Load(ctx, conn, variant)
	if err != nil {
		s.logger.Warn("schema cache read failed", "connection", conn, "variant", variant, "error", err)
		return Metadata{}, false
	}
	if !ok {
		return Metadata{}, false
	}
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		s.logger.Warn("schema cache entry unreadable", "connection", conn, "variant", variant, "error", err)
		return Metadata{}, false
	}
	return metadata, true
}

func (s *Service) save(ctx context.Context, conn, variant string, metadata Metadata) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Warn("schema cache encode failed", "connection", conn, "error", err)
		return
	}
	if err := s.cache.Save(ctx, conn, variant, raw, s.ttl); err != nil {
		s.logger.Warn("schema cache write failed", "connection", conn, "variant", variant, "error", err)
	}
}
