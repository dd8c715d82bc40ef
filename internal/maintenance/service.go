// Package maintenance runs periodic housekeeping for the history database.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes history entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// Retention is how long entries are kept. Zero disables pruning.
	Retention         time.Duration
	RetentionInterval time.Duration
}

type Service struct {
	History Pruner
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type RetentionSummary struct {
	Cutoff         time.Time `json:"cutoff"`
	EntriesDeleted int64     `json:"entries_deleted"`
}

// Run prunes once at start and then every RetentionInterval until ctx is
// done. It returns immediately when retention is disabled.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Config.Retention <= 0 || s.History == nil {
		return nil
	}

	s.runRetention(ctx)
	ticker := time.NewTicker(s.Config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runRetention(ctx)
		}
	}
}

func (s *Service) runRetention(ctx context.Context) {
	summary, err := s.RunRetentionOnce(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "history retention cycle failed", slog.Any("error", err), slog.Time("cutoff", summary.Cutoff))
		return
	}
	s.Logger.InfoContext(ctx, "history retention cycle completed",
		slog.Time("cutoff", summary.Cutoff),
		slog.Int64("entries_deleted", summary.EntriesDeleted),
	)
}

func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.History == nil {
		return RetentionSummary{}, fmt.Errorf("history store is required")
	}
	if s.Config.Retention <= 0 {
		return RetentionSummary{}, fmt.Errorf("history retention is disabled")
	}

	summary := RetentionSummary{Cutoff: s.Clock().UTC().Add(-s.Config.Retention)}
	deleted, err := s.History.Prune(ctx, summary.Cutoff)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("prune history: %w", err)
	}
	summary.EntriesDeleted = deleted
	retentionRunsTotal.WithLabelValues("completed").Inc()
	if deleted > 0 {
		historyEntriesPrunedTotal.Add(float64(deleted))
	}
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
}
