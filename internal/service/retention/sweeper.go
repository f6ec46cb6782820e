package retention

import (
	"context"
	"time"

	"log/slog"

	"github.com/pulsegate/pulsegate/internal/repository"
)

// DefaultRetention is how long metric records are kept before the sweeper
// deletes them.
const DefaultRetention = 30 * 24 * time.Hour

// Sweeper periodically deletes metric records older than the retention
// horizon.
type Sweeper struct {
	metrics   repository.MetricRepository
	retention time.Duration
	every     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper returns a sweeper deleting records older than retention, waking
// up at the given interval.
func NewSweeper(metrics repository.MetricRepository, retention, every time.Duration, logger *slog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if every <= 0 {
		every = time.Hour
	}
	if logger != nil {
		logger = logger.With("component", "retention")
	} else {
		logger = slog.Default()
	}
	return &Sweeper{
		metrics:   metrics,
		retention: retention,
		every:     every,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("retention sweeper started", "retention", s.retention.String(), "interval", s.every.String())
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes everything past the retention horizon and returns the
// number of rows removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	cutoff := s.now().UTC().Add(-s.retention)
	deleted, err := s.metrics.DeleteMetricsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err, "cutoff", cutoff)
		return 0
	}
	if deleted > 0 {
		s.logger.Info("retention sweep removed expired records", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}
