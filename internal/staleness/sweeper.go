// Package staleness marks assets inactive once they stop reporting.
package staleness

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// Config holds sweeper configuration.
type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

// AssetLister returns assets last seen before cutoff.
type AssetLister interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]*model.Asset, error)
}

// InactiveMarker marks an asset inactive if it is still stale at cutoff.
// It reports false when a newer heartbeat has refreshed the asset.
type InactiveMarker interface {
	MarkInactive(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}

// MetricsRecordFunc is an optional callback receiving the number of assets
// marked inactive by one sweep.
type MetricsRecordFunc func(marked int)

// Sweeper periodically marks stale assets inactive. It never deletes assets
// and never touches risk scores.
type Sweeper struct {
	lister    AssetLister
	marker    InactiveMarker
	cfg       Config
	now       func() time.Time
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Sweeper.
func New(lister AssetLister, marker InactiveMarker, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 7 * 24 * time.Hour
	}
	return &Sweeper{
		lister: lister,
		marker: marker,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (s *Sweeper) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// SetClock replaces the time source; used by tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
			s.SweepOnce(sctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce marks every stale, not yet inactive asset inactive and returns
// how many were changed. Assets refreshed between the listing and the write
// are left alone. Individual update failures are logged and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.lister.ListStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("staleness: list stale assets", zap.Error(err))
		return 0
	}

	marked := 0
	for _, a := range stale {
		if a.Status == model.AssetStatusInactive {
			continue
		}
		changed, err := s.marker.MarkInactive(ctx, a.ID, cutoff)
		if err != nil {
			s.logger.Warn("staleness: mark inactive",
				zap.String("asset_id", a.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !changed {
			s.logger.Debug("staleness: asset refreshed since listing",
				zap.String("asset_id", a.ID.String()))
			continue
		}
		marked++
	}

	if marked > 0 {
		s.logger.Info("staleness: marked assets inactive",
			zap.Int("count", marked),
			zap.Time("cutoff", cutoff),
		)
	}
	if s.onMetrics != nil {
		s.onMetrics(marked)
	}
	return marked
}
