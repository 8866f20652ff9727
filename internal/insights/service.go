package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

const (
	// SourceGraph marks snapshots built from Graph API insights
	SourceGraph = "graph"
	// SourceSimulated marks the built-in fallback curve
	SourceSimulated = "simulated"

	// MaxSnapshotAge is how long a cached snapshot is trusted
	MaxSnapshotAge = 24 * time.Hour
)

// Source produces an engagement curve for a page
type Source interface {
	Curve(ctx context.Context, dest models.Destination) (Curve, error)
}

// HourlyFetcher reads a page's per-hour online audience from the Graph API
type HourlyFetcher interface {
	HourlyFans(ctx context.Context, dest models.Destination) ([24]float64, error)
}

// Service resolves curves from the snapshot cache, then the Graph API, then DefaultCurve
type Service struct {
	repo    storage.Repository
	fetcher HourlyFetcher
	log     *logger.Logger
	now     func() time.Time
}

var _ Source = (*Service)(nil)

// NewService creates an insights service. fetcher may be nil for offline use.
func NewService(repo storage.Repository, fetcher HourlyFetcher, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		log:     log.WithComponent("insights"),
		now:     time.Now,
	}
}

// Curve never fails; any lookup problem degrades to the simulated curve
func (s *Service) Curve(ctx context.Context, dest models.Destination) (Curve, error) {
	if c, ok := s.cached(ctx, dest.ID); ok {
		return c, nil
	}

	c, err := s.Refresh(ctx, dest)
	if err != nil {
		s.log.Warn().Err(err).Str("page_id", dest.ID).Msg("Insights unavailable, using simulated curve")
		return DefaultCurve(), nil
	}
	return c, nil
}

// Refresh fetches the curve from the Graph API and stores a new snapshot
func (s *Service) Refresh(ctx context.Context, dest models.Destination) (Curve, error) {
	if s.fetcher == nil {
		return Curve{}, errors.New("no insights fetcher configured")
	}

	hourly, err := s.fetcher.HourlyFans(ctx, dest)
	if err != nil {
		return Curve{}, fmt.Errorf("failed to fetch page insights: %w", err)
	}
	c := Curve(hourly)
	if c.IsZero() {
		return Curve{}, errors.New("page insights returned no audience data")
	}

	if s.repo != nil {
		snapshot := &models.InsightsSnapshot{
			PageID:    dest.ID,
			Hourly:    models.JSON{"scores": c.toJSON()},
			Source:    SourceGraph,
			FetchedAt: s.now(),
		}
		if err := s.repo.SaveInsights(ctx, snapshot); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache insights snapshot")
		}
	}

	s.log.Info().
		Str("page_id", dest.ID).
		Ints("best_hours", c.BestHours(5)).
		Msg("Refreshed page insights")

	return c, nil
}

func (s *Service) cached(ctx context.Context, pageID string) (Curve, bool) {
	if s.repo == nil {
		return Curve{}, false
	}
	snapshot, err := s.repo.LatestInsights(ctx, pageID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Msg("Failed to read insights snapshot")
		}
		return Curve{}, false
	}
	if s.now().Sub(snapshot.FetchedAt) > MaxSnapshotAge {
		return Curve{}, false
	}
	c, err := curveFromJSON(snapshot.Hourly["scores"])
	if err != nil {
		s.log.Warn().Err(err).Msg("Discarding malformed insights snapshot")
		return Curve{}, false
	}
	return c, true
}
