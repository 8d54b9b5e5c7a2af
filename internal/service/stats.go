package service

import (
	"context"
	"fmt"
	"time"

	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/domain"
	"raid-stats/internal/repository"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

type StatsService struct {
	repo   *repository.StatsRepository
	cache  *cache.Cache
	now    func() time.Time
	logger zerolog.Logger
}

// NewStatsService caches query results for cfg.CacheTTL. A zero TTL disables
// the cache.
func NewStatsService(cfg *config.Config, repo *repository.StatsRepository, logger zerolog.Logger) *StatsService {
	s := &StatsService{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "stats").Logger(),
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s
}

// DefaultWindow is the trailing seven days ending now.
func (s *StatsService) DefaultWindow() domain.Window {
	return domain.TrailingWindow(s.now(), constants.WeekDuration)
}

func (s *StatsService) Summary(ctx context.Context, w domain.Window) (domain.WeeklySummary, error) {
	return cached(s, cacheKey("summary", w), func() (domain.WeeklySummary, error) {
		return s.repo.WeeklySummary(ctx, w)
	})
}

func (s *StatsService) TopPerformers(ctx context.Context, w domain.Window, metric domain.Metric, limit int) ([]domain.TopPerformer, error) {
	metric = domain.ParseMetric(string(metric))
	return cached(s, cacheKey("top", w, metric, limit), func() ([]domain.TopPerformer, error) {
		return s.repo.TopPerformers(ctx, w, metric, limit)
	})
}

func (s *StatsService) BossStatistics(ctx context.Context, w domain.Window) ([]domain.BossStatistic, error) {
	return cached(s, cacheKey("bosses", w), func() ([]domain.BossStatistic, error) {
		return s.repo.BossStatistics(ctx, w)
	})
}

func (s *StatsService) TopDeathCauses(ctx context.Context, w domain.Window, limit int) ([]domain.DeathCause, error) {
	return cached(s, cacheKey("death_causes", w, limit), func() ([]domain.DeathCause, error) {
		return s.repo.TopDeathCauses(ctx, w, limit)
	})
}

func (s *StatsService) PlayerDeathCounts(ctx context.Context, w domain.Window) ([]domain.PlayerDeathCount, error) {
	return cached(s, cacheKey("player_deaths", w), func() ([]domain.PlayerDeathCount, error) {
		return s.repo.PlayerDeathCounts(ctx, w)
	})
}

// BuildSnapshot runs every aggregation for the window straight against the
// store, bypassing the cache.
func (s *StatsService) BuildSnapshot(ctx context.Context, w domain.Window, runID string) (domain.WeeklySnapshot, error) {
	snap := domain.WeeklySnapshot{Window: w, RunID: runID}

	var err error
	if snap.Summary, err = s.repo.WeeklySummary(ctx, w); err != nil {
		return snap, err
	}
	if snap.Details.Bosses, err = s.repo.BossStatistics(ctx, w); err != nil {
		return snap, err
	}
	if snap.Details.TopDPS, err = s.repo.TopPerformers(ctx, w, domain.MetricDPS, constants.TopPerformerLimit); err != nil {
		return snap, err
	}
	if snap.Details.TopHPS, err = s.repo.TopPerformers(ctx, w, domain.MetricHPS, constants.TopPerformerLimit); err != nil {
		return snap, err
	}
	if snap.Details.DeathCauses, err = s.repo.TopDeathCauses(ctx, w, constants.DeathCauseLimit); err != nil {
		return snap, err
	}
	if snap.Details.Deaths, err = s.repo.PlayerDeathCounts(ctx, w); err != nil {
		return snap, err
	}
	return snap, nil
}

// SaveSnapshot builds and stores the snapshot for w, with its start moved to
// midnight UTC, then drops this process's cached results.
func (s *StatsService) SaveSnapshot(ctx context.Context, w domain.Window, runID string) (domain.WeeklySnapshot, error) {
	w = w.StartOfDay()
	snap, err := s.BuildSnapshot(ctx, w, runID)
	if err != nil {
		return snap, fmt.Errorf("failed to build weekly snapshot: %w", err)
	}
	if err := s.repo.SaveWeeklySnapshot(ctx, snap); err != nil {
		return snap, err
	}
	s.Flush()
	return snap, nil
}

// Snapshot returns the stored snapshot starting at weekStart, or the most
// recent one when weekStart is nil.
func (s *StatsService) Snapshot(ctx context.Context, weekStart *int64) (*domain.WeeklySnapshot, error) {
	if weekStart == nil {
		return s.repo.GetLatestSnapshot(ctx)
	}
	return s.repo.GetWeeklySnapshot(ctx, *weekStart)
}

func (s *StatsService) Flush() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func cached[T any](s *StatsService, key string, load func() (T, error)) (T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if out, ok := v.(T); ok {
				s.logger.Debug().Str("key", key).Msg("stats cache hit")
				return out, nil
			}
		}
	}

	out, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	if s.cache != nil {
		s.cache.Set(key, out, cache.DefaultExpiration)
	}
	return out, nil
}

func cacheKey(name string, w domain.Window, extra ...any) string {
	key := fmt.Sprintf("%s:%d:%d", name, w.Start, w.End)
	for _, e := range extra {
		key += fmt.Sprintf(":%v", e)
	}
	return key
}
