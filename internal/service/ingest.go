package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raid-stats/internal/api"
	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/domain"
	"raid-stats/internal/normalize"
	"raid-stats/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type IngestService struct {
	cfg        *config.Config
	reports    *api.ReportLister
	actors     *api.ActorResolver
	fights     *api.FightDetailFetcher
	normalizer *normalize.Normalizer
	raidRepo   *repository.RaidRepository
	stats      *StatsService
	now        func() time.Time
	logger     zerolog.Logger
}

// IngestResult summarizes one run. Degraded counts are fetches that failed
// and were skipped, not errors.
type IngestResult struct {
	RunID           string
	Window          domain.Window
	Reports         int
	SkippedReports  int
	DegradedReports int
	DegradedFights  int
	Raids           int
	Encounters      int
	Performances    int
	Deaths          int
	Unlinked        int
}

func NewIngestService(
	cfg *config.Config,
	reports *api.ReportLister,
	actors *api.ActorResolver,
	fights *api.FightDetailFetcher,
	normalizer *normalize.Normalizer,
	raidRepo *repository.RaidRepository,
	stats *StatsService,
	logger zerolog.Logger,
) *IngestService {
	return &IngestService{
		cfg:        cfg,
		reports:    reports,
		actors:     actors,
		fights:     fights,
		normalizer: normalizer,
		raidRepo:   raidRepo,
		stats:      stats,
		now:        time.Now,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}
}

// Run lists the guild's recent reports, pulls each report's metadata and boss
// fight details, and replaces the stored rows for those reports in a single
// transaction. Failing to list reports or to authenticate aborts the run;
// any other per-report or per-fight failure is logged and skipped.
func (s *IngestService) Run(ctx context.Context) (IngestResult, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to generate run id: %w", err)
	}
	result := IngestResult{
		RunID:  runID,
		Window: domain.TrailingWindow(s.now(), time.Duration(s.cfg.DaysBack)*24*time.Hour).StartOfDay(),
	}
	log := s.logger.With().Str("run_id", runID).Logger()

	ctx, cancel := context.WithTimeout(ctx, constants.IngestTimeout)
	defer cancel()

	log.Info().Str("guild", s.cfg.String()).Int("days_back", s.cfg.DaysBack).Msg("ingestion started")
	start := time.Now()

	reports, err := s.reports.ListReports(ctx, s.cfg.GuildName, s.cfg.ServerSlug(), s.cfg.ServerRegion(), s.cfg.DaysBack)
	if err != nil {
		log.Error().Err(err).Msg("failed to list reports")
		return result, fmt.Errorf("failed to list reports: %w", err)
	}
	result.Reports = len(reports)
	if len(reports) == 0 {
		log.Warn().Msg("no reports found for guild")
	}

	var batch domain.Batch
	seen := make(map[string]struct{}, len(reports))
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ingestion interrupted: %w", err)
		}
		if _, dup := seen[report.Code]; dup {
			continue
		}
		seen[report.Code] = struct{}{}

		reportLog := log.With().Str("report_code", report.Code).Logger()
		b, outcome, err := s.ingestReport(ctx, reportLog, report)
		if err != nil {
			var authErr *api.AuthError
			if errors.As(err, &authErr) {
				reportLog.Error().Err(err).Msg("authentication failed, aborting run")
				return result, err
			}
			reportLog.Warn().Err(err).Msg("skipping report")
			result.SkippedReports++
			continue
		}

		if outcome.degradedMetadata {
			result.DegradedReports++
		}
		result.DegradedFights += outcome.degradedFights
		batch.Append(b)
	}

	replaced, err := s.raidRepo.ReplaceRaids(ctx, batch)
	if err != nil {
		log.Error().Err(err).Msg("failed to store raids")
		return result, fmt.Errorf("failed to store raids: %w", err)
	}
	result.Raids = replaced.Raids
	result.Encounters = replaced.Encounters
	result.Performances = replaced.Performances
	result.Deaths = replaced.Deaths
	result.Unlinked = replaced.Unlinked

	if _, err := s.stats.SaveSnapshot(ctx, result.Window, runID); err != nil {
		log.Error().Err(err).Msg("failed to save weekly snapshot")
		return result, err
	}

	log.Info().
		Int("reports", result.Reports).
		Int("skipped_reports", result.SkippedReports).
		Int("degraded_reports", result.DegradedReports).
		Int("degraded_fights", result.DegradedFights).
		Int("raids", result.Raids).
		Int("encounters", result.Encounters).
		Int("performances", result.Performances).
		Int("deaths", result.Deaths).
		Dur("elapsed", time.Since(start)).
		Msg("ingestion completed")

	return result, nil
}

type reportOutcome struct {
	degradedMetadata bool
	degradedFights   int
}

func (s *IngestService) ingestReport(ctx context.Context, log zerolog.Logger, report api.Report) (domain.Batch, reportOutcome, error) {
	var outcome reportOutcome

	md := s.actors.Resolve(ctx, report.Code)
	if md.Degraded {
		if isAuthError(md.Err) {
			return domain.Batch{}, outcome, md.Err
		}
		outcome.degradedMetadata = true
	}

	fights := s.normalizer.BossFights(report)
	log.Debug().Int("fights", len(report.Fights)).Int("boss_fights", len(fights)).Msg("processing report")

	details, degraded, err := s.fetchDetails(ctx, report.Code, fights)
	if err != nil {
		return domain.Batch{}, outcome, err
	}
	outcome.degradedFights = degraded

	batch, err := s.normalizer.Normalize(report, md, details)
	if err != nil {
		return domain.Batch{}, outcome, fmt.Errorf("failed to normalize report: %w", err)
	}

	log.Info().
		Str("title", report.Title).
		Int("encounters", len(batch.Encounters)).
		Int("performances", len(batch.Performances)).
		Int("deaths", len(batch.Deaths)).
		Bool("degraded_metadata", outcome.degradedMetadata).
		Int("degraded_fights", degraded).
		Msg("report processed")

	return batch, outcome, nil
}

// fetchDetails fetches fights in parallel, at most cfg.FetchConcurrency at a
// time. Only an authentication failure stops the group.
func (s *IngestService) fetchDetails(ctx context.Context, code string, fights []api.Fight) (map[int]api.FightDetail, int, error) {
	results := make([]api.FightDetail, len(fights))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.FetchConcurrency, 1))

	for i, f := range fights {
		g.Go(func() error {
			d := s.fights.Fetch(gCtx, code, f.ID)
			if d.Degraded && isAuthError(d.Err) {
				return d.Err
			}
			results[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	details := make(map[int]api.FightDetail, len(fights))
	degraded := 0
	for i, f := range fights {
		details[f.ID] = results[i]
		if results[i].Degraded {
			degraded++
		}
	}
	return details, degraded, nil
}

func isAuthError(err error) bool {
	var authErr *api.AuthError
	return errors.As(err, &authErr)
}
