package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"raid-stats/internal/db"
	"raid-stats/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const msPerHour = 1000 * 60 * 60

var ErrSnapshotNotFound = errors.New("weekly snapshot not found")

// StatsRepository is the read surface over the raid tables. Every query is
// scoped to raids whose start_time lies inside the window, inclusive.
type StatsRepository struct {
	sqlx    *sqlx.DB
	queries *db.Queries
	logger  zerolog.Logger
}

func NewStatsRepository(sqlxDB *sqlx.DB, queries *db.Queries, logger zerolog.Logger) *StatsRepository {
	return &StatsRepository{
		sqlx:    sqlxDB,
		queries: queries,
		logger:  logger,
	}
}

func inWindow(w domain.Window) sq.Sqlizer {
	return sq.Expr("r.start_time >= ? AND r.start_time <= ?", w.Start, w.End)
}

func (r *StatsRepository) WeeklySummary(ctx context.Context, w domain.Window) (domain.WeeklySummary, error) {
	var raidRow struct {
		Raids   int   `db:"total_raids"`
		TotalMS int64 `db:"total_ms"`
	}
	raidQuery := sq.Select(
		"COUNT(*) AS total_raids",
		"COALESCE(SUM(r.end_time - r.start_time), 0) AS total_ms",
	).From("raids r").Where(inWindow(w))

	if err := r.get(ctx, &raidRow, raidQuery); err != nil {
		return domain.WeeklySummary{}, fmt.Errorf("failed to summarize raids: %w", err)
	}

	var encRow struct {
		Kills int `db:"kills"`
		Wipes int `db:"wipes"`
	}
	encQuery := sq.Select(
		"COALESCE(SUM(CASE WHEN e.is_kill = 1 THEN 1 ELSE 0 END), 0) AS kills",
		"COALESCE(SUM(e.wipe_count), 0) AS wipes",
	).From("encounters e").
		Join("raids r ON e.raid_id = r.raid_id").
		Where(inWindow(w))

	if err := r.get(ctx, &encRow, encQuery); err != nil {
		return domain.WeeklySummary{}, fmt.Errorf("failed to summarize encounters: %w", err)
	}

	return domain.WeeklySummary{
		TotalRaids:         raidRow.Raids,
		TotalBossesKilled:  encRow.Kills,
		TotalWipes:         encRow.Wipes,
		TotalRaidTimeHours: float64(raidRow.TotalMS) / msPerHour,
	}, nil
}

// TopPerformers ranks (player, class, role) groups by the average of metric.
// Ties fall back to player name, class, then role.
func (r *StatsRepository) TopPerformers(ctx context.Context, w domain.Window, metric domain.Metric, limit int) ([]domain.TopPerformer, error) {
	col := "p." + string(domain.ParseMetric(string(metric)))

	q := sq.Select(
		"p.player_name AS player_name",
		"COALESCE(p.player_class, '') AS player_class",
		"COALESCE(p.role, '') AS role",
		fmt.Sprintf("AVG(%s) AS avg_performance", col),
		fmt.Sprintf("MAX(%s) AS max_performance", col),
	).From("player_performance p").
		Join("raids r ON p.raid_id = r.raid_id").
		Where(inWindow(w)).
		Where(col+" IS NOT NULL").
		GroupBy("p.player_name", "p.player_class", "p.role").
		OrderBy("avg_performance DESC", "p.player_name ASC", "player_class ASC", "role ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	out := []domain.TopPerformer{}
	if err := r.selectInto(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("failed to rank performers by %s: %w", col, err)
	}
	return out, nil
}

func (r *StatsRepository) BossStatistics(ctx context.Context, w domain.Window) ([]domain.BossStatistic, error) {
	q := sq.Select(
		"e.boss_name AS boss_name",
		"COALESCE(SUM(CASE WHEN e.is_kill = 1 THEN 1 ELSE 0 END), 0) AS kills",
		"COALESCE(SUM(e.wipe_count), 0) AS wipes",
		"AVG(CASE WHEN e.is_kill = 1 THEN e.kill_duration_ms END) / 1000.0 AS avg_kill_time_sec",
	).From("encounters e").
		Join("raids r ON e.raid_id = r.raid_id").
		Where(inWindow(w)).
		GroupBy("e.boss_name").
		OrderBy("e.boss_name")

	out := []domain.BossStatistic{}
	if err := r.selectInto(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("failed to compute boss statistics: %w", err)
	}
	return out, nil
}

// TopDeathCauses ignores deaths whose killing ability has no name.
func (r *StatsRepository) TopDeathCauses(ctx context.Context, w domain.Window, limit int) ([]domain.DeathCause, error) {
	q := sq.Select(
		"d.ability_name AS ability_name",
		"COUNT(*) AS death_count",
		"COUNT(DISTINCT d.player_name) AS players_affected",
		"COALESCE(d.boss_name, '') AS boss_name",
		"COALESCE(d.ability_id, 0) AS ability_id",
	).From("deaths d").
		Join("raids r ON d.raid_id = r.raid_id").
		Where(inWindow(w)).
		Where("d.ability_name IS NOT NULL").
		Where(sq.NotEq{"d.ability_name": "Unknown"}).
		GroupBy("d.ability_name", "d.boss_name", "d.ability_id").
		OrderBy("death_count DESC", "d.ability_name ASC", "boss_name ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	out := []domain.DeathCause{}
	if err := r.selectInto(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("failed to rank death causes: %w", err)
	}
	return out, nil
}

func (r *StatsRepository) PlayerDeathCounts(ctx context.Context, w domain.Window) ([]domain.PlayerDeathCount, error) {
	q := sq.Select(
		"d.player_name AS player_name",
		"COUNT(*) AS death_count",
	).From("deaths d").
		Join("raids r ON d.raid_id = r.raid_id").
		Where(inWindow(w)).
		GroupBy("d.player_name").
		OrderBy("death_count DESC", "d.player_name ASC")

	out := []domain.PlayerDeathCount{}
	if err := r.selectInto(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("failed to count player deaths: %w", err)
	}
	return out, nil
}

func (r *StatsRepository) SaveWeeklySnapshot(ctx context.Context, snap domain.WeeklySnapshot) error {
	details, err := json.Marshal(snap.Details)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot details: %w", err)
	}

	err = r.queries.UpsertWeeklySummary(ctx, db.UpsertWeeklySummaryParams{
		WeekStart:          snap.Window.Start,
		WeekEnd:            snap.Window.End,
		TotalRaids:         int64(snap.Summary.TotalRaids),
		TotalBossesKilled:  int64(snap.Summary.TotalBossesKilled),
		TotalWipes:         int64(snap.Summary.TotalWipes),
		TotalRaidTimeHours: snap.Summary.TotalRaidTimeHours,
		SummaryData:        string(details),
		RunID:              nullString(snap.RunID),
	})
	if err != nil {
		return fmt.Errorf("failed to save weekly snapshot: %w", err)
	}

	r.logger.Info().
		Int64("week_start", snap.Window.Start).
		Int64("week_end", snap.Window.End).
		Str("run_id", snap.RunID).
		Msg("weekly snapshot saved")
	return nil
}

func (r *StatsRepository) GetWeeklySnapshot(ctx context.Context, weekStart int64) (*domain.WeeklySnapshot, error) {
	row, err := r.queries.GetWeeklySummary(ctx, weekStart)
	return snapshotFromRow(row, err)
}

func (r *StatsRepository) GetLatestSnapshot(ctx context.Context) (*domain.WeeklySnapshot, error) {
	row, err := r.queries.GetLatestWeeklySummary(ctx)
	return snapshotFromRow(row, err)
}

func snapshotFromRow(row db.GetWeeklySummaryRow, err error) (*domain.WeeklySnapshot, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	snap := &domain.WeeklySnapshot{
		Window: domain.Window{Start: row.WeekStart, End: row.WeekEnd},
		Summary: domain.WeeklySummary{
			TotalRaids:         int(row.TotalRaids),
			TotalBossesKilled:  int(row.TotalBossesKilled),
			TotalWipes:         int(row.TotalWipes),
			TotalRaidTimeHours: row.TotalRaidTimeHours,
		},
		RunID: row.RunID.String,
	}
	if row.SummaryData.Valid && row.SummaryData.String != "" {
		if err := json.Unmarshal([]byte(row.SummaryData.String), &snap.Details); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot details: %w", err)
		}
	}
	return snap, nil
}

func (r *StatsRepository) get(ctx context.Context, dest any, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	r.logger.Debug().Str("sql", query).Msg("stats query")
	return r.sqlx.GetContext(ctx, dest, query, args...)
}

func (r *StatsRepository) selectInto(ctx context.Context, dest any, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	r.logger.Debug().Str("sql", query).Msg("stats query")
	return r.sqlx.SelectContext(ctx, dest, query, args...)
}
