package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"raid-stats/internal/db"
	"raid-stats/internal/domain"

	"github.com/rs/zerolog"
)

type RaidRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger

	// serializes replaces issued from this process
	writeMu sync.Mutex
}

func NewRaidRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *RaidRepository {
	return &RaidRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// ReplaceStats counts the rows written by one ReplaceRaids call.
type ReplaceStats struct {
	Raids        int
	Encounters   int
	Performances int
	Deaths       int
	Unlinked     int
}

// ReplaceRaids deletes every row belonging to the batch's raid ids and
// inserts the batch in their place, in a single transaction. Readers never
// see a raid whose children are half gone.
func (r *RaidRepository) ReplaceRaids(ctx context.Context, batch domain.Batch) (ReplaceStats, error) {
	var stats ReplaceStats
	raidIDs := batch.RaidIDs()
	if len(raidIDs) == 0 {
		return stats, nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	if err := deleteRaids(ctx, qtx, raidIDs); err != nil {
		return stats, err
	}
	r.logger.Debug().Int("raids", len(raidIDs)).Msg("cleared existing rows for raids")

	for _, raid := range batch.Raids {
		if err := qtx.UpsertRaid(ctx, raidParams(raid)); err != nil {
			return stats, fmt.Errorf("failed to upsert raid %s: %w", raid.RaidID, err)
		}
		stats.Raids++
	}

	encounterIDs := make(map[domain.EncounterKey]int64, len(batch.Encounters))
	for _, enc := range batch.Encounters {
		id, err := qtx.InsertEncounter(ctx, encounterParams(enc))
		if err != nil {
			return stats, fmt.Errorf("failed to insert encounter %s/%d: %w", enc.RaidID, enc.FightID, err)
		}
		encounterIDs[enc.Key()] = id
		stats.Encounters++
	}

	for _, perf := range batch.Performances {
		if id, ok := encounterIDs[perf.Key()]; ok {
			perf.EncounterID = &id
		} else {
			stats.Unlinked++
		}
		if _, err := qtx.InsertPlayerPerformance(ctx, performanceParams(perf)); err != nil {
			return stats, fmt.Errorf("failed to insert performance %s/%s: %w", perf.RaidID, perf.PlayerName, err)
		}
		stats.Performances++
	}

	for _, death := range batch.Deaths {
		if _, err := qtx.InsertDeath(ctx, deathParams(death)); err != nil {
			return stats, fmt.Errorf("failed to insert death %s/%s: %w", death.RaidID, death.PlayerName, err)
		}
		stats.Deaths++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit raid replace: %w", err)
	}

	r.logger.Info().
		Int("raids", stats.Raids).
		Int("encounters", stats.Encounters).
		Int("performances", stats.Performances).
		Int("deaths", stats.Deaths).
		Int("unlinked_performances", stats.Unlinked).
		Msg("raids replaced")
	return stats, nil
}

// DeleteRaids removes raids and all of their child rows.
func (r *RaidRepository) DeleteRaids(ctx context.Context, raidIDs []string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRaids(ctx, r.queries.WithTx(tx), raidIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *RaidRepository) UpsertRaid(ctx context.Context, raid domain.Raid) error {
	return r.queries.UpsertRaid(ctx, raidParams(raid))
}

func (r *RaidRepository) InsertEncounter(ctx context.Context, enc domain.Encounter) (int64, error) {
	return r.queries.InsertEncounter(ctx, encounterParams(enc))
}

func (r *RaidRepository) InsertPlayerPerformance(ctx context.Context, perf domain.PlayerPerformance) (int64, error) {
	return r.queries.InsertPlayerPerformance(ctx, performanceParams(perf))
}

func (r *RaidRepository) InsertDeath(ctx context.Context, death domain.Death) (int64, error) {
	return r.queries.InsertDeath(ctx, deathParams(death))
}

func (r *RaidRepository) GetRaid(ctx context.Context, raidID string) (*domain.Raid, error) {
	row, err := r.queries.GetRaid(ctx, raidID)
	if err != nil {
		return nil, err
	}
	return &domain.Raid{
		RaidID:     row.RaidID,
		Name:       row.RaidName,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		ZoneName:   row.ZoneName.String,
		Difficulty: row.Difficulty.String,
	}, nil
}

func (r *RaidRepository) CountRows(ctx context.Context, raidID string) (db.CountRaidRowsRow, error) {
	return r.queries.CountRaidRows(ctx, raidID)
}

// children go first so foreign keys hold at every step
func deleteRaids(ctx context.Context, q *db.Queries, raidIDs []string) error {
	for _, id := range raidIDs {
		if err := q.DeleteDeathsByRaid(ctx, id); err != nil {
			return fmt.Errorf("failed to delete deaths for %s: %w", id, err)
		}
		if err := q.DeletePerformanceByRaid(ctx, id); err != nil {
			return fmt.Errorf("failed to delete performance for %s: %w", id, err)
		}
		if err := q.DeleteEncountersByRaid(ctx, id); err != nil {
			return fmt.Errorf("failed to delete encounters for %s: %w", id, err)
		}
		if err := q.DeleteRaid(ctx, id); err != nil {
			return fmt.Errorf("failed to delete raid %s: %w", id, err)
		}
	}
	return nil
}

func raidParams(raid domain.Raid) db.UpsertRaidParams {
	return db.UpsertRaidParams{
		RaidID:     raid.RaidID,
		RaidName:   raid.Name,
		StartTime:  raid.StartTime,
		EndTime:    raid.EndTime,
		ZoneName:   nullString(raid.ZoneName),
		Difficulty: nullString(raid.Difficulty),
	}
}

func encounterParams(enc domain.Encounter) db.InsertEncounterParams {
	return db.InsertEncounterParams{
		RaidID:         enc.RaidID,
		FightID:        int64(enc.FightID),
		BossName:       enc.BossName,
		KillTime:       enc.KillTime,
		WipeCount:      int64(enc.WipeCount),
		KillDurationMs: enc.KillDurationMS,
		IsKill:         enc.IsKill,
	}
}

func performanceParams(perf domain.PlayerPerformance) db.InsertPlayerPerformanceParams {
	p := db.InsertPlayerPerformanceParams{
		RaidID:      perf.RaidID,
		BossName:    nullString(perf.BossName),
		PlayerName:  perf.PlayerName,
		PlayerClass: nullString(perf.PlayerClass),
		Spec:        nullString(perf.Spec),
		Role:        nullString(string(perf.Role)),
		Deaths:      int64(perf.Deaths),
	}
	if perf.EncounterID != nil {
		p.EncounterID = sql.NullInt64{Int64: *perf.EncounterID, Valid: true}
	}
	if perf.DPS != nil {
		p.Dps = sql.NullFloat64{Float64: *perf.DPS, Valid: true}
	}
	if perf.HPS != nil {
		p.Hps = sql.NullFloat64{Float64: *perf.HPS, Valid: true}
	}
	if perf.ParsePercentile != nil {
		p.ParsePercentile = sql.NullInt64{Int64: int64(*perf.ParsePercentile), Valid: true}
	}
	return p
}

func deathParams(death domain.Death) db.InsertDeathParams {
	return db.InsertDeathParams{
		RaidID:      death.RaidID,
		FightID:     int64(death.FightID),
		BossName:    nullString(death.BossName),
		PlayerName:  death.PlayerName,
		AbilityName: nullString(death.AbilityName),
		AbilityID:   death.AbilityID,
		Timestamp:   death.Timestamp,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
