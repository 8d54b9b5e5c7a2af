package db

import (
	"context"
	"database/sql"
)

const upsertRaid = `
INSERT INTO raids (raid_id, raid_name, start_time, end_time, zone_name, difficulty)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(raid_id) DO UPDATE SET
    raid_name = excluded.raid_name,
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    zone_name = excluded.zone_name,
    difficulty = excluded.difficulty
`

type UpsertRaidParams struct {
	RaidID     string
	RaidName   string
	StartTime  int64
	EndTime    int64
	ZoneName   sql.NullString
	Difficulty sql.NullString
}

func (q *Queries) UpsertRaid(ctx context.Context, arg UpsertRaidParams) error {
	_, err := q.db.ExecContext(ctx, upsertRaid,
		arg.RaidID,
		arg.RaidName,
		arg.StartTime,
		arg.EndTime,
		arg.ZoneName,
		arg.Difficulty,
	)
	return err
}

const insertEncounter = `
INSERT INTO encounters (raid_id, fight_id, boss_name, kill_time, wipe_count, kill_duration_ms, is_kill)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type InsertEncounterParams struct {
	RaidID         string
	FightID        int64
	BossName       string
	KillTime       int64
	WipeCount      int64
	KillDurationMs int64
	IsKill         bool
}

func (q *Queries) InsertEncounter(ctx context.Context, arg InsertEncounterParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertEncounter,
		arg.RaidID,
		arg.FightID,
		arg.BossName,
		arg.KillTime,
		arg.WipeCount,
		arg.KillDurationMs,
		arg.IsKill,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const insertPlayerPerformance = `
INSERT INTO player_performance
(raid_id, encounter_id, boss_name, player_name, player_class, spec, role, dps, hps, parse_percentile, deaths)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertPlayerPerformanceParams struct {
	RaidID          string
	EncounterID     sql.NullInt64
	BossName        sql.NullString
	PlayerName      string
	PlayerClass     sql.NullString
	Spec            sql.NullString
	Role            sql.NullString
	Dps             sql.NullFloat64
	Hps             sql.NullFloat64
	ParsePercentile sql.NullInt64
	Deaths          int64
}

func (q *Queries) InsertPlayerPerformance(ctx context.Context, arg InsertPlayerPerformanceParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertPlayerPerformance,
		arg.RaidID,
		arg.EncounterID,
		arg.BossName,
		arg.PlayerName,
		arg.PlayerClass,
		arg.Spec,
		arg.Role,
		arg.Dps,
		arg.Hps,
		arg.ParsePercentile,
		arg.Deaths,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const insertDeath = `
INSERT INTO deaths (raid_id, fight_id, boss_name, player_name, ability_name, ability_id, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type InsertDeathParams struct {
	RaidID      string
	FightID     int64
	BossName    sql.NullString
	PlayerName  string
	AbilityName sql.NullString
	AbilityID   int64
	Timestamp   int64
}

func (q *Queries) InsertDeath(ctx context.Context, arg InsertDeathParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertDeath,
		arg.RaidID,
		arg.FightID,
		arg.BossName,
		arg.PlayerName,
		arg.AbilityName,
		arg.AbilityID,
		arg.Timestamp,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const deleteDeathsByRaid = `DELETE FROM deaths WHERE raid_id = ?`

func (q *Queries) DeleteDeathsByRaid(ctx context.Context, raidID string) error {
	_, err := q.db.ExecContext(ctx, deleteDeathsByRaid, raidID)
	return err
}

const deletePerformanceByRaid = `DELETE FROM player_performance WHERE raid_id = ?`

func (q *Queries) DeletePerformanceByRaid(ctx context.Context, raidID string) error {
	_, err := q.db.ExecContext(ctx, deletePerformanceByRaid, raidID)
	return err
}

const deleteEncountersByRaid = `DELETE FROM encounters WHERE raid_id = ?`

func (q *Queries) DeleteEncountersByRaid(ctx context.Context, raidID string) error {
	_, err := q.db.ExecContext(ctx, deleteEncountersByRaid, raidID)
	return err
}

const deleteRaid = `DELETE FROM raids WHERE raid_id = ?`

func (q *Queries) DeleteRaid(ctx context.Context, raidID string) error {
	_, err := q.db.ExecContext(ctx, deleteRaid, raidID)
	return err
}

const countRaidRows = `
SELECT
    (SELECT COUNT(*) FROM raids WHERE raid_id = ?) AS raids,
    (SELECT COUNT(*) FROM encounters WHERE raid_id = ?) AS encounters,
    (SELECT COUNT(*) FROM player_performance WHERE raid_id = ?) AS performances,
    (SELECT COUNT(*) FROM deaths WHERE raid_id = ?) AS deaths
`

type CountRaidRowsRow struct {
	Raids        int64
	Encounters   int64
	Performances int64
	Deaths       int64
}

func (q *Queries) CountRaidRows(ctx context.Context, raidID string) (CountRaidRowsRow, error) {
	row := q.db.QueryRowContext(ctx, countRaidRows, raidID, raidID, raidID, raidID)
	var i CountRaidRowsRow
	err := row.Scan(&i.Raids, &i.Encounters, &i.Performances, &i.Deaths)
	return i, err
}

const getRaid = `
SELECT raid_id, raid_name, start_time, end_time, zone_name, difficulty
FROM raids WHERE raid_id = ?
`

type GetRaidRow struct {
	RaidID     string
	RaidName   string
	StartTime  int64
	EndTime    int64
	ZoneName   sql.NullString
	Difficulty sql.NullString
}

func (q *Queries) GetRaid(ctx context.Context, raidID string) (GetRaidRow, error) {
	row := q.db.QueryRowContext(ctx, getRaid, raidID)
	var i GetRaidRow
	err := row.Scan(&i.RaidID, &i.RaidName, &i.StartTime, &i.EndTime, &i.ZoneName, &i.Difficulty)
	return i, err
}
