package db

import (
	"context"
	"database/sql"
)

const upsertWeeklySummary = `
INSERT INTO weekly_summaries
(week_start, week_end, total_raids, total_bosses_killed, total_wipes, total_raid_time_hours, summary_data, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(week_start) DO UPDATE SET
    week_end = excluded.week_end,
    total_raids = excluded.total_raids,
    total_bosses_killed = excluded.total_bosses_killed,
    total_wipes = excluded.total_wipes,
    total_raid_time_hours = excluded.total_raid_time_hours,
    summary_data = excluded.summary_data,
    run_id = excluded.run_id,
    created_at = CURRENT_TIMESTAMP
`

type UpsertWeeklySummaryParams struct {
	WeekStart          int64
	WeekEnd            int64
	TotalRaids         int64
	TotalBossesKilled  int64
	TotalWipes         int64
	TotalRaidTimeHours float64
	SummaryData        string
	RunID              sql.NullString
}

func (q *Queries) UpsertWeeklySummary(ctx context.Context, arg UpsertWeeklySummaryParams) error {
	_, err := q.db.ExecContext(ctx, upsertWeeklySummary,
		arg.WeekStart,
		arg.WeekEnd,
		arg.TotalRaids,
		arg.TotalBossesKilled,
		arg.TotalWipes,
		arg.TotalRaidTimeHours,
		arg.SummaryData,
		arg.RunID,
	)
	return err
}

const getWeeklySummary = `
SELECT week_start, week_end, total_raids, total_bosses_killed, total_wipes, total_raid_time_hours, summary_data, run_id
FROM weekly_summaries
WHERE week_start = ?
`

type GetWeeklySummaryRow struct {
	WeekStart          int64
	WeekEnd            int64
	TotalRaids         int64
	TotalBossesKilled  int64
	TotalWipes         int64
	TotalRaidTimeHours float64
	SummaryData        sql.NullString
	RunID              sql.NullString
}

func (q *Queries) GetWeeklySummary(ctx context.Context, weekStart int64) (GetWeeklySummaryRow, error) {
	row := q.db.QueryRowContext(ctx, getWeeklySummary, weekStart)
	var i GetWeeklySummaryRow
	err := row.Scan(
		&i.WeekStart,
		&i.WeekEnd,
		&i.TotalRaids,
		&i.TotalBossesKilled,
		&i.TotalWipes,
		&i.TotalRaidTimeHours,
		&i.SummaryData,
		&i.RunID,
	)
	return i, err
}

const getLatestWeeklySummary = `
SELECT week_start, week_end, total_raids, total_bosses_killed, total_wipes, total_raid_time_hours, summary_data, run_id
FROM weekly_summaries
ORDER BY week_start DESC
LIMIT 1
`

func (q *Queries) GetLatestWeeklySummary(ctx context.Context) (GetWeeklySummaryRow, error) {
	row := q.db.QueryRowContext(ctx, getLatestWeeklySummary)
	var i GetWeeklySummaryRow
	err := row.Scan(
		&i.WeekStart,
		&i.WeekEnd,
		&i.TotalRaids,
		&i.TotalBossesKilled,
		&i.TotalWipes,
		&i.TotalRaidTimeHours,
		&i.SummaryData,
		&i.RunID,
	)
	return i, err
}
