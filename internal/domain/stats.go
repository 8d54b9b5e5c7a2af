package domain

type Metric string

const (
	MetricDPS             Metric = "dps"
	MetricHPS             Metric = "hps"
	MetricParsePercentile Metric = "parse_percentile"
)

// ParseMetric restricts to the ranked columns; anything else ranks by dps.
func ParseMetric(s string) Metric {
	switch Metric(s) {
	case MetricDPS, MetricHPS, MetricParsePercentile:
		return Metric(s)
	default:
		return MetricDPS
	}
}

type WeeklySummary struct {
	TotalRaids         int     `json:"total_raids" db:"total_raids"`
	TotalBossesKilled  int     `json:"total_bosses_killed" db:"total_bosses_killed"`
	TotalWipes         int     `json:"total_wipes" db:"total_wipes"`
	TotalRaidTimeHours float64 `json:"total_raid_time_hours" db:"total_raid_time_hours"`
}

type TopPerformer struct {
	Name  string  `json:"name" db:"player_name"`
	Class string  `json:"class" db:"player_class"`
	Role  string  `json:"role" db:"role"`
	Avg   float64 `json:"avg" db:"avg_performance"`
	Max   float64 `json:"max" db:"max_performance"`
}

type BossStatistic struct {
	Boss  string `json:"boss" db:"boss_name"`
	Kills int    `json:"kills" db:"kills"`
	Wipes int    `json:"wipes" db:"wipes"`
	// nil when the boss was never killed in the window
	AvgKillTimeSec *float64 `json:"avg_kill_time" db:"avg_kill_time_sec"`
}

type DeathCause struct {
	Ability         string `json:"ability" db:"ability_name"`
	Deaths          int    `json:"deaths" db:"death_count"`
	PlayersAffected int    `json:"players_affected" db:"players_affected"`
	Boss            string `json:"boss" db:"boss_name"`
	AbilityID       int64  `json:"ability_id" db:"ability_id"`
}

type PlayerDeathCount struct {
	Player string `json:"player" db:"player_name"`
	Deaths int    `json:"deaths" db:"death_count"`
}

// WeeklySnapshot is the materialized copy of a week's aggregates.
type WeeklySnapshot struct {
	Window  Window          `json:"window"`
	Summary WeeklySummary   `json:"summary"`
	Details SnapshotDetails `json:"details"`
	RunID   string          `json:"run_id"`
}

type SnapshotDetails struct {
	Bosses      []BossStatistic    `json:"bosses"`
	TopDPS      []TopPerformer     `json:"top_dps"`
	TopHPS      []TopPerformer     `json:"top_hps"`
	DeathCauses []DeathCause       `json:"death_causes"`
	Deaths      []PlayerDeathCount `json:"player_deaths"`
}
