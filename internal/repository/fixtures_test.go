package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"raid-stats/internal/config"
	"raid-stats/internal/database"
	"raid-stats/internal/db"
	"raid-stats/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	raidStart = int64(1_700_000_000_000)
	hourMS    = int64(60 * 60 * 1000)
)

var everything = domain.Window{Start: 0, End: raidStart * 2}

type testStore struct {
	sql   *sql.DB
	raids *RaidRepository
	stats *StatsRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "raid_stats.db")}

	sqlDB, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	return &testStore{
		sql:   sqlDB,
		raids: NewRaidRepository(sqlDB, queries, zerolog.Nop()),
		stats: NewStatsRepository(database.NewSQLX(sqlDB), queries, zerolog.Nop()),
	}
}

func mustEncounter(t *testing.T, raidID string, fightID int, boss string, kill bool, durationMS int64) domain.Encounter {
	t.Helper()
	e, err := domain.NewEncounter(raidID, fightID, boss, kill, 0, durationMS)
	require.NoError(t, err)
	return e
}

func mustPerformance(t *testing.T, raidID string, fightID int, boss, player, class string, role domain.Role, value float64) domain.PlayerPerformance {
	t.Helper()
	p, err := domain.NewPlayerPerformance(raidID, fightID, boss, player, role, value)
	require.NoError(t, err)
	p.PlayerClass = class
	p.Spec = "Spec"
	return p
}

func mustDeath(t *testing.T, raidID string, fightID int, boss, player, ability string, abilityID int64) domain.Death {
	t.Helper()
	d, err := domain.NewDeath(raidID, fightID, boss, player)
	require.NoError(t, err)
	d.AbilityName = ability
	d.AbilityID = abilityID
	return d
}

// sampleBatch is one hour-long raid: a kill and a wipe on Boss A, a kill on
// Boss B.
//
//	dps avg: Alice 400 (300, 500), Bob 400, Carol 350, Dave 100
//	deaths:  Alice 2, Bob 1, Carol 1 (ability "Unknown")
func sampleBatch(t *testing.T, raidID string, start int64) domain.Batch {
	t.Helper()
	raid, err := domain.NewRaid(raidID, "Tuesday Raid", start, start+hourMS)
	require.NoError(t, err)
	raid.ZoneName = "Manaforge Omega"
	raid.Difficulty = "Mythic"

	return domain.Batch{
		Raids: []domain.Raid{raid},
		Encounters: []domain.Encounter{
			mustEncounter(t, raidID, 1, "Boss A", true, 120_000),
			mustEncounter(t, raidID, 2, "Boss A", false, 45_000),
			mustEncounter(t, raidID, 3, "Boss B", true, 60_000),
		},
		Performances: []domain.PlayerPerformance{
			mustPerformance(t, raidID, 1, "Boss A", "Alice", "Mage", domain.RoleDPS, 300),
			mustPerformance(t, raidID, 1, "Boss A", "Bob", "Rogue", domain.RoleDPS, 400),
			mustPerformance(t, raidID, 1, "Boss A", "Carol", "Warrior", domain.RoleDPS, 350),
			mustPerformance(t, raidID, 1, "Boss A", "Dave", "Hunter", domain.RoleDPS, 100),
			mustPerformance(t, raidID, 3, "Boss B", "Alice", "Mage", domain.RoleDPS, 500),
			mustPerformance(t, raidID, 1, "Boss A", "Erin", "Priest", domain.RoleHealer, 250),
		},
		Deaths: []domain.Death{
			mustDeath(t, raidID, 2, "Boss A", "Alice", "Fireball", 1),
			mustDeath(t, raidID, 2, "Boss A", "Bob", "Fireball", 1),
			mustDeath(t, raidID, 2, "Boss A", "Carol", "Unknown", 0),
			mustDeath(t, raidID, 3, "Boss B", "Alice", "Cleave", 2),
		},
	}
}
