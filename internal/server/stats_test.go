package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"raid-stats/internal/config"
	"raid-stats/internal/database"
	"raid-stats/internal/db"
	"raid-stats/internal/domain"
	"raid-stats/internal/repository"
	"raid-stats/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mux   *http.ServeMux
	sql   *sql.DB
	stats *service.StatsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "raid_stats.db")}
	log := zerolog.Nop()

	sqlDB, err := database.New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	raids := repository.NewRaidRepository(sqlDB, queries, log)
	stats := service.NewStatsService(cfg, repository.NewStatsRepository(database.NewSQLX(sqlDB), queries, log), log)

	raid, err := domain.NewRaid("abc", "Tuesday", 1_000, 1_000+3_600_000)
	require.NoError(t, err)
	kill, err := domain.NewEncounter("abc", 1, "Fractillus", true, 0, 120_000)
	require.NoError(t, err)
	wipe, err := domain.NewEncounter("abc", 2, "Fractillus", false, 0, 30_000)
	require.NoError(t, err)
	alice, err := domain.NewPlayerPerformance("abc", 1, "Fractillus", "Alice", domain.RoleDPS, 500)
	require.NoError(t, err)
	bob, err := domain.NewPlayerPerformance("abc", 1, "Fractillus", "Bob", domain.RoleDPS, 300)
	require.NoError(t, err)
	death, err := domain.NewDeath("abc", 2, "Fractillus", "Bob")
	require.NoError(t, err)
	death.AbilityName = "Shatter"
	death.AbilityID = 77

	_, err = raids.ReplaceRaids(context.Background(), domain.Batch{
		Raids:        []domain.Raid{raid},
		Encounters:   []domain.Encounter{kill, wipe},
		Performances: []domain.PlayerPerformance{alice, bob},
		Deaths:       []domain.Death{death},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewStatsServer(stats, log).Register(mux)
	mux.HandleFunc("GET /healthz", Health(sqlDB))
	return &fixture{mux: mux, sql: sqlDB, stats: stats}
}

func (f *fixture) get(t *testing.T, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

const testWindow = "week_start=0&week_end=10000"

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Window domain.Window        `json:"window"`
		Data   domain.WeeklySummary `json:"data"`
	}
	rec := f.get(t, "/api/v1/summary?"+testWindow, &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Window{Start: 0, End: 10_000}, body.Window)
	assert.Equal(t, domain.WeeklySummary{TotalRaids: 1, TotalBossesKilled: 1, TotalWipes: 1, TotalRaidTimeHours: 1}, body.Data)
}

func TestSummaryEndpointEmptyWindow(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Data domain.WeeklySummary `json:"data"`
	}
	rec := f.get(t, "/api/v1/summary?week_start=50000&week_end=60000", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.WeeklySummary{}, body.Data)
}

func TestTopPerformersEndpoint(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Metric string                `json:"metric"`
		Data   []domain.TopPerformer `json:"data"`
	}
	rec := f.get(t, "/api/v1/top-performers?metric=dps&limit=1&"+testWindow, &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dps", body.Metric)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Alice", body.Data[0].Name)
	assert.Equal(t, 500.0, body.Data[0].Avg)
}

func TestBossesEndpoint(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Data []domain.BossStatistic `json:"data"`
	}
	rec := f.get(t, "/api/v1/bosses?"+testWindow, &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Fractillus", body.Data[0].Boss)
	require.NotNil(t, body.Data[0].AvgKillTimeSec)
	assert.Equal(t, 120.0, *body.Data[0].AvgKillTimeSec)
}

func TestDeathEndpoints(t *testing.T) {
	f := newFixture(t)

	var causes struct {
		Data []domain.DeathCause `json:"data"`
	}
	rec := f.get(t, "/api/v1/death-causes?limit=5&"+testWindow, &causes)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.DeathCause{{Ability: "Shatter", Deaths: 1, PlayersAffected: 1, Boss: "Fractillus", AbilityID: 77}}, causes.Data)

	var players struct {
		Data []domain.PlayerDeathCount `json:"data"`
	}
	rec = f.get(t, "/api/v1/player-deaths?"+testWindow, &players)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.PlayerDeathCount{{Player: "Bob", Deaths: 1}}, players.Data)
}

func TestBadParametersReturn400(t *testing.T) {
	f := newFixture(t)

	targets := []string{
		"/api/v1/summary?week_start=yesterday",
		"/api/v1/summary?week_end=1.5",
		"/api/v1/bosses?week_start=10&week_end=5",
		"/api/v1/top-performers?metric=kills",
		"/api/v1/top-performers?limit=0",
		"/api/v1/death-causes?limit=abc",
		"/api/v1/death-causes?limit=1000",
		"/api/v1/snapshot?week_start=x",
	}
	for _, target := range targets {
		var body errorResponse
		rec := f.get(t, target, &body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, body.Error, target)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	f := newFixture(t)

	var missing errorResponse
	rec := f.get(t, "/api/v1/snapshot", &missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.stats.SaveSnapshot(context.Background(), domain.Window{Start: 0, End: 10_000}, "run-1")
	require.NoError(t, err)

	var snap domain.WeeklySnapshot
	rec = f.get(t, "/api/v1/snapshot?week_start=0", &snap)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 1, snap.Summary.TotalRaids)
	assert.Len(t, snap.Details.TopDPS, 2)

	rec = f.get(t, "/api/v1/snapshot", &snap)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", snap.RunID)
}

func TestWindowDefaultsFromEnd(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Window domain.Window `json:"window"`
	}
	f.get(t, "/api/v1/summary?week_end=700000000", &body)
	assert.Equal(t, int64(700_000_000), body.Window.End)
	assert.Equal(t, int64(700_000_000-7*24*60*60*1000), body.Window.Start)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	var body map[string]string
	rec := f.get(t, "/healthz", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, f.sql.Close())
	rec = f.get(t, "/healthz", &body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
