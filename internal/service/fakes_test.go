package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raid-stats/internal/api"
	"raid-stats/internal/config"
	"raid-stats/internal/database"
	"raid-stats/internal/db"
	"raid-stats/internal/normalize"
	"raid-stats/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// upstream fakes both the token endpoint and the GraphQL endpoint. Reports
// are fixed at construction; per-fight and master data failures can be
// switched on per test.
type upstream struct {
	*httptest.Server
	reportStart int64

	tokenStatus    int
	failMasterData atomic.Bool
	failFights     sync.Map // fight id -> struct{}

	tokenHits atomic.Int32
	fightHits atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{
		reportStart: time.Now().Add(-24 * time.Hour).UnixMilli(),
		tokenStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		u.tokenHits.Add(1)
		w.WriteHeader(u.tokenStatus)
		if u.tokenStatus != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"fake-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/v2/client", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fake-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch {
		case strings.Contains(req.Query, "reports("):
			_, _ = io.WriteString(w, u.reportsPayload())
		case strings.Contains(req.Query, "masterData"):
			if u.failMasterData.Load() {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = io.WriteString(w, masterDataPayload)
		case strings.Contains(req.Query, "healingTable"):
			u.fightHits.Add(1)
			ids, _ := req.Variables["fightIDs"].([]any)
			if len(ids) != 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			id := int(ids[0].(float64))
			if _, fail := u.failFights.Load(id); fail {
				_, _ = io.WriteString(w, `{"errors":[{"message":"fight unavailable"}]}`)
				return
			}
			_, _ = io.WriteString(w, fightPayload(id))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

// Report "rep1" has a trash pull, a wipe and kill on Plexus Sentinel, and a
// kill on Fractillus. Report "rep2" belongs to another team.
func (u *upstream) reportsPayload() string {
	s := u.reportStart
	return fmt.Sprintf(`{"data":{"reportData":{"reports":{"data":[
		{"code":"rep1","title":"Tuesday","owner":{"name":"Main Team"},"startTime":%d,"endTime":%d,"zone":{"name":"Manaforge Omega"},
		 "fights":[
			{"id":1,"name":"Trash","difficulty":5,"kill":false,"startTime":%d,"endTime":%d},
			{"id":2,"name":"Plexus Sentinel","difficulty":5,"kill":false,"fightPercentage":35.5,"startTime":%d,"endTime":%d},
			{"id":3,"name":"Plexus Sentinel","difficulty":5,"kill":true,"fightPercentage":0,"startTime":%d,"endTime":%d},
			{"id":4,"name":"Fractillus","difficulty":5,"kill":true,"fightPercentage":0,"startTime":%d,"endTime":%d}
		 ]},
		{"code":"rep2","title":"Alt Run","owner":{"name":"Alt Team"},"startTime":%d,"endTime":%d,"fights":[
			{"id":1,"name":"Fractillus","difficulty":4,"kill":true,"startTime":0,"endTime":1000}
		]}
	]}}}}`,
		s, s+2*60*60*1000,
		s, s+60_000,
		s+100_000, s+190_000,
		s+200_000, s+325_000,
		s+400_000, s+520_000,
		s, s+1000,
	)
}

const masterDataPayload = `{"data":{"reportData":{"report":{"masterData":{
	"actors":[
		{"id":10,"name":"Alice","type":"Player","subType":"Mage"},
		{"id":11,"name":"Bob","type":"Player","subType":"Rogue"},
		{"id":12,"name":"Erin","type":"Player","subType":"Priest"}
	],
	"abilities":[{"gameID":500,"name":"Crushing Grip"}]
}}}}}`

func fightPayload(id int) string {
	return fmt.Sprintf(`{"data":{"reportData":{"report":{
		"table":{"data":{"entries":[
			{"id":10,"name":"Alice","type":"Mage","icon":"Mage-Fire","total":%d},
			{"id":11,"name":"Bob","type":"Rogue","icon":"Rogue-Outlaw","total":%d}
		]}},
		"healingTable":{"data":{"entries":[
			{"id":12,"name":"Erin","type":"Priest","icon":"Priest-Holy","total":1000000}
		]}},
		"deaths":{"data":[{"timestamp":1,"fight":%d,"targetID":10,"killingAbilityGameID":500}]}
	}}}}`, 10_000_000*id, 5_000_000*id, id)
}

type harness struct {
	cfg    *config.Config
	sql    *sql.DB
	raids  *repository.RaidRepository
	stats  *StatsService
	ingest *IngestService
}

func newHarness(t *testing.T, u *upstream) *harness {
	t.Helper()
	cfg := &config.Config{
		ClientID:          "id",
		ClientSecret:      "secret",
		APIURL:            u.URL + "/api/v2/client",
		TokenURL:          u.URL + "/oauth/token",
		GuildName:         "Example Guild",
		GuildRealm:        "Area 52",
		GuildRegion:       "us",
		RaidTeamFilter:    "Main Team",
		BossFilter:        append([]string(nil), config.DefaultBossFilter...),
		DBPath:            filepath.Join(t.TempDir(), "raid_stats.db"),
		DaysBack:          7,
		FetchConcurrency:  2,
		TokenSafetyMargin: time.Minute,
		APIMaxRetries:     0,
		CacheTTL:          time.Minute,
	}
	log := zerolog.Nop()

	sqlDB, err := database.New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	queries := db.New(sqlDB)

	httpClient := api.NewHTTPClient()
	client := api.NewClient(cfg, httpClient, api.NewTokenCache(cfg, httpClient, log), log)

	raids := repository.NewRaidRepository(sqlDB, queries, log)
	stats := NewStatsService(cfg, repository.NewStatsRepository(database.NewSQLX(sqlDB), queries, log), log)
	ingest := NewIngestService(
		cfg,
		api.NewReportLister(cfg, client, log),
		api.NewActorResolver(client, log),
		api.NewFightDetailFetcher(client, log),
		normalize.NewFromConfig(cfg),
		raids,
		stats,
		log,
	)
	return &harness{cfg: cfg, sql: sqlDB, raids: raids, stats: stats, ingest: ingest}
}
