package fx

import (
	"database/sql"

	"raid-stats/internal/api"
	"raid-stats/internal/config"
	"raid-stats/internal/database"
	"raid-stats/internal/db"
	"raid-stats/internal/logger"
	"raid-stats/internal/normalize"
	"raid-stats/internal/repository"
	"raid-stats/internal/server"
	"raid-stats/internal/service"

	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ApplyLogLevel(cfg *config.Config) {
	logger.SetLevel(cfg.LogLevel)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Invoke(ApplyLogLevel),
	// storage
	fx.Provide(database.New),
	fx.Provide(database.NewSQLX),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(repository.NewRaidRepository),
	fx.Provide(repository.NewStatsRepository),
	// upstream api
	fx.Provide(api.NewHTTPClient),
	fx.Provide(api.NewTokenCache),
	fx.Provide(api.NewClient),
	fx.Provide(api.NewReportLister),
	fx.Provide(api.NewActorResolver),
	fx.Provide(api.NewFightDetailFetcher),
	fx.Provide(normalize.NewFromConfig),
	// svc
	fx.Provide(service.NewStatsService),
	fx.Provide(service.NewIngestService),
	// server
	fx.Provide(server.NewStatsServer),
)
