package main

import (
	"context"
	"database/sql"

	fxmodules "raid-stats/internal/fx"
	"raid-stats/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runIngest),
	).Run()
}

// runIngest performs one ingestion and then stops the app, exiting non-zero
// if the run failed.
func runIngest(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	ingest *service.IngestService,
	db *sql.DB,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				code := 0
				result, err := ingest.Run(ctx)
				if err != nil {
					logger.Error().Err(err).Str("run_id", result.RunID).Msg("ingestion failed")
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error().Err(err).Msg("failed to signal shutdown")
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
}
