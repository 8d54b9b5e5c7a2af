package constants

import "time"

const (
	WarcraftLogsAPIURL   = "https://www.warcraftlogs.com/api/v2/client"
	WarcraftLogsTokenURL = "https://www.warcraftlogs.com/oauth/token"
)

const (
	ReportPageLimit    = 50
	ReportFallbackSize = 10
	DeathEventLimit    = 1000
	TrashFightName     = "Trash"
)

const (
	TokenSafetyMargin = 60 * time.Second
	DefaultDaysBack   = 7
	FetchConcurrency  = 4
	APIMaxRetries     = 3
	RetryBaseInterval = 500 * time.Millisecond
	RetryMaxInterval  = 10 * time.Second
)

const (
	ExternalAPITimeout = 15 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	IngestTimeout      = 10 * time.Minute
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
	// ingest runs in its own process and cannot flush the server's cache, so
	// this bounds how stale the read API gets after a run
	StatsCacheTTL = 30 * time.Second
)

const (
	TopPerformerLimit = 5
	DeathCauseLimit   = 10
	WeekDuration      = 7 * 24 * time.Hour
)
