package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"raid-stats/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// DefaultBossFilter is the current raid tier, in encounter order.
var DefaultBossFilter = []string{
	"Plexus Sentinel",
	"Loom'ithar",
	"Soulbinder Naazindhri",
	"Forgeweaver Araz",
	"The Soul Hunters",
	"Fractillus",
	"Nexus-King Salhadaar",
	"Dimensius, the All-Devouring",
}

type Config struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string

	GuildName        string
	GuildRealm       string
	GuildRegion      string
	RaidTeamFilter   string
	DifficultyFilter *int
	BossFilter       []string

	DBPath            string
	DaysBack          int
	FetchConcurrency  int
	TokenSafetyMargin time.Duration
	APIMaxRetries     int

	ServerPort string
	LogLevel   string
	// CacheTTL is per process. The server keeps serving cached results for
	// up to this long after an ingest run writes new rows.
	CacheTTL time.Duration
}

// ConfigError lists every required setting that was absent.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		logger.Error().Err(err).Msg("configuration rejected")
		return nil, err
	}

	logger.Info().
		Str("guild", cfg.GuildName).
		Str("realm", cfg.GuildRealm).
		Str("region", cfg.GuildRegion).
		Str("team_filter", cfg.RaidTeamFilter).
		Int("bosses", len(cfg.BossFilter)).
		Str("db_path", cfg.DBPath).
		Int("days_back", cfg.DaysBack).
		Str("log_level", cfg.LogLevel).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("configuration loaded")

	return cfg, nil
}

// FromEnv builds and validates a Config from a lookup function. Validation
// happens here so callers fail before touching the network.
func FromEnv(lookup func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return fallback
	}

	cfgErr := &ConfigError{}

	intEnv := func(key string, fallback int) int {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			cfgErr.Invalid = append(cfgErr.Invalid, key)
			return fallback
		}
		return v
	}

	durEnv := func(key string, fallback time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v < 0 {
			cfgErr.Invalid = append(cfgErr.Invalid, key)
			return fallback
		}
		return v
	}

	cfg := &Config{
		ClientID:          env("WARCRAFTLOGS_CLIENT_ID", ""),
		ClientSecret:      env("WARCRAFTLOGS_CLIENT_SECRET", ""),
		APIURL:            env("WARCRAFTLOGS_API_URL", constants.WarcraftLogsAPIURL),
		TokenURL:          env("WARCRAFTLOGS_TOKEN_URL", constants.WarcraftLogsTokenURL),
		GuildName:         env("GUILD_NAME", ""),
		GuildRealm:        env("GUILD_REALM", ""),
		GuildRegion:       env("GUILD_REGION", "us"),
		RaidTeamFilter:    env("RAID_TEAM_FILTER", ""),
		BossFilter:        splitList(env("BOSS_FILTER", ""), DefaultBossFilter),
		DBPath:            env("DB_PATH", "raid_stats.db"),
		DaysBack:          intEnv("DAYS_BACK", constants.DefaultDaysBack),
		FetchConcurrency:  intEnv("FETCH_CONCURRENCY", constants.FetchConcurrency),
		TokenSafetyMargin: durEnv("TOKEN_SAFETY_MARGIN", constants.TokenSafetyMargin),
		APIMaxRetries:     intEnv("API_MAX_RETRIES", constants.APIMaxRetries),
		ServerPort:        env("SERVER_PORT", "8080"),
		LogLevel:          env("LOG_LEVEL", "info"),
		CacheTTL:          durEnv("CACHE_TTL", constants.StatsCacheTTL),
	}

	if raw := env("DIFFICULTY_FILTER", ""); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			cfgErr.Invalid = append(cfgErr.Invalid, "DIFFICULTY_FILTER")
		} else {
			cfg.DifficultyFilter = &d
		}
	}

	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 1
	}

	required := []struct {
		key   string
		value string
	}{
		{"WARCRAFTLOGS_CLIENT_ID", cfg.ClientID},
		{"WARCRAFTLOGS_CLIENT_SECRET", cfg.ClientSecret},
		{"GUILD_NAME", cfg.GuildName},
		{"GUILD_REALM", cfg.GuildRealm},
	}
	for _, r := range required {
		if r.value == "" {
			cfgErr.Missing = append(cfgErr.Missing, r.key)
		}
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return nil, cfgErr
	}
	return cfg, nil
}

// ServerSlug is the realm as the upstream expects it: lower case, hyphenated.
func (c *Config) ServerSlug() string {
	return strings.ReplaceAll(strings.ToLower(c.GuildRealm), " ", "-")
}

func (c *Config) ServerRegion() string {
	return strings.ToUpper(c.GuildRegion)
}

func (c *Config) String() string {
	return fmt.Sprintf("%s-%s (%s)", c.GuildName, c.ServerSlug(), c.ServerRegion())
}

// splitList splits on ";" because boss names carry commas.
func splitList(raw string, fallback []string) []string {
	if raw == "" {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	var out []string
	for _, item := range strings.Split(raw, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var Module = fx.Provide(Load)
