package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/domain"

	"github.com/rs/zerolog"
)

const guildReportsQuery = `
query($guildName: String!, $serverSlug: String!, $serverRegion: String!, $limit: Int!) {
  reportData {
    reports(
      guildName: $guildName
      guildServerSlug: $serverSlug
      guildServerRegion: $serverRegion
      limit: $limit
    ) {
      data {
        code
        title
        owner { name }
        startTime
        endTime
        zone { name }
        fights {
          id
          name
          difficulty
          kill
          fightPercentage
          startTime
          endTime
        }
      }
    }
  }
}`

type Report struct {
	Code      string  `json:"code"`
	Title     string  `json:"title"`
	Owner     *Owner  `json:"owner"`
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
	Zone      *Zone   `json:"zone"`
	Fights    []Fight `json:"fights"`
}

type Owner struct {
	Name string `json:"name"`
}

type Zone struct {
	Name string `json:"name"`
}

type Fight struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Difficulty      *int     `json:"difficulty"`
	Kill            *bool    `json:"kill"`
	FightPercentage *float64 `json:"fightPercentage"`
	StartTime       int64    `json:"startTime"`
	EndTime         int64    `json:"endTime"`
}

func (r Report) OwnerName() string {
	if r.Owner == nil {
		return ""
	}
	return r.Owner.Name
}

func (r Report) ZoneName() string {
	if r.Zone == nil {
		return ""
	}
	return r.Zone.Name
}

func (f Fight) IsKill() bool {
	return f.Kill != nil && *f.Kill
}

func (f Fight) DurationMS() int64 {
	return f.EndTime - f.StartTime
}

type guildReportsResponse struct {
	ReportData struct {
		Reports struct {
			Data []Report `json:"data"`
		} `json:"reports"`
	} `json:"reportData"`
}

// ReportLister pulls a guild's recent reports and trims them to a window.
type ReportLister struct {
	client     *Client
	teamFilter string
	now        func() time.Time
	logger     zerolog.Logger
}

func NewReportLister(cfg *config.Config, client *Client, logger zerolog.Logger) *ReportLister {
	return &ReportLister{
		client:     client,
		teamFilter: cfg.RaidTeamFilter,
		now:        time.Now,
		logger:     logger.With().Str("component", "report_lister").Logger(),
	}
}

func (l *ReportLister) ListReports(ctx context.Context, guildName, realmSlug, region string, daysBack int) ([]Report, error) {
	vars := map[string]any{
		"guildName":    guildName,
		"serverSlug":   strings.ReplaceAll(strings.ToLower(realmSlug), " ", "-"),
		"serverRegion": strings.ToUpper(region),
		"limit":        constants.ReportPageLimit,
	}

	res, err := query[guildReportsResponse](ctx, l.client, guildReportsQuery, vars)
	if err != nil {
		l.logger.Error().Err(err).Str("guild", guildName).Msg("failed to list guild reports")
		return nil, fmt.Errorf("failed to list guild reports: %w", err)
	}

	reports := res.ReportData.Reports.Data
	total := len(reports)

	if l.teamFilter != "" {
		reports = FilterByOwner(reports, l.teamFilter)
		l.logger.Info().Str("owner", l.teamFilter).Int("count", len(reports)).Msg("filtered reports by owner")
	}

	window := domain.TrailingWindow(l.now(), time.Duration(daysBack)*24*time.Hour)
	inWindow, fallback := FilterByWindow(reports, window)

	l.logger.Info().
		Int("total", total).
		Int("in_window", len(inWindow)).
		Int("days_back", daysBack).
		Bool("fallback", fallback).
		Msg("reports listed")
	if fallback {
		l.logger.Warn().Int("count", len(inWindow)).Msg("no reports inside window, using most recent reports instead")
	}

	return inWindow, nil
}

func FilterByOwner(reports []Report, owner string) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if strings.EqualFold(r.OwnerName(), owner) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByWindow keeps reports that started inside the window. When none do it
// returns up to ReportFallbackSize of the most recent reports and true.
func FilterByWindow(reports []Report, window domain.Window) ([]Report, bool) {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if window.Contains(r.StartTime) {
			out = append(out, r)
		}
	}
	if len(out) > 0 || len(reports) == 0 {
		return out, false
	}

	recent := make([]Report, len(reports))
	copy(recent, reports)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].StartTime > recent[j].StartTime
	})
	if len(recent) > constants.ReportFallbackSize {
		recent = recent[:constants.ReportFallbackSize]
	}
	return recent, true
}
