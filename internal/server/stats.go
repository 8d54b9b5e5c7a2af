package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"raid-stats/internal/constants"
	"raid-stats/internal/domain"
	"raid-stats/internal/repository"
	"raid-stats/internal/service"

	"github.com/rs/zerolog"
)

const maxLimit = 100

var errBadParam = errors.New("invalid query parameter")

// StatsServer exposes the aggregation queries as JSON over HTTP.
type StatsServer struct {
	stats  *service.StatsService
	logger zerolog.Logger
}

func NewStatsServer(stats *service.StatsService, logger zerolog.Logger) *StatsServer {
	return &StatsServer{stats: stats, logger: logger.With().Str("component", "stats_server").Logger()}
}

type windowResponse[T any] struct {
	Window domain.Window `json:"window"`
	Data   T             `json:"data"`
}

type topPerformersResponse struct {
	Window     domain.Window         `json:"window"`
	Metric     domain.Metric         `json:"metric"`
	Performers []domain.TopPerformer `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register mounts every endpoint on mux under /api/v1.
func (s *StatsServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/summary", s.Summary)
	mux.HandleFunc("GET /api/v1/top-performers", s.TopPerformers)
	mux.HandleFunc("GET /api/v1/bosses", s.Bosses)
	mux.HandleFunc("GET /api/v1/death-causes", s.DeathCauses)
	mux.HandleFunc("GET /api/v1/player-deaths", s.PlayerDeaths)
	mux.HandleFunc("GET /api/v1/snapshot", s.Snapshot)
}

func (s *StatsServer) Summary(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	summary, err := s.stats.Summary(ctx, window)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowResponse[domain.WeeklySummary]{Window: window, Data: summary})
}

func (s *StatsServer) TopPerformers(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	metric, err := parseMetric(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	limit, err := parseLimit(r, constants.TopPerformerLimit)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	performers, err := s.stats.TopPerformers(ctx, window, metric, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topPerformersResponse{Window: window, Metric: metric, Performers: performers})
}

func (s *StatsServer) Bosses(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	bosses, err := s.stats.BossStatistics(ctx, window)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowResponse[[]domain.BossStatistic]{Window: window, Data: bosses})
}

func (s *StatsServer) DeathCauses(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	limit, err := parseLimit(r, constants.DeathCauseLimit)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	causes, err := s.stats.TopDeathCauses(ctx, window, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowResponse[[]domain.DeathCause]{Window: window, Data: causes})
}

func (s *StatsServer) PlayerDeaths(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	deaths, err := s.stats.PlayerDeathCounts(ctx, window)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windowResponse[[]domain.PlayerDeathCount]{Window: window, Data: deaths})
}

// Snapshot returns the stored snapshot for week_start, or the latest one.
func (s *StatsServer) Snapshot(w http.ResponseWriter, r *http.Request) {
	var weekStart *int64
	if raw := r.URL.Query().Get("week_start"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.badRequest(w, r, fmt.Errorf("%w: week_start %q", errBadParam, raw))
			return
		}
		weekStart = &v
	}
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	snap, err := s.stats.Snapshot(ctx, weekStart)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// parseWindow reads week_start and week_end (epoch ms). Missing bounds default
// to the trailing seven days.
func (s *StatsServer) parseWindow(r *http.Request) (domain.Window, error) {
	window := s.stats.DefaultWindow()
	q := r.URL.Query()

	startRaw, endRaw := q.Get("week_start"), q.Get("week_end")
	if endRaw != "" {
		v, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil {
			return window, fmt.Errorf("%w: week_end %q", errBadParam, endRaw)
		}
		window.End = v
		if startRaw == "" {
			window.Start = v - constants.WeekDuration.Milliseconds()
		}
	}
	if startRaw != "" {
		v, err := strconv.ParseInt(startRaw, 10, 64)
		if err != nil {
			return window, fmt.Errorf("%w: week_start %q", errBadParam, startRaw)
		}
		window.Start = v
	}
	if window.Start > window.End {
		return window, fmt.Errorf("%w: week_start must not be after week_end", errBadParam)
	}
	return window, nil
}

func parseMetric(r *http.Request) (domain.Metric, error) {
	raw := r.URL.Query().Get("metric")
	if raw == "" {
		return domain.MetricDPS, nil
	}
	m := domain.Metric(raw)
	if domain.ParseMetric(raw) != m {
		return "", fmt.Errorf("%w: metric %q", errBadParam, raw)
	}
	return m, nil
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", errBadParam, maxLimit)
	}
	return v, nil
}

func (s *StatsServer) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("bad request")
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (s *StatsServer) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("stats query failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
