package api

import (
	"context"

	"github.com/rs/zerolog"
)

const masterDataQuery = `
query($code: String!) {
  reportData {
    report(code: $code) {
      masterData {
        actors { id name type subType }
        abilities { gameID name }
      }
    }
  }
}`

type masterDataResponse struct {
	ReportData struct {
		Report *struct {
			MasterData *struct {
				Actors    []Actor   `json:"actors"`
				Abilities []Ability `json:"abilities"`
			} `json:"masterData"`
		} `json:"report"`
	} `json:"reportData"`
}

type Actor struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	SubType string `json:"subType"`
}

type Ability struct {
	GameID int64  `json:"gameID"`
	Name   string `json:"name"`
}

// MasterData maps a report's numeric ids to names. Degraded is set when the
// lookup failed and the maps are empty for that reason rather than upstream
// having nothing to say.
type MasterData struct {
	Actors    map[int]string
	Abilities map[int64]string
	Degraded  bool
	Err       error
}

// ActorName reports false for ids that are missing or mapped to an empty name.
func (m MasterData) ActorName(id int) (string, bool) {
	name := m.Actors[id]
	return name, name != ""
}

func (m MasterData) AbilityName(id int64) (string, bool) {
	name := m.Abilities[id]
	return name, name != ""
}

type ActorResolver struct {
	client *Client
	logger zerolog.Logger
}

func NewActorResolver(client *Client, logger zerolog.Logger) *ActorResolver {
	return &ActorResolver{client: client, logger: logger.With().Str("component", "actor_resolver").Logger()}
}

// Resolve never fails; errors come back as a degraded MasterData.
func (r *ActorResolver) Resolve(ctx context.Context, reportCode string) MasterData {
	md := MasterData{Actors: map[int]string{}, Abilities: map[int64]string{}}

	res, err := query[masterDataResponse](ctx, r.client, masterDataQuery, map[string]any{"code": reportCode})
	if err != nil {
		r.logger.Warn().Err(err).Str("report_code", reportCode).Msg("could not fetch actor mappings")
		md.Degraded = true
		md.Err = err
		return md
	}

	if res.ReportData.Report == nil || res.ReportData.Report.MasterData == nil {
		return md
	}
	for _, a := range res.ReportData.Report.MasterData.Actors {
		md.Actors[a.ID] = a.Name
	}
	for _, a := range res.ReportData.Report.MasterData.Abilities {
		md.Abilities[a.GameID] = a.Name
	}

	r.logger.Debug().
		Str("report_code", reportCode).
		Int("actors", len(md.Actors)).
		Int("abilities", len(md.Abilities)).
		Msg("actor mappings resolved")
	return md
}
