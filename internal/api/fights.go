package api

import (
	"context"

	"raid-stats/internal/constants"

	"github.com/rs/zerolog"
)

const fightDetailQuery = `
query($code: String!, $fightIDs: [Int]!, $deathLimit: Int!) {
  reportData {
    report(code: $code) {
      table(fightIDs: $fightIDs, dataType: DamageDone)
      healingTable: table(fightIDs: $fightIDs, dataType: Healing)
      deaths: events(fightIDs: $fightIDs, dataType: Deaths, limit: $deathLimit) {
        data
      }
    }
  }
}`

// Table is the JSON scalar returned by report.table.
type Table struct {
	Data *TableData `json:"data"`
}

type TableData struct {
	TotalTime int64        `json:"totalTime"`
	Entries   []TableEntry `json:"entries"`
}

type TableEntry struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Icon  string  `json:"icon"`
	Total float64 `json:"total"`
}

func (t *Table) Entries() []TableEntry {
	if t == nil || t.Data == nil {
		return nil
	}
	return t.Data.Entries
}

// DeathEvent is one entry of the Deaths event stream; ids may be absent.
type DeathEvent struct {
	Timestamp            int64  `json:"timestamp"`
	Fight                int    `json:"fight"`
	TargetID             *int   `json:"targetID"`
	KillingAbilityGameID *int64 `json:"killingAbilityGameID"`
}

type fightDetailResponse struct {
	ReportData struct {
		Report *struct {
			Table        *Table `json:"table"`
			HealingTable *Table `json:"healingTable"`
			Deaths       *struct {
				Data []DeathEvent `json:"data"`
			} `json:"deaths"`
		} `json:"report"`
	} `json:"reportData"`
}

type FightDetail struct {
	Damage   *Table
	Healing  *Table
	Deaths   []DeathEvent
	Degraded bool
	Err      error
}

type FightDetailFetcher struct {
	client *Client
	logger zerolog.Logger
}

func NewFightDetailFetcher(client *Client, logger zerolog.Logger) *FightDetailFetcher {
	return &FightDetailFetcher{client: client, logger: logger.With().Str("component", "fight_fetcher").Logger()}
}

// Fetch never fails; on error it returns an empty, degraded FightDetail.
func (f *FightDetailFetcher) Fetch(ctx context.Context, reportCode string, fightID int) FightDetail {
	vars := map[string]any{
		"code":       reportCode,
		"fightIDs":   []int{fightID},
		"deathLimit": constants.DeathEventLimit,
	}

	res, err := query[fightDetailResponse](ctx, f.client, fightDetailQuery, vars)
	if err != nil {
		f.logger.Warn().Err(err).Str("report_code", reportCode).Int("fight_id", fightID).Msg("could not fetch fight details")
		return FightDetail{Degraded: true, Err: err}
	}

	report := res.ReportData.Report
	if report == nil {
		return FightDetail{}
	}
	detail := FightDetail{Damage: report.Table, Healing: report.HealingTable}
	if report.Deaths != nil {
		detail.Deaths = report.Deaths.Data
	}

	f.logger.Debug().
		Str("report_code", reportCode).
		Int("fight_id", fightID).
		Int("damage_entries", len(detail.Damage.Entries())).
		Int("healing_entries", len(detail.Healing.Entries())).
		Int("deaths", len(detail.Deaths)).
		Msg("fight details fetched")
	return detail
}
