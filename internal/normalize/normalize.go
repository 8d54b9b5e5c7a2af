// Package normalize flattens upstream report, fight, table and event payloads
// into the relational records the store keeps. Nothing here does I/O.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"raid-stats/internal/api"
	"raid-stats/internal/config"
	"raid-stats/internal/constants"
	"raid-stats/internal/domain"
)

const (
	unknownName    = "Unknown"
	missingActorID = -1
)

var difficultyNames = map[int]string{
	1: "LFR",
	3: "Normal",
	4: "Heroic",
	5: "Mythic",
}

type Normalizer struct {
	bosses     map[string]struct{}
	difficulty *int
}

// New builds a Normalizer. An empty allow-list keeps every non-trash fight.
func New(bossFilter []string, difficulty *int) *Normalizer {
	bosses := make(map[string]struct{}, len(bossFilter))
	for _, b := range bossFilter {
		bosses[b] = struct{}{}
	}
	return &Normalizer{bosses: bosses, difficulty: difficulty}
}

func NewFromConfig(cfg *config.Config) *Normalizer {
	return New(cfg.BossFilter, cfg.DifficultyFilter)
}

// Retain reports whether a fight is a boss attempt worth keeping.
func (n *Normalizer) Retain(f api.Fight) bool {
	if f.Name == constants.TrashFightName || f.Name == "" {
		return false
	}
	if len(n.bosses) > 0 {
		if _, ok := n.bosses[f.Name]; !ok {
			return false
		}
	}
	if n.difficulty != nil && (f.Difficulty == nil || *f.Difficulty != *n.difficulty) {
		return false
	}
	return true
}

func (n *Normalizer) BossFights(r api.Report) []api.Fight {
	var out []api.Fight
	for _, f := range r.Fights {
		if n.Retain(f) {
			out = append(out, f)
		}
	}
	return out
}

// Normalize turns one report into its Raid plus child rows. details is keyed
// by fight id; a missing or degraded entry yields an encounter with no
// performance or death rows.
func (n *Normalizer) Normalize(r api.Report, md api.MasterData, details map[int]api.FightDetail) (domain.Batch, error) {
	raid, err := domain.NewRaid(r.Code, r.Title, r.StartTime, r.EndTime)
	if err != nil {
		return domain.Batch{}, err
	}
	raid.ZoneName = r.ZoneName()

	batch := domain.Batch{}
	highest := 0

	for _, f := range n.BossFights(r) {
		enc, err := domain.NewEncounter(r.Code, f.ID, f.Name, f.IsKill(), f.StartTime, f.EndTime)
		if err != nil {
			return domain.Batch{}, err
		}
		batch.Encounters = append(batch.Encounters, enc)

		if f.Difficulty != nil && *f.Difficulty > highest {
			highest = *f.Difficulty
		}

		detail := details[f.ID]
		deaths, err := n.deaths(r.Code, f, md, detail.Deaths)
		if err != nil {
			return domain.Batch{}, err
		}
		perfs, err := n.performances(r.Code, f, detail, deathsByPlayer(deaths))
		if err != nil {
			return domain.Batch{}, err
		}
		batch.Performances = append(batch.Performances, perfs...)
		batch.Deaths = append(batch.Deaths, deaths...)
	}

	raid.Difficulty = DifficultyName(highest)
	batch.Raids = []domain.Raid{raid}
	return batch, nil
}

func (n *Normalizer) performances(code string, f api.Fight, detail api.FightDetail, deaths map[string]int) ([]domain.PlayerPerformance, error) {
	tables := []struct {
		role  domain.Role
		table *api.Table
	}{
		{domain.RoleDPS, detail.Damage},
		{domain.RoleHealer, detail.Healing},
	}

	var out []domain.PlayerPerformance
	for _, t := range tables {
		for _, e := range t.table.Entries() {
			name := e.Name
			if name == "" {
				name = unknownName
			}
			p, err := domain.NewPlayerPerformance(code, f.ID, f.Name, name, t.role, PerSecond(e.Total, f.DurationMS()))
			if err != nil {
				return nil, err
			}
			p.PlayerClass = e.Type
			if p.PlayerClass == "" {
				p.PlayerClass = unknownName
			}
			p.Spec = SpecFromIcon(e.Icon)
			p.Deaths = deaths[name]
			out = append(out, p)
		}
	}
	return out, nil
}

func (n *Normalizer) deaths(code string, f api.Fight, md api.MasterData, events []api.DeathEvent) ([]domain.Death, error) {
	out := make([]domain.Death, 0, len(events))
	for _, ev := range events {
		targetID := missingActorID
		if ev.TargetID != nil {
			targetID = *ev.TargetID
		}
		var abilityID int64
		if ev.KillingAbilityGameID != nil {
			abilityID = *ev.KillingAbilityGameID
		}

		player, ok := md.ActorName(targetID)
		if !ok {
			player = PlaceholderName(int64(targetID))
		}
		ability, ok := md.AbilityName(abilityID)
		if !ok {
			ability = PlaceholderName(abilityID)
		}

		d, err := domain.NewDeath(code, f.ID, f.Name, player)
		if err != nil {
			return nil, err
		}
		d.AbilityName = ability
		d.AbilityID = abilityID
		d.Timestamp = ev.Timestamp
		out = append(out, d)
	}
	return out, nil
}

func deathsByPlayer(deaths []domain.Death) map[string]int {
	counts := make(map[string]int, len(deaths))
	for _, d := range deaths {
		counts[d.PlayerName]++
	}
	return counts
}

// PerSecond divides a fight total by its duration in seconds, floored at 1s.
func PerSecond(total float64, durationMS int64) float64 {
	seconds := math.Max(float64(durationMS)/1000, 1)
	return total / seconds
}

// SpecFromIcon takes the part after the last "-" of an icon id such as
// "Mage-Frost".
func SpecFromIcon(icon string) string {
	if icon == "" {
		return unknownName
	}
	if i := strings.LastIndex(icon, "-"); i >= 0 {
		return icon[i+1:]
	}
	return icon
}

func PlaceholderName(id int64) string {
	return fmt.Sprintf("Unknown (ID: %d)", id)
}

func DifficultyName(id int) string {
	if name, ok := difficultyNames[id]; ok {
		return name
	}
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("Difficulty %d", id)
}
