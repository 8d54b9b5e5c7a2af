package domain

import (
	"errors"
	"fmt"
	"time"
)

type Role string

const (
	RoleDPS    Role = "DPS"
	RoleHealer Role = "Healer"
)

var ErrMissingField = errors.New("missing required field")

// Raid is one ingested report. Times are epoch milliseconds.
type Raid struct {
	RaidID     string
	Name       string
	StartTime  int64
	EndTime    int64
	ZoneName   string
	Difficulty string
}

func NewRaid(raidID, name string, startTime, endTime int64) (Raid, error) {
	if raidID == "" {
		return Raid{}, fmt.Errorf("raid: %w: raid_id", ErrMissingField)
	}
	return Raid{RaidID: raidID, Name: name, StartTime: startTime, EndTime: endTime}, nil
}

// Encounter is one boss attempt. WipeCount is 0 or 1: one row per attempt.
type Encounter struct {
	ID             int64
	RaidID         string
	FightID        int
	BossName       string
	IsKill         bool
	KillTime       int64
	KillDurationMS int64
	WipeCount      int
}

func NewEncounter(raidID string, fightID int, bossName string, isKill bool, startTime, endTime int64) (Encounter, error) {
	if raidID == "" {
		return Encounter{}, fmt.Errorf("encounter: %w: raid_id", ErrMissingField)
	}
	if bossName == "" {
		return Encounter{}, fmt.Errorf("encounter: %w: boss_name", ErrMissingField)
	}
	wipes := 1
	if isKill {
		wipes = 0
	}
	return Encounter{
		RaidID:         raidID,
		FightID:        fightID,
		BossName:       bossName,
		IsKill:         isKill,
		KillTime:       endTime,
		KillDurationMS: endTime - startTime,
		WipeCount:      wipes,
	}, nil
}

func (e Encounter) Key() EncounterKey {
	return EncounterKey{RaidID: e.RaidID, BossName: e.BossName, FightID: e.FightID}
}

// EncounterKey links performance rows to the encounter stored for them.
type EncounterKey struct {
	RaidID   string
	BossName string
	FightID  int
}

// PlayerPerformance carries DPS xor HPS depending on Role.
type PlayerPerformance struct {
	ID              int64
	RaidID          string
	EncounterID     *int64
	FightID         int
	BossName        string
	PlayerName      string
	PlayerClass     string
	Spec            string
	Role            Role
	DPS             *float64
	HPS             *float64
	ParsePercentile *int
	Deaths          int
}

func NewPlayerPerformance(raidID string, fightID int, bossName, playerName string, role Role, perSecond float64) (PlayerPerformance, error) {
	if raidID == "" {
		return PlayerPerformance{}, fmt.Errorf("player performance: %w: raid_id", ErrMissingField)
	}
	if playerName == "" {
		return PlayerPerformance{}, fmt.Errorf("player performance: %w: player_name", ErrMissingField)
	}
	p := PlayerPerformance{
		RaidID:     raidID,
		FightID:    fightID,
		BossName:   bossName,
		PlayerName: playerName,
		Role:       role,
	}
	switch role {
	case RoleDPS:
		p.DPS = &perSecond
	case RoleHealer:
		p.HPS = &perSecond
	default:
		return PlayerPerformance{}, fmt.Errorf("player performance: unknown role %q", role)
	}
	return p, nil
}

func (p PlayerPerformance) Key() EncounterKey {
	return EncounterKey{RaidID: p.RaidID, BossName: p.BossName, FightID: p.FightID}
}

type Death struct {
	ID          int64
	RaidID      string
	FightID     int
	BossName    string
	PlayerName  string
	AbilityName string
	AbilityID   int64
	Timestamp   int64
}

func NewDeath(raidID string, fightID int, bossName, playerName string) (Death, error) {
	if raidID == "" {
		return Death{}, fmt.Errorf("death: %w: raid_id", ErrMissingField)
	}
	if playerName == "" {
		return Death{}, fmt.Errorf("death: %w: player_name", ErrMissingField)
	}
	return Death{RaidID: raidID, FightID: fightID, BossName: bossName, PlayerName: playerName}, nil
}

// Batch is the normalized output for one or more reports, replaced as a unit.
type Batch struct {
	Raids        []Raid
	Encounters   []Encounter
	Performances []PlayerPerformance
	Deaths       []Death
}

func (b *Batch) Append(other Batch) {
	b.Raids = append(b.Raids, other.Raids...)
	b.Encounters = append(b.Encounters, other.Encounters...)
	b.Performances = append(b.Performances, other.Performances...)
	b.Deaths = append(b.Deaths, other.Deaths...)
}

func (b Batch) RaidIDs() []string {
	seen := make(map[string]struct{}, len(b.Raids))
	ids := make([]string, 0, len(b.Raids))
	for _, r := range b.Raids {
		if _, ok := seen[r.RaidID]; ok {
			continue
		}
		seen[r.RaidID] = struct{}{}
		ids = append(ids, r.RaidID)
	}
	return ids
}

// Window is an inclusive epoch-millisecond range matched against raid start.
type Window struct {
	Start int64 `json:"week_start"`
	End   int64 `json:"week_end"`
}

// TrailingWindow is [now-span, now].
func TrailingWindow(now time.Time, span time.Duration) Window {
	return Window{Start: now.Add(-span).UnixMilli(), End: now.UnixMilli()}
}

// StartOfDay moves Start back to 00:00 UTC of its day. Snapshots are keyed by
// Start, so runs on the same day share one row.
func (w Window) StartOfDay() Window {
	day := time.UnixMilli(w.Start).UTC().Truncate(24 * time.Hour)
	return Window{Start: day.UnixMilli(), End: w.End}
}

func (w Window) Contains(ms int64) bool {
	return ms >= w.Start && ms <= w.End
}
