package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaidRequiresID(t *testing.T) {
	_, err := NewRaid("", "Raid", 0, 1)
	assert.ErrorIs(t, err, ErrMissingField)

	r, err := NewRaid("abc", "Raid", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, Raid{RaidID: "abc", Name: "Raid", StartTime: 10, EndTime: 20}, r)
}

func TestNewEncounter(t *testing.T) {
	kill, err := NewEncounter("abc", 3, "Fractillus", true, 1_000, 121_000)
	require.NoError(t, err)
	assert.Equal(t, 0, kill.WipeCount)
	assert.Equal(t, int64(120_000), kill.KillDurationMS)
	assert.Equal(t, int64(121_000), kill.KillTime)
	assert.Equal(t, EncounterKey{RaidID: "abc", BossName: "Fractillus", FightID: 3}, kill.Key())

	wipe, err := NewEncounter("abc", 4, "Fractillus", false, 5_000, 2_000)
	require.NoError(t, err)
	assert.Equal(t, 1, wipe.WipeCount)
	assert.Equal(t, int64(-3_000), wipe.KillDurationMS)

	_, err = NewEncounter("abc", 1, "", true, 0, 1)
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = NewEncounter("", 1, "Boss", true, 0, 1)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestNewPlayerPerformance(t *testing.T) {
	dps, err := NewPlayerPerformance("abc", 3, "Fractillus", "Alice", RoleDPS, 1234.5)
	require.NoError(t, err)
	require.NotNil(t, dps.DPS)
	assert.Equal(t, 1234.5, *dps.DPS)
	assert.Nil(t, dps.HPS)

	hps, err := NewPlayerPerformance("abc", 3, "Fractillus", "Erin", RoleHealer, 99)
	require.NoError(t, err)
	assert.Nil(t, hps.DPS)
	assert.Equal(t, 99.0, *hps.HPS)
	assert.Equal(t, EncounterKey{RaidID: "abc", BossName: "Fractillus", FightID: 3}, hps.Key())

	_, err = NewPlayerPerformance("abc", 3, "Fractillus", "Tank", Role("Tank"), 1)
	assert.Error(t, err)
	_, err = NewPlayerPerformance("abc", 3, "Fractillus", "", RoleDPS, 1)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestNewDeath(t *testing.T) {
	d, err := NewDeath("abc", 3, "Fractillus", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", d.PlayerName)

	_, err = NewDeath("abc", 3, "Fractillus", "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestBatchAppendAndRaidIDs(t *testing.T) {
	var b Batch
	b.Append(Batch{Raids: []Raid{{RaidID: "a"}}, Deaths: []Death{{RaidID: "a"}}})
	b.Append(Batch{Raids: []Raid{{RaidID: "b"}, {RaidID: "a"}}, Encounters: []Encounter{{RaidID: "b"}}})

	assert.Len(t, b.Raids, 3)
	assert.Len(t, b.Deaths, 1)
	assert.Len(t, b.Encounters, 1)
	assert.Equal(t, []string{"a", "b"}, b.RaidIDs())
}

func TestTrailingWindow(t *testing.T) {
	now := time.UnixMilli(10 * 24 * 60 * 60 * 1000)
	w := TrailingWindow(now, 7*24*time.Hour)

	assert.Equal(t, now.UnixMilli()-7*24*60*60*1000, w.Start)
	assert.Equal(t, now.UnixMilli(), w.End)
	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End+1))
	assert.False(t, w.Contains(w.Start-1))
}

func TestParseMetric(t *testing.T) {
	assert.Equal(t, MetricHPS, ParseMetric("hps"))
	assert.Equal(t, MetricParsePercentile, ParseMetric("parse_percentile"))
	assert.Equal(t, MetricDPS, ParseMetric("dps"))
	assert.Equal(t, MetricDPS, ParseMetric("dps; DROP TABLE raids"))
}

func TestWindowStartOfDay(t *testing.T) {
	day := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)
	w := Window{Start: day.Add(15*time.Hour + 42*time.Minute).UnixMilli(), End: day.Add(8 * 24 * time.Hour).UnixMilli()}

	aligned := w.StartOfDay()
	assert.Equal(t, day.UnixMilli(), aligned.Start)
	assert.Equal(t, w.End, aligned.End)
	assert.Equal(t, aligned, aligned.StartOfDay())
}
