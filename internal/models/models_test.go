package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProfitPercent(t *testing.T) {
	tests := []struct {
		name                         string
		profit, balance, accountSize float64
		want                         float64
	}{
		{"uses current balance", 500, 10000, 100000, 5},
		{"falls back to account size", 5000, 0, 100000, 5},
		{"loss", -250, 5000, 5000, -5},
		{"no base", 100, 0, 0, 0},
		{"negative base", 100, 0, -10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, ProfitPercent(tt.profit, tt.balance, tt.accountSize), 1e-9)
		})
	}

	p := Participant{Profit: 2500, CurrentBalance: 0}
	p.RecomputeProfitPercent(50000)
	require.InDelta(t, 5.0, p.ProfitPercent, 1e-9)
}

func TestChallengeStatusTransitions(t *testing.T) {
	tests := []struct {
		from ChallengeStatus
		ev   ChallengeEvent
		to   ChallengeStatus
		ok   bool
	}{
		{ChallengeStatusDraft, ChallengeEventPublish, ChallengeStatusUpcoming, true},
		{ChallengeStatusDraft, ChallengeEventCancel, ChallengeStatusCancelled, true},
		{ChallengeStatusDraft, ChallengeEventStart, "", false},
		{ChallengeStatusUpcoming, ChallengeEventStart, ChallengeStatusActive, true},
		{ChallengeStatusUpcoming, ChallengeEventComplete, ChallengeStatusCompleted, true},
		{ChallengeStatusUpcoming, ChallengeEventCancel, ChallengeStatusCancelled, true},
		{ChallengeStatusUpcoming, ChallengeEventPublish, "", false},
		{ChallengeStatusActive, ChallengeEventComplete, ChallengeStatusCompleted, true},
		{ChallengeStatusActive, ChallengeEventCancel, ChallengeStatusCancelled, true},
		{ChallengeStatusActive, ChallengeEventStart, "", false},
		{ChallengeStatusCompleted, ChallengeEventCancel, "", false},
		{ChallengeStatusCancelled, ChallengeEventPublish, "", false},
	}
	for _, tt := range tests {
		next, err := tt.from.Next(tt.ev)
		if !tt.ok {
			require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tt.ev, tt.from)
			require.Equal(t, tt.from, next)
			_, err = tt.from.EventTo(tt.to)
			require.ErrorIs(t, err, ErrInvalidTransition)
			continue
		}
		require.NoError(t, err, "%s on %s", tt.ev, tt.from)
		require.Equal(t, tt.to, next)

		ev, err := tt.from.EventTo(tt.to)
		require.NoError(t, err)
		require.Equal(t, tt.ev, ev)
	}

	require.True(t, ChallengeStatusCompleted.IsTerminal())
	require.True(t, ChallengeStatusCancelled.IsTerminal())
	require.False(t, ChallengeStatusActive.IsTerminal())
	require.True(t, ChallengeStatusUpcoming.Joinable())
	require.False(t, ChallengeStatusDraft.Joinable())
	require.False(t, ChallengeStatus("paused").Valid())
}

func TestPrizeConstructors(t *testing.T) {
	_, err := NewSingleRankPrize(0, "nothing", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrPrizeRank)
	_, err = NewSingleRankPrize(1, "debt", decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrPrizeAmount)
	_, err = NewRangePrize(5, 3, "backwards", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrPrizeRange)
	_, err = NewRangePrize(0, 3, "zero", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrPrizeRank)

	first, err := NewSingleRankPrize(1, "First", decimal.NewFromInt(1000))
	require.NoError(t, err)
	rest, err := NewRangePrize(2, 5, "Runners up", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, rest.Covers(5))
	require.False(t, rest.Covers(6))

	table := PrizeTable{first, rest}
	require.NoError(t, table.Validate())
	require.True(t, table.Total().Equal(decimal.NewFromInt(1400)))
	p, ok := table.For(3)
	require.True(t, ok)
	require.Equal(t, PrizeKindRange, p.Kind())
	_, ok = table.For(6)
	require.False(t, ok)

	clash, err := NewSingleRankPrize(4, "Clash", decimal.NewFromInt(1))
	require.NoError(t, err)
	require.ErrorIs(t, PrizeTable{first, rest, clash}.Validate(), ErrPrizeOverlaps)
}

func TestPrizeTableJSON(t *testing.T) {
	var table PrizeTable
	require.NoError(t, json.Unmarshal([]byte(`[
		{"rank": 1, "prize": "First", "amount": "500"},
		{"rank_start": 2, "rank_end": 3, "prize": "Podium", "amount": "50", "is_bulk": true}
	]`), &table))
	require.Len(t, table, 2)
	require.Equal(t, 1, table[0].(SingleRankPrize).Rank())
	require.Equal(t, 3, table[1].(RangePrize).RankEnd())

	out, err := json.Marshal(table)
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"rank": 1, "prize": "First", "amount": "500", "is_bulk": false},
		{"rank_start": 2, "rank_end": 3, "prize": "Podium", "amount": "50", "is_bulk": true}
	]`, string(out))

	for _, bad := range []string{
		`[{"prize": "no rank", "amount": "1"}]`,
		`[{"rank": 1, "rank_start": 1, "prize": "both", "amount": "1"}]`,
		`[{"rank": 1, "prize": "bulk with rank", "amount": "1", "is_bulk": true}]`,
		`[{"rank_start": 1, "prize": "open range", "amount": "1", "is_bulk": true}]`,
	} {
		var tbl PrizeTable
		require.ErrorIs(t, json.Unmarshal([]byte(bad), &tbl), ErrPrizeShape, bad)
	}

	var tbl PrizeTable
	require.ErrorIs(t, json.Unmarshal([]byte(`[{"rank": 0, "prize": "zero", "amount": "1"}]`), &tbl), ErrPrizeRank)
}

func TestPlanDurationEndDate(t *testing.T) {
	start := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		d    PlanDuration
		want time.Time
	}{
		{PlanDurationMonthly, time.Date(2026, time.February, 15, 12, 0, 0, 0, time.UTC)},
		{PlanDurationQuarterly, time.Date(2026, time.April, 15, 12, 0, 0, 0, time.UTC)},
		{PlanDurationSemiAnnual, time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)},
		{PlanDurationAnnual, time.Date(2027, time.January, 15, 12, 0, 0, 0, time.UTC)},
		{PlanDuration("weekly"), time.Date(2026, time.February, 15, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.d.EndDate(start), string(tt.d))
	}
	require.False(t, PlanDuration("weekly").Valid())
}
