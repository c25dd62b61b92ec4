package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-challenges/internal/models"
	"trading-challenges/internal/mt5"
)

func withCredentials(t *testing.T, env *testEnv, u *models.User, accountID string) {
	t.Helper()
	u.MT5Credentials = models.MT5Credentials{AccountID: accountID, Password: "pw", Server: "Demo-Server"}
	require.NoError(t, env.db.Save(u).Error)
}

func TestSyncAllMT5IsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")
	carol := createUser(t, env.db, "carol")
	createUser(t, env.db, "dave")
	withCredentials(t, env, alice, "1001")
	withCredentials(t, env, bob, "1002")
	withCredentials(t, env, carol, "1003")

	env.fetcher.snapshots["1001"] = &mt5.AccountSnapshot{Balance: 10000, Equity: 10500, Profit: 500}
	env.fetcher.snapshots["1002"] = &mt5.AccountSnapshot{Balance: 10000, Equity: 11000, Profit: 1000,
		Positions: []mt5.Position{{Symbol: "EURUSD", Volume: 1, EntryPrice: 1.085, Profit: 1000}}}
	env.fetcher.err = errors.New("connection refused")

	res, err := env.leaderboard.SyncAllMT5(ctx)
	require.NoError(t, err)
	require.Equal(t, SyncResult{Successful: 2, Failed: 1, Total: 3}, *res)

	res, err = env.leaderboard.SyncAllMT5(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Successful)

	var rows int64
	require.NoError(t, env.db.Model(&models.LeaderboardEntry{}).Count(&rows).Error)
	require.EqualValues(t, 2, rows)

	entry, err := env.repo.GetLeaderboardEntry(ctx, bob.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, entry.ProfitPercent, 1e-9)
	require.Len(t, entry.Positions, 1)

	missing, err := env.repo.GetLeaderboardEntry(ctx, carol.ID)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetUserRank(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")
	carol := createUser(t, env.db, "carol")
	for _, u := range []*models.User{alice, bob, carol} {
		withCredentials(t, env, u, u.Username)
	}
	pct := func(v float64) *float64 { return &v }
	env.fetcher.snapshots["alice"] = &mt5.AccountSnapshot{Balance: 1000, Equity: 1000, ProfitPercent: pct(3)}
	env.fetcher.snapshots["bob"] = &mt5.AccountSnapshot{Balance: 1000, Equity: 1000, ProfitPercent: pct(8)}
	env.fetcher.snapshots["carol"] = &mt5.AccountSnapshot{Balance: 1000, Equity: 1000, ProfitPercent: pct(-2)}
	_, err := env.leaderboard.SyncAllMT5(ctx)
	require.NoError(t, err)

	ranks := map[uint]int{}
	for _, u := range []*models.User{alice, bob, carol} {
		r, err := env.leaderboard.GetUserRank(ctx, u.ID)
		require.NoError(t, err)
		require.EqualValues(t, 3, r.TotalUsers)
		ranks[u.ID] = r.Rank
	}
	require.Equal(t, 1, ranks[bob.ID])
	require.Equal(t, 2, ranks[alice.ID])
	require.Equal(t, 3, ranks[carol.ID])

	top, err := env.leaderboard.GetUserRank(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, 100, top.Percentile)

	outsider := createUser(t, env.db, "dave")
	_, err = env.leaderboard.GetUserRank(ctx, outsider.ID)
	require.ErrorIs(t, err, ErrNotFound)

	page, err := env.leaderboard.List(ctx, 2, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Equal(t, 2, page.Entries[0].Rank)
	require.Equal(t, alice.ID, page.Entries[0].UserID)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		rank  int
		total int64
		want  int
	}{
		{1, 1, 100},
		{1, 4, 100},
		{4, 4, 25},
		{2, 3, 67},
		{1, 0, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Percentile(tt.rank, tt.total), "rank %d of %d", tt.rank, tt.total)
	}
}

func TestForChallengeWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := createChallenge(t, env.db, models.ChallengeStatusActive, 10)

	profits := map[string]float64{"alice": 1000, "bob": 3000, "carol": -500}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := createUser(t, env.db, name)
		res, err := env.challenges.JoinChallenge(ctx, c.ID, u.ID, validAccount(name))
		require.NoError(t, err)
		profit := profits[name]
		_, err = env.challenges.UpdateParticipant(ctx, c.ID, res.Participant.ID, &ParticipantUpdate{Profit: &profit})
		require.NoError(t, err)
	}

	board, err := env.leaderboard.ForChallenge(ctx, c.ID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 3, board.Total)
	require.Equal(t, "bob", board.Entries[0].Username)
	require.Equal(t, "carol", board.Entries[2].Username)

	window, err := env.leaderboard.ForChallenge(ctx, c.ID, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, window.Count)
	require.Equal(t, 2, window.Entries[0].Rank)
	require.Equal(t, "alice", window.Entries[0].Username)

	beyond, err := env.leaderboard.ForChallenge(ctx, c.ID, 10, 5)
	require.NoError(t, err)
	require.Zero(t, beyond.Count)
	require.Empty(t, beyond.Entries)
	require.Equal(t, 3, beyond.Total)

	_, err = env.leaderboard.ForChallenge(ctx, 9999, 10, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParticipantEditsReachLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := createChallenge(t, env.db, models.ChallengeStatusActive, 10)
	alice := createUser(t, env.db, "alice")

	res, err := env.challenges.JoinChallenge(ctx, c.ID, alice.ID, validAccount("1001"))
	require.NoError(t, err)
	profit := 5000.0
	_, err = env.challenges.UpdateParticipant(ctx, c.ID, res.Participant.ID, &ParticipantUpdate{Profit: &profit})
	require.NoError(t, err)

	entry, err := env.repo.GetLeaderboardEntry(ctx, alice.ID)
	require.NoError(t, err)
	require.InDelta(t, 5.0, entry.ProfitPercent, 1e-9)

	// a fresh enrolment carries zero profit and must not wipe the entry
	other := createChallenge(t, env.db, models.ChallengeStatusActive, 10)
	_, err = env.challenges.JoinChallenge(ctx, other.ID, alice.ID, validAccount("1002"))
	require.NoError(t, err)
	entry, err = env.repo.GetLeaderboardEntry(ctx, alice.ID)
	require.NoError(t, err)
	require.InDelta(t, 5.0, entry.ProfitPercent, 1e-9)

	zero := 0.0
	_, err = env.challenges.UpdateParticipant(ctx, c.ID, res.Participant.ID, &ParticipantUpdate{Profit: &zero})
	require.NoError(t, err)
	entry, err = env.repo.GetLeaderboardEntry(ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, entry.ProfitPercent)
	require.Zero(t, entry.Profit)
}

func TestUpdateEntryRecomputesProfitPercent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := createUser(t, env.db, "alice")
	withCredentials(t, env, alice, "1001")
	env.fetcher.snapshots["1001"] = &mt5.AccountSnapshot{Balance: 1000, Equity: 1000}
	_, err := env.leaderboard.SyncAllMT5(ctx)
	require.NoError(t, err)
	entry, err := env.repo.GetLeaderboardEntry(ctx, alice.ID)
	require.NoError(t, err)

	equity := 1200.0
	override := 50.0
	updated, err := env.leaderboard.UpdateEntry(ctx, entry.ID, LeaderboardEntryUpdate{Equity: &equity, ProfitPercent: &override})
	require.NoError(t, err)
	require.InDelta(t, 20.0, updated.ProfitPercent, 1e-9)

	updated, err = env.leaderboard.UpdateEntry(ctx, entry.ID, LeaderboardEntryUpdate{ProfitPercent: &override})
	require.NoError(t, err)
	require.InDelta(t, 50.0, updated.ProfitPercent, 1e-9)

	require.NoError(t, env.leaderboard.DeleteEntry(ctx, entry.ID))
	require.ErrorIs(t, env.leaderboard.DeleteEntry(ctx, entry.ID), ErrNotFound)
}
