package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
)

var t0 = time.Date(2026, 9, 6, 19, 0, 0, 0, time.UTC)

func roster(id string, nTeams, rounds int, picks ...engine.Pick) store.Roster {
	r := store.Roster{
		DraftID:  id,
		LeagueID: "league-1",
		Settings: engine.Settings{Rounds: rounds, PickTimeLimitSeconds: 60, AutoPickEnabled: true},
		Picks:    picks,
	}
	for i := 0; i < nTeams; i++ {
		suffix := string(rune('a' + i))
		r.Teams = append(r.Teams, engine.TeamRecord{ID: "team-" + suffix, OwnerID: "user-" + suffix})
	}
	for i := 0; i < nTeams*rounds+2; i++ {
		r.Players = append(r.Players, "player-"+string(rune('A'+i)))
	}
	return r
}

func newHub(t *testing.T, st *store.MemoryStore) *Hub {
	t.Helper()
	h := NewHub(context.Background(), Config{
		Draft:                       draft.Config{TickInterval: time.Second},
		DefaultPickTimeLimitSeconds: 90,
	}, Deps{
		Scheduler: scheduler.New(scheduler.NewManualClock(t0)),
		Store:     st,
		Archive:   st,
		Logger:    zaptest.NewLogger(t),
	})
	t.Cleanup(h.Shutdown)
	return h
}

func snapshot(t *testing.T, d *draft.Machine) engine.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := d.Snapshot(ctx)
	require.NoError(t, err)
	return v.State
}

func TestHub_Schedule_SameMachine(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRoster(roster("d1", 4, 2))
	h := newHub(t, st)
	ctx := context.Background()

	d1, err := h.Schedule(ctx, "d1")
	require.NoError(t, err)
	d2, err := h.Schedule(ctx, "d1")
	require.NoError(t, err)
	require.Same(t, d1, d2)

	got, err := h.Get(ctx, "d1")
	require.NoError(t, err)
	require.Same(t, d1, got)

	s := snapshot(t, d1)
	assert.Equal(t, engine.StatusScheduled, s.Status)
	assert.Len(t, s.Teams, 4)

	ids, err := h.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)
}

func TestHub_Schedule_UnknownDraft(t *testing.T) {
	h := newHub(t, store.NewMemoryStore())

	_, err := h.Schedule(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrDraftNotFound)

	_, err = h.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrDraftNotFound)
}

func TestHub_Schedule_ReplaysCommittedPicks(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRoster(roster("d1", 4, 2,
		engine.Pick{Number: 1, TeamID: "team-a", PlayerID: "player-C"},
		engine.Pick{Number: 2, TeamID: "team-b", PlayerID: "player-A"},
	))
	h := newHub(t, st)
	ctx := context.Background()

	d, err := h.Schedule(ctx, "d1")
	require.NoError(t, err)
	s := snapshot(t, d)
	require.Len(t, s.Picks, 2)
	assert.False(t, s.IsAvailable("player-C"))
	assert.True(t, s.Drafted["player-A"])

	res, err := d.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.View.State.PickNumber)
	assert.Equal(t, "team-c", res.View.State.CurrentTeamID())
}

func TestHub_Schedule_RejectsOutOfOrderHistory(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRoster(roster("d1", 4, 2,
		engine.Pick{Number: 1, TeamID: "team-b", PlayerID: "player-C"},
	))
	h := newHub(t, st)

	_, err := h.Schedule(context.Background(), "d1")
	require.ErrorIs(t, err, engine.ErrNotYourTurn)
}

func TestHub_Schedule_LoadsAutoPickLists(t *testing.T) {
	st := store.NewMemoryStore()
	r := roster("d1", 2, 1)
	r.Settings.PickTimeLimitSeconds = 0
	st.PutRoster(r)
	st.SetAutoPickList("team-b", []string{"player-D"})
	h := newHub(t, st)

	d, err := h.Schedule(context.Background(), "d1")
	require.NoError(t, err)
	s := snapshot(t, d)

	assert.Equal(t, 90, s.Settings.PickTimeLimitSeconds)
	team, ok := s.Team("team-b")
	require.True(t, ok)
	assert.Equal(t, []string{"player-D"}, team.AutoPickList)
}

func TestHub_CompletedDraftIsArchivedAndRemoved(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRoster(roster("d1", 2, 1))
	h := newHub(t, st)
	ctx := context.Background()

	d, err := h.Schedule(ctx, "d1")
	require.NoError(t, err)
	_, err = d.Start(ctx)
	require.NoError(t, err)
	_, err = d.MakePick(ctx, "user-a", "team-a", "player-A", 1)
	require.NoError(t, err)
	_, err = d.MakePick(ctx, "user-b", "team-b", "player-B", 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := st.Archived("d1")
		return ok
	}, time.Second, 5*time.Millisecond)

	archived, _ := st.Archived("d1")
	assert.Equal(t, "league-1", archived.LeagueID)
	require.Len(t, archived.Picks, 2)
	assert.Equal(t, "player-B", archived.Picks[1].PlayerID)

	require.Eventually(t, func() bool {
		_, err := h.Get(ctx, "d1")
		return err == ErrDraftNotFound
	}, time.Second, 5*time.Millisecond)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatalf("completed machine was not stopped")
	}
}

func TestHub_Shutdown_StopsMachines(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutRoster(roster("d1", 2, 1))
	st.PutRoster(roster("d2", 2, 1))
	h := newHub(t, st)
	ctx := context.Background()

	d1, err := h.Schedule(ctx, "d1")
	require.NoError(t, err)
	d2, err := h.Schedule(ctx, "d2")
	require.NoError(t, err)

	h.Shutdown()

	for _, d := range []*draft.Machine{d1, d2} {
		select {
		case <-d.Done():
		case <-time.After(time.Second):
			t.Fatalf("machine %s still running after hub shutdown", d.ID())
		}
	}
	_, err = h.Get(ctx, "d1")
	require.ErrorIs(t, err, ErrHubStopped)
}
