package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/config"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

func TestBuildConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "fields",
			cfg:  config.DatabaseConfig{Host: "db", Port: 5432, Name: "fantasy", User: "app", Password: "pw", SSLMode: "disable"},
			want: "postgres://app:pw@db:5432/fantasy?sslmode=disable",
		},
		{
			name: "escapes password",
			cfg:  config.DatabaseConfig{Host: "db", Port: 5433, Name: "fantasy", User: "app", Password: "p@ss/word"},
			want: "postgres://app:p%40ss%2Fword@db:5433/fantasy?sslmode=prefer",
		},
		{
			name: "dsn wins",
			cfg:  config.DatabaseConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildConnString(tc.cfg))
		})
	}
}

func sampleRoster() Roster {
	return Roster{
		DraftID:  "d1",
		LeagueID: "l1",
		Teams: []engine.TeamRecord{
			{ID: "t1", OwnerID: "u1", AutoPickList: []string{"p3"}},
			{ID: "t2", OwnerID: "u2"},
		},
		Players:  []string{"p1", "p2", "p3", "p4"},
		Settings: engine.Settings{Rounds: 2, PickTimeLimitSeconds: 90, AutoPickEnabled: true},
	}
}

func TestMemoryStoreRoster(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LoadDraftRoster(ctx, "missing")
	require.ErrorIs(t, err, ErrDraftNotFound)

	s.PutRoster(sampleRoster())
	r, err := s.LoadDraftRoster(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "l1", r.LeagueID)
	assert.Len(t, r.Teams, 2)

	// callers cannot mutate stored state
	r.Players[0] = "changed"
	again, err := s.LoadDraftRoster(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "p1", again.Players[0])

	list, err := s.LoadAutoPickList(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, list)

	list, err = s.LoadAutoPickList(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStoreAppendPick(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutRoster(sampleRoster())

	pick := engine.Pick{Number: 1, Round: 1, TeamID: "t1", PlayerID: "p1"}
	require.NoError(t, s.AppendPick(ctx, "d1", pick))
	assert.Equal(t, []engine.Pick{pick}, s.Picks("d1"))

	s.FailAppends(true)
	require.Error(t, s.AppendPick(ctx, "d1", engine.Pick{Number: 2}))
	assert.Len(t, s.Picks("d1"), 1)

	s.FailAppends(false)
	require.ErrorIs(t, s.AppendPick(ctx, "nope", pick), ErrDraftNotFound)
}

func TestMemoryStoreArchiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	first := ArchivedDraft{DraftID: "d1", LeagueID: "l1", Picks: []engine.Pick{{Number: 1}}}
	second := ArchivedDraft{DraftID: "d1", LeagueID: "other"}

	require.NoError(t, s.ArchiveDraft(ctx, first))
	require.NoError(t, s.ArchiveDraft(ctx, second))

	got, ok := s.Archived("d1")
	require.True(t, ok)
	assert.Equal(t, "l1", got.LeagueID)
}

func TestToRow(t *testing.T) {
	at := time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
	row, err := toRow(ArchivedDraft{
		DraftID:     "d1",
		LeagueID:    "l1",
		Picks:       []engine.Pick{{Number: 1, TeamID: "t1", PlayerID: "p1"}, {Number: 2, TeamID: "t2", PlayerID: "p2"}},
		CompletedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, row.TotalPicks)
	assert.Equal(t, at, row.CompletedAt)

	var picks []engine.Pick
	require.NoError(t, json.Unmarshal(row.Picks, &picks))
	assert.Equal(t, "p2", picks[1].PlayerID)
}

func TestArchiveInsertSQL(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=app dbname=fantasy sslmode=disable"}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	a := NewGormArchive(db)
	row, err := toRow(ArchivedDraft{DraftID: "d1", LeagueID: "l1"})
	require.NoError(t, err)

	stmt := a.create(db.Session(&gorm.Session{DryRun: true}), row).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "archived_drafts"`)
	assert.Contains(t, sql, "ON CONFLICT DO NOTHING")
}
