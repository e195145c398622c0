// Package store holds the persistence ports the draft core consumes and
// their PostgreSQL and in-memory adapters. The core never queries tables
// directly; it only loads rosters, appends picks and archives finished drafts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

var ErrDraftNotFound = errors.New("draft not found")

// Roster is everything needed to build a draft machine.
type Roster struct {
	DraftID  string
	LeagueID string
	Teams    []engine.TeamRecord // round-one order
	Players  []string            // available pool, best ranked first
	Picks    []engine.Pick       // already committed, in order
	Settings engine.Settings
}

// DraftStore is the persistence port used by the draft core.
type DraftStore interface {
	LoadDraftRoster(ctx context.Context, draftID string) (Roster, error)
	AppendPick(ctx context.Context, draftID string, pick engine.Pick) error
	LoadAutoPickList(ctx context.Context, teamID string) ([]string, error)
}

// ArchivedDraft is the summary kept once a draft completes.
type ArchivedDraft struct {
	DraftID     string
	LeagueID    string
	Picks       []engine.Pick
	CompletedAt time.Time
}

type Archive interface {
	ArchiveDraft(ctx context.Context, d ArchivedDraft) error
}
