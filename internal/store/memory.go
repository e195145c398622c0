package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

// MemoryStore implements DraftStore and Archive in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	rosters   map[string]Roster
	autoPicks map[string][]string
	archived  map[string]ArchivedDraft

	failAppends bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rosters:   make(map[string]Roster),
		autoPicks: make(map[string][]string),
		archived:  make(map[string]ArchivedDraft),
	}
}

// PutRoster stores a roster; autopick lists on its teams are indexed by team id.
func (m *MemoryStore) PutRoster(r Roster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[r.DraftID] = cloneRoster(r)
	for _, t := range r.Teams {
		if len(t.AutoPickList) > 0 {
			m.autoPicks[t.ID] = slices.Clone(t.AutoPickList)
		}
	}
}

// FailAppends makes AppendPick return an error until cleared.
func (m *MemoryStore) FailAppends(fail bool) {
	m.mu.Lock()
	m.failAppends = fail
	m.mu.Unlock()
}

func (m *MemoryStore) SetAutoPickList(teamID string, players []string) {
	m.mu.Lock()
	m.autoPicks[teamID] = slices.Clone(players)
	m.mu.Unlock()
}

func (m *MemoryStore) LoadDraftRoster(_ context.Context, draftID string) (Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rosters[draftID]
	if !ok {
		return Roster{}, fmt.Errorf("load roster %s: %w", draftID, ErrDraftNotFound)
	}
	return cloneRoster(r), nil
}

func (m *MemoryStore) AppendPick(_ context.Context, draftID string, pick engine.Pick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppends {
		return fmt.Errorf("append pick %d: store unavailable", pick.Number)
	}
	r, ok := m.rosters[draftID]
	if !ok {
		return fmt.Errorf("append pick %s: %w", draftID, ErrDraftNotFound)
	}
	r.Picks = append(r.Picks, pick)
	m.rosters[draftID] = r
	return nil
}

func (m *MemoryStore) LoadAutoPickList(_ context.Context, teamID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.autoPicks[teamID]), nil
}

func (m *MemoryStore) ArchiveDraft(_ context.Context, d ArchivedDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.archived[d.DraftID]; exists {
		return nil
	}
	d.Picks = slices.Clone(d.Picks)
	m.archived[d.DraftID] = d
	return nil
}

func (m *MemoryStore) Archived(draftID string) (ArchivedDraft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.archived[draftID]
	return d, ok
}

// Picks returns the committed picks recorded for a draft.
func (m *MemoryStore) Picks(draftID string) []engine.Pick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rosters[draftID].Picks)
}

func cloneRoster(r Roster) Roster {
	r.Teams = slices.Clone(r.Teams)
	for i := range r.Teams {
		r.Teams[i].AutoPickList = slices.Clone(r.Teams[i].AutoPickList)
	}
	r.Players = slices.Clone(r.Players)
	r.Picks = slices.Clone(r.Picks)
	return r
}
