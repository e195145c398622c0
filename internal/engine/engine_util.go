package engine

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// NewState builds a SCHEDULED draft. teams is the round-one draft order and
// players the available pool, best ranked first.
func NewState(draftID, leagueID string, teams []TeamRecord, players []string, settings Settings) (State, error) {
	if len(teams) == 0 {
		return State{}, fmt.Errorf("%w: no teams", ErrInvalidRoster)
	}
	if settings.Rounds < 1 {
		return State{}, fmt.Errorf("%w: rounds must be positive", ErrInvalidRoster)
	}
	if settings.PickTimeLimitSeconds < 1 {
		return State{}, fmt.Errorf("%w: pick time limit must be positive", ErrInvalidRoster)
	}

	seenTeam := make(map[string]bool, len(teams))
	for _, t := range teams {
		if t.ID == "" || seenTeam[t.ID] {
			return State{}, fmt.Errorf("%w: bad or duplicate team id %q", ErrInvalidRoster, t.ID)
		}
		seenTeam[t.ID] = true
	}
	seenPlayer := make(map[string]bool, len(players))
	for _, p := range players {
		if p == "" || seenPlayer[p] {
			return State{}, fmt.Errorf("%w: bad or duplicate player id %q", ErrInvalidRoster, p)
		}
		seenPlayer[p] = true
	}

	s := State{
		DraftID:   draftID,
		LeagueID:  leagueID,
		Status:    StatusScheduled,
		Teams:     slices.Clone(teams),
		Available: slices.Clone(players),
		Drafted:   map[string]bool{},
		Settings:  settings,
	}
	for i := range s.Teams {
		s.Teams[i].AutoPickList = slices.Clone(s.Teams[i].AutoPickList)
	}
	return s, nil
}

// Clone returns a deep copy, so Apply never mutates its input.
func (s State) Clone() State {
	c := s
	c.Teams = slices.Clone(s.Teams)
	for i := range c.Teams {
		c.Teams[i].AutoPickList = slices.Clone(c.Teams[i].AutoPickList)
	}
	c.Picks = slices.Clone(s.Picks)
	c.Available = slices.Clone(s.Available)
	c.Drafted = maps.Clone(s.Drafted)
	if c.Drafted == nil {
		c.Drafted = map[string]bool{}
	}
	return c
}

func (s State) TotalPicks() int {
	return s.Settings.Rounds * len(s.Teams)
}

// CurrentTeamID is derived from the pick number; it is empty unless the
// draft is ACTIVE or PAUSED.
func (s State) CurrentTeamID() string {
	if s.Status != StatusActive && s.Status != StatusPaused {
		return ""
	}
	return TeamAt(s.Teams, s.PickNumber)
}

// OnClock reports the team on the clock. Only an ACTIVE draft has one.
func (s State) OnClock() (TeamRecord, bool) {
	if s.Status != StatusActive {
		return TeamRecord{}, false
	}
	id := s.CurrentTeamID()
	for _, t := range s.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return TeamRecord{}, false
}

func (s State) Team(id string) (TeamRecord, bool) {
	for _, t := range s.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return TeamRecord{}, false
}

// Remaining is the time left on the clock at now. A paused draft reports
// its frozen remainder.
func (s State) Remaining(now time.Time) time.Duration {
	switch s.Status {
	case StatusActive:
		if d := s.Deadline.Sub(now); d > 0 {
			return d
		}
		return 0
	case StatusPaused:
		return s.Frozen
	default:
		return 0
	}
}

// RemainingAt is Remaining in whole seconds, rounded up.
func (s State) RemainingAt(now time.Time) int {
	return ceilSeconds(s.Remaining(now))
}

func (s State) IsAvailable(playerID string) bool {
	return slices.Contains(s.Available, playerID)
}

// SelectAutoPick returns the team's first still-available preference, or the
// best ranked available player when the list is exhausted. It returns "" only
// when no player is available at all.
func SelectAutoPick(s State, teamID string) string {
	if t, ok := s.Team(teamID); ok {
		for _, p := range t.AutoPickList {
			if !s.Drafted[p] && s.IsAvailable(p) {
				return p
			}
		}
	}
	if len(s.Available) == 0 {
		return ""
	}
	return s.Available[0]
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
