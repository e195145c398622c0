package draft

import (
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

// Snapshot renders the view in its wire form.
func (v View) Snapshot() types.DraftSnapshot {
	s := v.State
	current := s.CurrentTeamID()
	_, onClock := s.OnClock()

	snap := types.DraftSnapshot{
		Version:          v.Version,
		DraftID:          s.DraftID,
		LeagueID:         s.LeagueID,
		Status:           string(s.Status),
		Round:            s.Round,
		PickNumber:       s.PickNumber,
		TotalPicks:       s.TotalPicks(),
		CurrentTeamID:    current,
		RemainingSeconds: s.RemainingAt(v.At),
		Teams:            make([]types.TeamSnapshot, 0, len(s.Teams)),
		Picks:            make([]types.PickPayload, 0, len(s.Picks)),
		Available:        append([]string{}, s.Available...),
		AutoPickEnabled:  s.Settings.AutoPickEnabled,
		PickTimeLimitSec: s.Settings.PickTimeLimitSeconds,
	}
	if s.Status == engine.StatusActive {
		snap.Deadline = s.Deadline
	}
	for _, t := range s.Teams {
		snap.Teams = append(snap.Teams, types.TeamSnapshot{
			TeamID:    t.ID,
			OwnerID:   t.OwnerID,
			IsOnClock: onClock && t.ID == current,
		})
	}
	for _, p := range s.Picks {
		snap.Picks = append(snap.Picks, PickPayload(s.DraftID, p))
	}
	return snap
}
