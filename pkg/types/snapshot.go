package types

import "time"

// DraftSnapshot is the full view of a draft, sent in answer to draft:join
// and served by GET /drafts/{id}.
type DraftSnapshot struct {
	Version          int            `json:"version"`
	DraftID          string         `json:"draft_id"`
	LeagueID         string         `json:"league_id"`
	Status           string         `json:"status"` // SCHEDULED | ACTIVE | PAUSED | COMPLETED
	Round            int            `json:"round"`
	PickNumber       int            `json:"pick_number"`
	TotalPicks       int            `json:"total_picks"`
	CurrentTeamID    string         `json:"current_team_id,omitempty"`
	Deadline         time.Time      `json:"deadline,omitzero"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Teams            []TeamSnapshot `json:"teams"`
	Picks            []PickPayload  `json:"picks"`
	Available        []string       `json:"available"`
	AutoPickEnabled  bool           `json:"auto_pick_enabled"`
	PickTimeLimitSec int            `json:"pick_time_limit_sec"`
}

type TeamSnapshot struct {
	TeamID    string `json:"team_id"`
	OwnerID   string `json:"owner_id"`
	IsOnClock bool   `json:"is_on_clock"`
}
