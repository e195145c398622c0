package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrDraftNotActive = errors.New("draft not active")
var ErrNotYourTurn = errors.New("not your turn")
var ErrPlayerAlreadyDrafted = errors.New("player already drafted")
var ErrPickAlreadyMade = errors.New("pick already made")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrInvalidTransition = errors.New("invalid status transition")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvalidRoster = errors.New("invalid roster")

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

type Settings struct {
	Rounds               int
	PickTimeLimitSeconds int
	AutoPickEnabled      bool
}

type TeamRecord struct {
	ID           string
	OwnerID      string
	AutoPickList []string // ordered preferences
}

type Pick struct {
	Number   int
	Round    int
	TeamID   string
	PlayerID string
	Auto     bool
	MadeAt   time.Time
}

// State is one draft. The team on the clock is never stored: it is derived
// from PickNumber with SnakeSlot.
type State struct {
	DraftID  string
	LeagueID string
	Status   Status

	Round      int
	PickNumber int

	Teams     []TeamRecord // round-one order
	Picks     []Pick
	Available []string // best ranked first
	Drafted   map[string]bool

	// Deadline is set only while ACTIVE; Frozen holds the exact time left
	// while PAUSED. Views round it, the state never does.
	Deadline time.Time
	Frozen   time.Duration

	Settings Settings
}

type CommandType string

const (
	CmdStart    CommandType = "Start"
	CmdPause    CommandType = "Pause"
	CmdResume   CommandType = "Resume"
	CmdMakePick CommandType = "MakePick"
	CmdAutoPick CommandType = "AutoPick"
)

/*
	CmdStart    -> EvtDraftStarted (or EvtDraftStarted, EvtDraftCompleted when nothing is left)
	CmdPause    -> EvtDraftPaused
	CmdResume   -> EvtDraftResumed
	CmdMakePick -> EvtPickMade -> EvtTurnAdvanced | EvtDraftCompleted
	CmdAutoPick -> EvtPickMade(Auto) -> EvtTurnAdvanced | EvtDraftCompleted
*/

// Command is one request against a draft. PickNumber names the slot the
// sender believes is current; zero means "whatever is current".
type Command struct {
	Type       CommandType
	TeamID     string
	PlayerID   string
	PickNumber int
	At         time.Time
}

type EventType string

const (
	EvtDraftStarted   EventType = "DraftStarted"
	EvtPickMade       EventType = "PickMade"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtDraftPaused    EventType = "DraftPaused"
	EvtDraftResumed   EventType = "DraftResumed"
	EvtDraftCompleted EventType = "DraftCompleted"
)

type Event struct {
	Type             EventType
	PickNumber       int
	Round            int
	TeamID           string
	PlayerID         string
	Auto             bool
	Deadline         time.Time
	RemainingSeconds int
}

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified; on error the original state is returned.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStart:
		if s.Status != StatusScheduled {
			return nil, s, ErrInvalidTransition
		}
		next := s.Clone()
		next.Status = StatusActive
		next.PickNumber = len(next.Picks) + 1
		next.Round, _ = SnakeSlot(next.PickNumber, len(next.Teams))

		if next.PickNumber > next.TotalPicks() || len(next.Available) == 0 {
			next.complete()
			return []Event{
				{Type: EvtDraftStarted},
				{Type: EvtDraftCompleted, PickNumber: len(next.Picks)},
			}, next, nil
		}
		next.Deadline = cmd.At.Add(next.pickLimit())
		return []Event{next.turnEvent(EvtDraftStarted)}, next, nil

	case CmdPause:
		if s.Status != StatusActive {
			return nil, s, ErrInvalidTransition
		}
		next := s.Clone()
		next.Frozen = max(s.Deadline.Sub(cmd.At), 0)
		next.Deadline = time.Time{}
		next.Status = StatusPaused
		return []Event{next.turnEvent(EvtDraftPaused)}, next, nil

	case CmdResume:
		if s.Status != StatusPaused {
			return nil, s, ErrInvalidTransition
		}
		next := s.Clone()
		next.Status = StatusActive
		next.Deadline = cmd.At.Add(next.Frozen)
		next.Frozen = 0
		return []Event{next.turnEvent(EvtDraftResumed)}, next, nil

	case CmdMakePick:
		current, err := checkSlot(s, cmd)
		if err != nil {
			return nil, s, err
		}
		if cmd.TeamID != current {
			return nil, s, ErrNotYourTurn
		}
		if s.Drafted[cmd.PlayerID] {
			return nil, s, ErrPlayerAlreadyDrafted
		}
		if !s.IsAvailable(cmd.PlayerID) {
			return nil, s, ErrUnknownPlayer
		}
		return commit(s, current, cmd.PlayerID, false, cmd.At)

	case CmdAutoPick:
		current, err := checkSlot(s, cmd)
		if err != nil {
			return nil, s, err
		}
		if cmd.TeamID != "" && cmd.TeamID != current {
			return nil, s, ErrNotYourTurn
		}
		player := SelectAutoPick(s, current)
		if player == "" {
			// Nothing left to pick: the draft ends instead.
			next := s.Clone()
			next.complete()
			return []Event{{Type: EvtDraftCompleted, PickNumber: len(next.Picks)}}, next, nil
		}
		return commit(s, current, player, true, cmd.At)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// checkSlot verifies the draft is ACTIVE and cmd targets the current pick,
// and returns the team on the clock.
func checkSlot(s State, cmd Command) (string, error) {
	if s.Status != StatusActive {
		return "", ErrDraftNotActive
	}
	if cmd.PickNumber != 0 && cmd.PickNumber < s.PickNumber {
		return "", ErrPickAlreadyMade
	}
	if cmd.PickNumber > s.PickNumber {
		return "", ErrNotYourTurn
	}
	return s.CurrentTeamID(), nil
}

func commit(s State, teamID, playerID string, auto bool, at time.Time) ([]Event, State, error) {
	next := s.Clone()
	pick := Pick{
		Number:   next.PickNumber,
		Round:    next.Round,
		TeamID:   teamID,
		PlayerID: playerID,
		Auto:     auto,
		MadeAt:   at,
	}
	next.record(pick)

	events := []Event{{
		Type:       EvtPickMade,
		PickNumber: pick.Number,
		Round:      pick.Round,
		TeamID:     teamID,
		PlayerID:   playerID,
		Auto:       auto,
	}}

	if pick.Number >= next.TotalPicks() || len(next.Available) == 0 {
		next.complete()
		return append(events, Event{Type: EvtDraftCompleted, PickNumber: pick.Number}), next, nil
	}

	next.PickNumber++
	next.Round, _ = SnakeSlot(next.PickNumber, len(next.Teams))
	next.Deadline = at.Add(next.pickLimit())
	return append(events, next.turnEvent(EvtTurnAdvanced)), next, nil
}

// Replay applies already-committed picks to a SCHEDULED draft, enforcing the
// same ordering and availability rules as live picks. Start then resumes at
// the next slot.
func Replay(s State, picks []Pick) (State, error) {
	if s.Status != StatusScheduled {
		return s, ErrInvalidTransition
	}
	next := s.Clone()
	for _, p := range picks {
		want := len(next.Picks) + 1
		switch {
		case p.Number != want:
			return s, fmt.Errorf("replay pick %d: expected pick %d: %w", p.Number, want, ErrPickAlreadyMade)
		case want > next.TotalPicks():
			return s, fmt.Errorf("replay pick %d: past the last pick: %w", p.Number, ErrInvalidRoster)
		case p.TeamID != TeamAt(next.Teams, want):
			return s, fmt.Errorf("replay pick %d: %w", p.Number, ErrNotYourTurn)
		case next.Drafted[p.PlayerID]:
			return s, fmt.Errorf("replay pick %d: %w", p.Number, ErrPlayerAlreadyDrafted)
		case !next.IsAvailable(p.PlayerID):
			return s, fmt.Errorf("replay pick %d: %w", p.Number, ErrUnknownPlayer)
		}
		p.Round, _ = SnakeSlot(want, len(next.Teams))
		next.record(p)
	}
	return next, nil
}

// record must be given a clone; it moves the player from available to drafted.
func (s *State) record(p Pick) {
	s.Picks = append(s.Picks, p)
	if i := slices.Index(s.Available, p.PlayerID); i >= 0 {
		s.Available = slices.Delete(s.Available, i, i+1)
	}
	s.Drafted[p.PlayerID] = true
}

func (s *State) complete() {
	s.Status = StatusCompleted
	s.Deadline = time.Time{}
	s.Frozen = 0
}

func (s State) pickLimit() time.Duration {
	return time.Duration(s.Settings.PickTimeLimitSeconds) * time.Second
}

func (s State) turnEvent(t EventType) Event {
	return Event{
		Type:             t,
		PickNumber:       s.PickNumber,
		Round:            s.Round,
		TeamID:           s.CurrentTeamID(),
		Deadline:         s.Deadline,
		RemainingSeconds: ceilSeconds(s.Frozen),
	}
}
