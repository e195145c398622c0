package draft

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

const timerKey = "timer"

func (m *Machine) publishEvents(events []engine.Event, at time.Time) {
	for _, ev := range events {
		typ, payload := m.wire(ev, at)
		if typ == "" {
			continue
		}
		m.publish(typ, payload, outbound.High, at, "")
	}
}

// wire maps an engine event to its client tag and payload.
func (m *Machine) wire(ev engine.Event, at time.Time) (string, any) {
	s := m.state
	switch ev.Type {
	case engine.EvtPickMade:
		return types.DraftPickMade, PickPayload(s.DraftID, s.Picks[ev.PickNumber-1])
	case engine.EvtDraftStarted:
		if s.Status == engine.StatusCompleted {
			return types.DraftStarted, types.TurnPayload{DraftID: s.DraftID, Status: string(s.Status)}
		}
		return types.DraftStarted, m.turnPayload(ev, at)
	case engine.EvtTurnAdvanced:
		return types.DraftTurn, m.turnPayload(ev, at)
	case engine.EvtDraftPaused:
		return types.DraftPaused, m.turnPayload(ev, at)
	case engine.EvtDraftResumed:
		return types.DraftResumed, m.turnPayload(ev, at)
	case engine.EvtDraftCompleted:
		return types.DraftCompleted, types.CompletedPayload{
			DraftID:     s.DraftID,
			TotalPicks:  len(s.Picks),
			CompletedAt: at,
		}
	default:
		return "", nil
	}
}

func (m *Machine) turnPayload(ev engine.Event, at time.Time) types.TurnPayload {
	return types.TurnPayload{
		DraftID:          m.state.DraftID,
		Status:           string(m.state.Status),
		PickNumber:       ev.PickNumber,
		Round:            ev.Round,
		TeamID:           ev.TeamID,
		Deadline:         ev.Deadline,
		RemainingSeconds: m.remainingFor(ev, at),
	}
}

func (m *Machine) remainingFor(ev engine.Event, at time.Time) int {
	if ev.Deadline.IsZero() {
		return ev.RemainingSeconds
	}
	return m.state.RemainingAt(at)
}

func (m *Machine) publishClockExpired(deadline time.Time) {
	s := m.state
	m.publish(types.DraftClockExpired, types.TurnPayload{
		DraftID:    s.DraftID,
		Status:     string(s.Status),
		PickNumber: s.PickNumber,
		Round:      s.Round,
		TeamID:     s.CurrentTeamID(),
		Deadline:   deadline,
	}, outbound.High, deadline, "")
}

func (m *Machine) publishTimer(at time.Time) {
	s := m.state
	m.publish(types.DraftTimer, types.TimerPayload{
		DraftID:          s.DraftID,
		PickNumber:       s.PickNumber,
		TeamID:           s.CurrentTeamID(),
		RemainingSeconds: s.RemainingAt(at),
		Deadline:         s.Deadline,
	}, outbound.Low, at, timerKey)
}

func (m *Machine) publish(typ string, payload any, p outbound.Priority, at time.Time, key string) {
	if m.pub == nil {
		return
	}
	msg, err := outbound.New(typ, payload, p, at)
	if err != nil {
		m.logger.Error("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	if key != "" {
		msg = msg.Coalescing(key)
	}
	m.pub.Publish(m.ctx, room.DraftRoom(m.id), msg)
}

func PickPayload(draftID string, p engine.Pick) types.PickPayload {
	return types.PickPayload{
		DraftID:    draftID,
		PickNumber: p.Number,
		Round:      p.Round,
		TeamID:     p.TeamID,
		PlayerID:   p.PlayerID,
		Auto:       p.Auto,
		MadeAt:     p.MadeAt,
	}
}
