package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	itypes "github.com/DoyleJ11/fantasy-draft-backend/internal/types"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

const maxChatLength = 500

type handlerFunc func(ctx context.Context, sess *session, payload json.RawMessage) error

func (s *Server) dispatchTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		types.DraftJoin:            s.draftJoin,
		types.DraftLeave:           s.draftLeave,
		types.DraftMakePick:        s.draftMakePick,
		types.DraftChat:            s.draftChat,
		types.DraftRequestAutoPick: s.draftRequestAutoPick,
		types.DraftPause:           s.draftPause,
		types.DraftResume:          s.draftResume,
		types.LeagueJoin:           s.leagueJoin,
		types.LeagueLeave:          s.leagueLeave,
		types.TradePropose:         s.tradePropose,
		types.ScoringSubscribe:     s.scoringSubscribe,
		types.ScoringUnsubscribe:   s.scoringUnsubscribe,
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", itypes.ErrBadRequest)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", itypes.ErrBadRequest, err)
	}
	return nil
}

func required(fields ...string) error {
	for i := 0; i < len(fields); i += 2 {
		if fields[i+1] == "" {
			return fmt.Errorf("%w: %s is required", itypes.ErrBadRequest, fields[i])
		}
	}
	return nil
}

func (s *Server) ack(sess *session, event, roomName string) {
	s.reply(sess, types.Ack, types.AckPayload{Event: event, Room: roomName}, outbound.Normal)
}

func (s *Server) joinRoom(sess *session, event, name string) error {
	if err := s.deps.Broker.Join(sess.conn.ID, name); err != nil {
		return err
	}
	s.ack(sess, event, name)
	return nil
}

func (s *Server) leaveRoom(sess *session, event, name string) error {
	if err := s.deps.Broker.Leave(sess.conn.ID, name); err != nil {
		return err
	}
	s.ack(sess, event, name)
	return nil
}

// draftJoin subscribes to the draft room and answers with the full state.
// A draft running on another instance is still joinable; its events arrive
// through the bridge, and the join is acknowledged instead.
func (s *Server) draftJoin(ctx context.Context, sess *session, payload json.RawMessage) error {
	var req types.DraftRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}

	name := room.DraftRoom(req.DraftID)
	if err := s.deps.Broker.Join(sess.conn.ID, name); err != nil {
		return err
	}

	m, err := s.deps.Hub.Get(ctx, req.DraftID)
	if errors.Is(err, hub.ErrDraftNotFound) {
		s.ack(sess, types.DraftJoin, name)
		return nil
	}
	if err != nil {
		return err
	}
	v, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.reply(sess, types.DraftState, v.Snapshot(), outbound.High)
	return nil
}

func (s *Server) draftLeave(_ context.Context, sess *session, payload json.RawMessage) error {
	var req types.DraftRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	return s.leaveRoom(sess, types.DraftLeave, room.DraftRoom(req.DraftID))
}

func (s *Server) draftMakePick(ctx context.Context, sess *session, payload json.RawMessage) error {
	var req types.MakePickRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID, "team_id", req.TeamID, "player_id", req.PlayerID); err != nil {
		return err
	}
	if req.PickNumber < 1 {
		return fmt.Errorf("%w: pick_number is required", itypes.ErrBadRequest)
	}

	m, err := s.deps.Hub.Get(ctx, req.DraftID)
	if err != nil {
		return err
	}
	res, err := m.MakePick(ctx, sess.userID, req.TeamID, req.PlayerID, req.PickNumber)
	if err != nil {
		return err
	}
	s.ackPick(sess, req.DraftID, res, req.PickNumber)
	return nil
}

func (s *Server) draftRequestAutoPick(ctx context.Context, sess *session, payload json.RawMessage) error {
	var req types.AutoPickRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID, "team_id", req.TeamID); err != nil {
		return err
	}

	m, err := s.deps.Hub.Get(ctx, req.DraftID)
	if err != nil {
		return err
	}
	res, err := m.AutoPick(ctx, sess.userID, req.TeamID, req.PickNumber)
	if err != nil {
		return err
	}
	s.ackPick(sess, req.DraftID, res, req.PickNumber)
	return nil
}

// ackPick answers a pick request with draft:pickMade. Members of the draft
// room already get it from the room broadcast.
func (s *Server) ackPick(sess *session, draftID string, res draft.Result, pickNumber int) {
	if sess.conn.InRoom(room.DraftRoom(draftID)) {
		return
	}
	picks := res.View.State.Picks
	if pickNumber < 1 {
		pickNumber = len(picks)
	}
	if pickNumber < 1 || pickNumber > len(picks) {
		return
	}
	s.reply(sess, types.DraftPickMade, draft.PickPayload(draftID, picks[pickNumber-1]), outbound.High)
}

func (s *Server) draftChat(ctx context.Context, sess *session, payload json.RawMessage) error {
	var req types.ChatRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID, "text", req.Text); err != nil {
		return err
	}
	if len(req.Text) > maxChatLength {
		return fmt.Errorf("%w: text longer than %d bytes", itypes.ErrBadRequest, maxChatLength)
	}
	name := room.DraftRoom(req.DraftID)
	if !sess.conn.InRoom(name) {
		return fmt.Errorf("%w: join %s first", itypes.ErrBadRequest, name)
	}

	msg, err := outbound.New(types.DraftChat, types.ChatPayload{
		DraftID: req.DraftID,
		UserID:  sess.userID,
		Text:    req.Text,
	}, outbound.High, s.deps.Scheduler.Now())
	if err != nil {
		return err
	}
	s.deps.Broker.Publish(ctx, name, msg)
	return nil
}

func (s *Server) draftPause(ctx context.Context, sess *session, payload json.RawMessage) error {
	return s.draftControl(ctx, sess, payload, (*draft.Machine).Pause)
}

func (s *Server) draftResume(ctx context.Context, sess *session, payload json.RawMessage) error {
	return s.draftControl(ctx, sess, payload, (*draft.Machine).Resume)
}

// draftControl runs pause or resume for a user who owns a team in the draft.
func (s *Server) draftControl(ctx context.Context, sess *session, payload json.RawMessage, op func(*draft.Machine, context.Context) (draft.Result, error)) error {
	var req types.DraftRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("draft_id", req.DraftID); err != nil {
		return err
	}
	m, err := s.deps.Hub.Get(ctx, req.DraftID)
	if err != nil {
		return err
	}
	v, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	member := false
	for _, t := range v.State.Teams {
		if t.OwnerID == sess.userID {
			member = true
			break
		}
	}
	if !member {
		return draft.ErrNotYourTeam
	}
	_, err = op(m, ctx)
	return err
}

func (s *Server) leagueJoin(_ context.Context, sess *session, payload json.RawMessage) error {
	var req types.LeagueRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("league_id", req.LeagueID); err != nil {
		return err
	}
	return s.joinRoom(sess, types.LeagueJoin, room.LeagueRoom(req.LeagueID))
}

func (s *Server) leagueLeave(_ context.Context, sess *session, payload json.RawMessage) error {
	var req types.LeagueRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("league_id", req.LeagueID); err != nil {
		return err
	}
	return s.leaveRoom(sess, types.LeagueLeave, room.LeagueRoom(req.LeagueID))
}

// tradePropose delivers the offer to the target user's room, which reaches
// every socket they have open on any instance, and to their notification
// stream if it is open here.
func (s *Server) tradePropose(ctx context.Context, sess *session, payload json.RawMessage) error {
	var req types.TradeRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("league_id", req.LeagueID, "to_user_id", req.ToUserID); err != nil {
		return err
	}
	if req.ToUserID == sess.userID {
		return fmt.Errorf("%w: cannot trade with yourself", itypes.ErrBadRequest)
	}

	trade := types.TradePayload{
		TradeID:    uuid.NewString(),
		LeagueID:   req.LeagueID,
		FromUserID: sess.userID,
		ToUserID:   req.ToUserID,
		Offer:      req.Offer,
	}
	msg, err := outbound.New(types.TradeReceived, trade, outbound.High, s.deps.Scheduler.Now())
	if err != nil {
		return err
	}
	s.deps.Broker.Publish(ctx, room.UserRoom(req.ToUserID), msg)

	if s.deps.Notify != nil {
		note := struct {
			Type  string             `json:"type"`
			Trade types.TradePayload `json:"trade"`
		}{Type: types.TradeReceived, Trade: trade}
		if err := s.deps.Notify.Send(req.ToUserID, note); err != nil {
			s.logger.Debug("trade notification not delivered", zap.String("user_id", req.ToUserID), zap.Error(err))
		}
	}

	s.reply(sess, types.TradeProposed, trade, outbound.High)
	return nil
}

func (s *Server) scoringSubscribe(_ context.Context, sess *session, payload json.RawMessage) error {
	var req types.MatchupRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("matchup_id", req.MatchupID); err != nil {
		return err
	}
	return s.joinRoom(sess, types.ScoringSubscribe, room.MatchupRoom(req.MatchupID))
}

func (s *Server) scoringUnsubscribe(_ context.Context, sess *session, payload json.RawMessage) error {
	var req types.MatchupRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := required("matchup_id", req.MatchupID); err != nil {
		return err
	}
	return s.leaveRoom(sess, types.ScoringUnsubscribe, room.MatchupRoom(req.MatchupID))
}
