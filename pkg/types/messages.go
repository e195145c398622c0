package types

import (
	"encoding/json"
	"time"
)

// Every websocket frame is {"type": <tag>, "room": <room?>, "payload": {...}, "ts": <time>}.

// Client -> Server
const (
	DraftJoin            = "draft:join"            // {draft_id}
	DraftLeave           = "draft:leave"           // {draft_id}
	DraftMakePick        = "draft:makePick"        // {draft_id, team_id, player_id, pick_number}
	DraftChat            = "draft:chat"            // {draft_id, text}
	DraftRequestAutoPick = "draft:requestAutoPick" // {draft_id, team_id, pick_number}
	DraftPause           = "draft:pause"           // {draft_id}
	DraftResume          = "draft:resume"          // {draft_id}
	LeagueJoin           = "league:join"           // {league_id}
	LeagueLeave          = "league:leave"          // {league_id}
	TradePropose         = "trade:propose"         // {league_id, to_user_id, offer}
	ScoringSubscribe     = "scoring:subscribe"     // {matchup_id}
	ScoringUnsubscribe   = "scoring:unsubscribe"   // {matchup_id}
)

// ClientEvents lists every tag a client may send.
var ClientEvents = []string{
	DraftJoin, DraftLeave, DraftMakePick, DraftChat, DraftRequestAutoPick,
	DraftPause, DraftResume, LeagueJoin, LeagueLeave, TradePropose,
	ScoringSubscribe, ScoringUnsubscribe,
}

// Server -> Client
const (
	DraftState        = "draft:state"        // DraftSnapshot, sent on join
	DraftStarted      = "draft:started"      // TurnPayload
	DraftPickMade     = "draft:pickMade"     // PickPayload; also the makePick acknowledgement
	DraftTurn         = "draft:turn"         // TurnPayload
	DraftTimer        = "draft:timer"        // TimerPayload, coalesced
	DraftPaused       = "draft:paused"       // TurnPayload
	DraftResumed      = "draft:resumed"      // TurnPayload
	DraftCompleted    = "draft:completed"    // CompletedPayload
	DraftClockExpired = "draft:clockExpired" // TurnPayload
	DraftError        = "draft:error"        // ErrorPayload
	TradeProposed     = "trade:proposed"     // TradePayload, sender acknowledgement
	TradeReceived     = "trade:received"     // TradePayload
	ScoringUpdate     = "scoring:update"     // ScorePayload, coalesced
	Ack               = "ack"                // AckPayload
	Error             = "error"              // ErrorPayload
)

// Notification stream (SSE) event names.
const (
	StreamConnected    = "connected"
	StreamHeartbeat    = "heartbeat"
	StreamNotification = "notification"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type DraftRef struct {
	DraftID string `json:"draft_id"`
}

type MakePickRequest struct {
	DraftID    string `json:"draft_id"`
	TeamID     string `json:"team_id"`
	PlayerID   string `json:"player_id"`
	PickNumber int    `json:"pick_number"`
}

type AutoPickRequest struct {
	DraftID    string `json:"draft_id"`
	TeamID     string `json:"team_id"`
	PickNumber int    `json:"pick_number"`
}

type ChatRequest struct {
	DraftID string `json:"draft_id"`
	Text    string `json:"text"`
}

type LeagueRef struct {
	LeagueID string `json:"league_id"`
}

type MatchupRef struct {
	MatchupID string `json:"matchup_id"`
}

type TradeRequest struct {
	LeagueID string          `json:"league_id"`
	ToUserID string          `json:"to_user_id"`
	Offer    json.RawMessage `json:"offer"`
}

type ChatPayload struct {
	DraftID string `json:"draft_id"`
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
}

type PickPayload struct {
	DraftID    string    `json:"draft_id"`
	PickNumber int       `json:"pick_number"`
	Round      int       `json:"round"`
	TeamID     string    `json:"team_id"`
	PlayerID   string    `json:"player_id"`
	Auto       bool      `json:"auto"`
	MadeAt     time.Time `json:"made_at"`
}

type TurnPayload struct {
	DraftID          string    `json:"draft_id"`
	Status           string    `json:"status"`
	PickNumber       int       `json:"pick_number"`
	Round            int       `json:"round"`
	TeamID           string    `json:"team_id"`
	Deadline         time.Time `json:"deadline,omitzero"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type TimerPayload struct {
	DraftID          string    `json:"draft_id"`
	PickNumber       int       `json:"pick_number"`
	TeamID           string    `json:"team_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Deadline         time.Time `json:"deadline"`
}

type CompletedPayload struct {
	DraftID     string    `json:"draft_id"`
	TotalPicks  int       `json:"total_picks"`
	CompletedAt time.Time `json:"completed_at"`
}

type TradePayload struct {
	TradeID    string          `json:"trade_id"`
	LeagueID   string          `json:"league_id"`
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Offer      json.RawMessage `json:"offer,omitempty"`
}

type ScorePayload struct {
	MatchupID string          `json:"matchup_id"`
	Scores    json.RawMessage `json:"scores"`
}

type AckPayload struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
