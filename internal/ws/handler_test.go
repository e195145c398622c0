package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/identity"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/notify"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ratelimit"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
	itypes "github.com/DoyleJ11/fantasy-draft-backend/internal/types"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

type fixture struct {
	srv      *httptest.Server
	reg      *registry.Registry
	hub      *hub.Hub
	store    *store.MemoryStore
	verifier *identity.JWTVerifier
}

type fixtureConfig struct {
	limits        ratelimit.Config
	maxViolations int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	pingInterval  time.Duration
}

func newFixture(t *testing.T, limits ratelimit.Config, maxViolations int) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureConfig{limits: limits, maxViolations: maxViolations})
}

func newFixtureWith(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New()
	sched := scheduler.New(scheduler.RealClock())
	t.Cleanup(sched.Stop)

	pump := outbound.NewPump(32, logger, m)
	reg := registry.New(registry.Config{
		QueueDepth:    64,
		IdleTimeout:   fc.idleTimeout,
		SweepInterval: fc.sweepInterval,
	}, sched, pump, logger, m)
	t.Cleanup(reg.Close)
	broker := room.NewBroker(room.Config{AutoCleanup: true}, "instance-test", reg, sched, logger, m)
	pump.OnFailure(func(id string, _ error) { broker.Disconnect(id) })
	pump.Start(sched, 5*time.Millisecond)

	st := store.NewMemoryStore()
	h := hub.NewHub(context.Background(), hub.Config{
		Draft: draft.Config{TickInterval: time.Hour},
	}, hub.Deps{
		Scheduler: sched,
		Publisher: broker,
		Store:     st,
		Archive:   st,
		Logger:    logger,
		Metrics:   m,
	})
	t.Cleanup(h.Shutdown)

	v := identity.NewJWTVerifier("test-secret", "")
	s := NewServer(Config{MaxViolations: fc.maxViolations, PingInterval: fc.pingInterval}, Deps{
		Verifier:  v,
		Broker:    broker,
		Registry:  reg,
		Hub:       h,
		Limiter:   ratelimit.New(fc.limits, sched, m),
		Notify:    notify.NewManager(notify.Config{}, sched, logger, m),
		Scheduler: sched,
		Logger:    logger,
		Metrics:   m,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, reg: reg, hub: h, store: st, verifier: v}
}

func (f *fixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// startDraft schedules a two-team, two-round draft and starts it.
func (f *fixture) startDraft(t *testing.T, id string) {
	t.Helper()
	f.store.PutRoster(store.Roster{
		DraftID:  id,
		LeagueID: "league-1",
		Settings: engine.Settings{Rounds: 2, PickTimeLimitSeconds: 90, AutoPickEnabled: true},
		Teams: []engine.TeamRecord{
			{ID: "team-a", OwnerID: "user-a"},
			{ID: "team-b", OwnerID: "user-b"},
		},
		Players: []string{"p1", "p2", "p3", "p4", "p5", "p6"},
	})
	ctx := context.Background()
	m, err := f.hub.Schedule(ctx, id)
	require.NoError(t, err)
	_, err = m.Start(ctx)
	require.NoError(t, err)
}

type frame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(types.ClientMessage{Type: typ, Payload: raw})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", typ)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == typ {
			return f
		}
	}
}

func TestDispatchTable_CoversClientEvents(t *testing.T) {
	s := NewServer(Config{}, Deps{})
	for _, ev := range types.ClientEvents {
		assert.Contains(t, s.handlers, ev)
	}
	assert.Len(t, s.handlers, len(types.ClientEvents))
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)

	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_JoinReturnsState(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	f.startDraft(t, "d1")
	conn := f.dial(t, "user-a")

	send(t, conn, types.DraftJoin, types.DraftRef{DraftID: "d1"})
	fr := readUntil(t, conn, types.DraftState)

	var snap types.DraftSnapshot
	require.NoError(t, json.Unmarshal(fr.Payload, &snap))
	assert.Equal(t, "d1", snap.DraftID)
	assert.Equal(t, "ACTIVE", snap.Status)
	assert.Equal(t, 1, snap.PickNumber)
	assert.Equal(t, "team-a", snap.CurrentTeamID)
	assert.Len(t, snap.Available, 6)
}

func TestHandler_JoinUnscheduledDraftAcks(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	conn := f.dial(t, "user-a")

	send(t, conn, types.DraftJoin, types.DraftRef{DraftID: "elsewhere"})
	fr := readUntil(t, conn, types.Ack)

	var ack types.AckPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &ack))
	assert.Equal(t, types.DraftJoin, ack.Event)
	assert.Equal(t, "draft:elsewhere", ack.Room)
}

func TestHandler_MakePick(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	f.startDraft(t, "d1")
	a := f.dial(t, "user-a")
	b := f.dial(t, "user-b")

	// b is not on the clock
	send(t, b, types.DraftMakePick, types.MakePickRequest{DraftID: "d1", TeamID: "team-b", PlayerID: "p1", PickNumber: 1})
	fr := readUntil(t, b, types.DraftError)
	var perr types.ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeNotYourTurn, perr.Code)
	assert.Equal(t, types.DraftMakePick, perr.Event)

	// a has not joined the room, so the acknowledgement comes directly
	send(t, a, types.DraftMakePick, types.MakePickRequest{DraftID: "d1", TeamID: "team-a", PlayerID: "p3", PickNumber: 1})
	fr = readUntil(t, a, types.DraftPickMade)
	var pick types.PickPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &pick))
	assert.Equal(t, "p3", pick.PlayerID)
	assert.Equal(t, 1, pick.PickNumber)
	assert.False(t, pick.Auto)

	require.Eventually(t, func() bool { return len(f.store.Picks("d1")) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandler_RoomBroadcastReachesMembers(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	f.startDraft(t, "d1")
	a := f.dial(t, "user-a")
	b := f.dial(t, "user-b")

	send(t, b, types.DraftJoin, types.DraftRef{DraftID: "d1"})
	readUntil(t, b, types.DraftState)

	send(t, a, types.DraftMakePick, types.MakePickRequest{DraftID: "d1", TeamID: "team-a", PlayerID: "p2", PickNumber: 1})
	fr := readUntil(t, b, types.DraftPickMade)
	assert.Equal(t, "draft:d1", fr.Room)

	fr = readUntil(t, b, types.DraftTurn)
	var turn types.TurnPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &turn))
	assert.Equal(t, "team-b", turn.TeamID)
	assert.Equal(t, 2, turn.PickNumber)
}

func TestHandler_ChatRequiresMembership(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	conn := f.dial(t, "user-a")

	send(t, conn, types.DraftChat, types.ChatRequest{DraftID: "d1", Text: "hello"})
	fr := readUntil(t, conn, types.DraftError)
	var perr types.ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeBadRequest, perr.Code)

	send(t, conn, types.DraftJoin, types.DraftRef{DraftID: "d1"})
	readUntil(t, conn, types.Ack)
	send(t, conn, types.DraftChat, types.ChatRequest{DraftID: "d1", Text: "hello"})
	fr = readUntil(t, conn, types.DraftChat)
	var chat types.ChatPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &chat))
	assert.Equal(t, "user-a", chat.UserID)
	assert.Equal(t, "hello", chat.Text)
}

func TestHandler_PauseRequiresTeamOwner(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	f.startDraft(t, "d1")
	outsider := f.dial(t, "user-z")

	send(t, outsider, types.DraftPause, types.DraftRef{DraftID: "d1"})
	fr := readUntil(t, outsider, types.DraftError)
	var perr types.ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeNotYourTeam, perr.Code)

	owner := f.dial(t, "user-b")
	send(t, owner, types.DraftJoin, types.DraftRef{DraftID: "d1"})
	readUntil(t, owner, types.DraftState)
	send(t, owner, types.DraftPause, types.DraftRef{DraftID: "d1"})
	readUntil(t, owner, types.DraftPaused)
}

func TestHandler_UnknownAndMalformedEvents(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	conn := f.dial(t, "user-a")

	send(t, conn, "draft:teleport", map[string]string{})
	fr := readUntil(t, conn, types.DraftError)
	var perr types.ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeUnknownEvent, perr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	fr = readUntil(t, conn, types.Error)
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeBadRequest, perr.Code)
}

func TestHandler_TradeReachesTarget(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	a := f.dial(t, "user-a")
	b := f.dial(t, "user-b")

	send(t, a, types.TradePropose, types.TradeRequest{
		LeagueID: "league-1",
		ToUserID: "user-b",
		Offer:    json.RawMessage(`{"give":["p1"],"get":["p9"]}`),
	})

	fr := readUntil(t, a, types.TradeProposed)
	var sent types.TradePayload
	require.NoError(t, json.Unmarshal(fr.Payload, &sent))
	assert.NotEmpty(t, sent.TradeID)

	fr = readUntil(t, b, types.TradeReceived)
	var got types.TradePayload
	require.NoError(t, json.Unmarshal(fr.Payload, &got))
	assert.Equal(t, sent.TradeID, got.TradeID)
	assert.Equal(t, "user-a", got.FromUserID)
	assert.Equal(t, "user:user-b", fr.Room)
}

func TestHandler_ScoringSubscribe(t *testing.T) {
	f := newFixture(t, ratelimit.Config{}, 0)
	conn := f.dial(t, "user-a")

	send(t, conn, types.ScoringSubscribe, types.MatchupRef{MatchupID: "m1"})
	fr := readUntil(t, conn, types.Ack)
	var ack types.AckPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &ack))
	assert.Equal(t, "matchup:m1", ack.Room)

	send(t, conn, types.ScoringSubscribe, types.MatchupRef{})
	fr = readUntil(t, conn, types.Error)
	var perr types.ErrorPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &perr))
	assert.Equal(t, itypes.CodeBadRequest, perr.Code)
}

func TestHandler_RateLimitClosesAfterRepeatedViolations(t *testing.T) {
	f := newFixture(t, ratelimit.Config{PerSecond: 2}, 1)
	conn := f.dial(t, "user-a")

	for i := 0; i < 4; i++ {
		send(t, conn, types.LeagueJoin, types.LeagueRef{LeagueID: "l1"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

// readInBackground keeps a read pending so the client answers pings, and
// reports the first read error.
func readInBackground(ctx context.Context, conn *websocket.Conn) <-chan error {
	errc := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc
}

func TestHandler_KeepaliveHoldsListeningClient(t *testing.T) {
	f := newFixtureWith(t, fixtureConfig{
		idleTimeout:   300 * time.Millisecond,
		sweepInterval: 50 * time.Millisecond,
		pingInterval:  50 * time.Millisecond,
	})
	conn := f.dial(t, "user-a")

	send(t, conn, types.DraftJoin, types.DraftRef{DraftID: "d1"})
	readUntil(t, conn, types.Ack)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := readInBackground(ctx, conn)

	// well past the idle timeout without the client sending a frame
	select {
	case err := <-errc:
		t.Fatalf("listening client was disconnected: %v", err)
	case <-time.After(time.Second):
	}
	assert.Equal(t, 1, f.reg.Len())
}

func TestHandler_IdleSweepClosesWithoutKeepalive(t *testing.T) {
	f := newFixtureWith(t, fixtureConfig{
		idleTimeout:   300 * time.Millisecond,
		sweepInterval: 50 * time.Millisecond,
	})
	conn := f.dial(t, "user-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := readInBackground(ctx, conn)

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was not swept")
	}
	assert.Eventually(t, func() bool { return f.reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}
