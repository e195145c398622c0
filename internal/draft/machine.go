// Package draft runs one actor goroutine per live draft. The actor owns the
// draft state, its countdown and its autopick, and publishes every state
// change to the draft's room.
package draft

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
)

var (
	ErrStopped     = errors.New("draft machine stopped")
	ErrNotYourTeam = errors.New("team not owned by user")
)

// Publisher is the room fan-out the machine publishes to.
type Publisher interface {
	Publish(ctx context.Context, room string, msg outbound.Message) int
}

type Config struct {
	TickInterval time.Duration // countdown broadcast period
	StoreTimeout time.Duration
}

// Deps are the collaborators of a machine. Store, Logger, Metrics and
// OnComplete may be nil.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Publisher  Publisher
	Store      store.DraftStore
	Logger     *zap.Logger
	Metrics    *metrics.Collector
	OnComplete func(View)
}

type Machine struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int

	cfg        Config
	sched      *scheduler.Scheduler
	pub        Publisher
	store      store.DraftStore
	logger     *zap.Logger
	metrics    *metrics.Collector
	onComplete func(View)

	deadline   *scheduler.Task
	ticker     *scheduler.Task
	expiredFor int // pick whose clockExpired has been sent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, initial engine.State, cfg Config, deps Deps) *Machine {
	ctx, cancel := context.WithCancel(parent)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Machine{
		id:         initial.DraftID,
		inbox:      make(chan Msg, 64),
		state:      initial.Clone(),
		cfg:        cfg,
		sched:      deps.Scheduler,
		pub:        deps.Publisher,
		store:      deps.Store,
		logger:     logger.Named("draft").With(zap.String("draft_id", initial.DraftID)),
		metrics:    deps.Metrics,
		onComplete: deps.OnComplete,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	if m.sched == nil {
		m.sched = scheduler.New(nil)
	}

	// A machine rebuilt on an already running draft keeps its countdown.
	m.rearm()

	go m.loop()
	return m
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.stopTimers()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case Request:
				msg.Reply <- m.handle(msg)

			case GetState:
				msg.Reply <- m.view(m.sched.Now())

			case expire:
				m.onExpire(msg)

			case tick:
				m.onTick(msg.at)
			}
		}
	}
}

func (m *Machine) handle(req Request) Result {
	cmd := req.Cmd
	cmd.At = m.sched.Now()

	if req.UserID != "" && cmd.TeamID != "" {
		team, ok := m.state.Team(cmd.TeamID)
		if !ok || team.OwnerID != req.UserID {
			return Result{View: m.view(cmd.At), Err: ErrNotYourTeam}
		}
	}
	if cmd.Type == engine.CmdAutoPick {
		m.refreshAutoPickList(m.state.CurrentTeamID())
	}
	return m.apply(cmd)
}

// apply runs cmd through the engine and, on success, commits the new state
// and carries out its side effects.
func (m *Machine) apply(cmd engine.Command) Result {
	prev := m.state
	events, next, err := engine.Apply(prev, cmd)
	if err != nil {
		return Result{View: m.view(cmd.At), Err: err}
	}
	m.state = next
	m.version++

	for _, ev := range events {
		if ev.Type != engine.EvtPickMade {
			continue
		}
		pick := next.Picks[ev.PickNumber-1]
		source := "manual"
		if pick.Auto {
			source = "auto"
		}
		onClock := time.Duration(prev.Settings.PickTimeLimitSeconds)*time.Second - prev.Remaining(cmd.At)
		m.metrics.PickCommitted(source, onClock)
		m.persist(pick)
	}

	m.rearm()
	m.publishEvents(events, cmd.At)

	v := m.view(cmd.At)
	if engine.ContainsEvent(events, engine.EvtDraftCompleted) {
		m.logger.Info("draft completed", zap.Int("picks", len(next.Picks)))
		if m.onComplete != nil {
			m.onComplete(v)
		}
	}
	return Result{Events: events, View: v}
}

func (m *Machine) onExpire(e expire) {
	s := m.state
	if s.Status != engine.StatusActive || s.PickNumber != e.pick || !s.Deadline.Equal(e.deadline) {
		return
	}

	if !s.Settings.AutoPickEnabled {
		if m.expiredFor == e.pick {
			return
		}
		m.expiredFor = e.pick
		m.logger.Info("clock expired", zap.Int("pick", e.pick), zap.String("team_id", s.CurrentTeamID()))
		m.publishClockExpired(e.deadline)
		return
	}

	m.refreshAutoPickList(s.CurrentTeamID())
	res := m.apply(engine.Command{Type: engine.CmdAutoPick, PickNumber: e.pick, At: e.deadline})
	if res.Err != nil {
		m.logger.Error("autopick failed", zap.Int("pick", e.pick), zap.Error(res.Err))
	}
}

func (m *Machine) onTick(at time.Time) {
	if m.state.Status != engine.StatusActive {
		return
	}
	m.publishTimer(at)
}

// rearm replaces the deadline timer for the current pick and keeps the
// countdown ticker running exactly while the draft is ACTIVE.
func (m *Machine) rearm() {
	m.deadline.Cancel()
	m.deadline = nil

	if m.state.Status != engine.StatusActive {
		m.ticker.Cancel()
		m.ticker = nil
		return
	}

	e := expire{pick: m.state.PickNumber, deadline: m.state.Deadline}
	m.deadline = m.sched.After(e.deadline.Sub(m.sched.Now()), func() { m.post(e) })
	if m.ticker == nil {
		clock := m.sched.Clock()
		m.ticker = m.sched.Every(m.cfg.TickInterval, func() { m.post(tick{at: clock.Now()}) })
	}
}

func (m *Machine) stopTimers() {
	m.deadline.Cancel()
	m.ticker.Cancel()
	m.deadline, m.ticker = nil, nil
}

// post delivers a timer message unless the machine has stopped.
func (m *Machine) post(msg Msg) {
	select {
	case m.inbox <- msg:
	case <-m.ctx.Done():
	}
}

// refreshAutoPickList reloads a team's preferences before an autopick. On
// failure the list loaded with the roster is used.
func (m *Machine) refreshAutoPickList(teamID string) {
	if m.store == nil || teamID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
	defer cancel()

	list, err := m.store.LoadAutoPickList(ctx, teamID)
	if err != nil {
		m.metrics.StoreFailed("load_autopick_list")
		m.logger.Warn("autopick list reload failed", zap.String("team_id", teamID), zap.Error(err))
		return
	}
	for i := range m.state.Teams {
		if m.state.Teams[i].ID == teamID {
			m.state.Teams[i].AutoPickList = list
		}
	}
}

func (m *Machine) persist(p engine.Pick) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
	defer cancel()

	if err := m.store.AppendPick(ctx, m.id, p); err != nil {
		m.metrics.StoreFailed("append_pick")
		m.logger.Error("append pick failed",
			zap.Int("pick", p.Number),
			zap.String("player_id", p.PlayerID),
			zap.Error(err))
	}
}

func (m *Machine) view(at time.Time) View {
	return View{Version: m.version, State: m.state.Clone(), At: at}
}

// send hands msg to the actor, giving up if ctx ends or the machine stops.
func (m *Machine) send(ctx context.Context, msg Msg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) request(ctx context.Context, userID string, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	if err := m.send(ctx, Request{Cmd: cmd, UserID: userID, Reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-m.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *Machine) Start(ctx context.Context) (Result, error) {
	return m.request(ctx, "", engine.Command{Type: engine.CmdStart})
}

func (m *Machine) Pause(ctx context.Context) (Result, error) {
	return m.request(ctx, "", engine.Command{Type: engine.CmdPause})
}

func (m *Machine) Resume(ctx context.Context) (Result, error) {
	return m.request(ctx, "", engine.Command{Type: engine.CmdResume})
}

// MakePick submits a pick for pickNumber on behalf of userID. An empty userID
// skips the ownership check.
func (m *Machine) MakePick(ctx context.Context, userID, teamID, playerID string, pickNumber int) (Result, error) {
	return m.request(ctx, userID, engine.Command{
		Type:       engine.CmdMakePick,
		TeamID:     teamID,
		PlayerID:   playerID,
		PickNumber: pickNumber,
	})
}

// AutoPick picks for the team on the clock from its preference list.
func (m *Machine) AutoPick(ctx context.Context, userID, teamID string, pickNumber int) (Result, error) {
	return m.request(ctx, userID, engine.Command{
		Type:       engine.CmdAutoPick,
		TeamID:     teamID,
		PickNumber: pickNumber,
	})
}

func (m *Machine) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := m.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-m.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Shutdown stops the actor and its timers. It does not wait; use Done.
func (m *Machine) Shutdown() { m.cancel() }

func (m *Machine) Done() <-chan struct{} { return m.done }
