// Package hub owns every live draft machine on this instance, keyed by draft id.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
)

var (
	ErrDraftNotFound = errors.New("draft not scheduled")
	ErrHubStopped    = errors.New("hub stopped")
)

type HubMsg interface{ isHubMsg() }

// EnsureDraft installs a machine for State.DraftID unless one exists, and
// replies with whichever machine is live.
type EnsureDraft struct {
	State engine.State
	Reply chan *draft.Machine
}

type GetDraft struct {
	ID    string
	Reply chan *draft.Machine // nil if absent
}

type RemoveDraft struct {
	ID string
}

type ListDrafts struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (EnsureDraft) isHubMsg() {}
func (GetDraft) isHubMsg()    {}
func (RemoveDraft) isHubMsg() {}
func (ListDrafts) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Draft                       draft.Config
	StoreTimeout                time.Duration
	DefaultPickTimeLimitSeconds int // used when a roster carries none
}

// Deps are shared by every machine the hub creates. Archive may be nil.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Publisher draft.Publisher
	Store     store.DraftStore
	Archive   store.Archive
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

type Hub struct {
	inbox  chan HubMsg
	drafts map[string]*draft.Machine

	cfg    Config
	deps   Deps
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, cfg Config, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		drafts: make(map[string]*draft.Machine),
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureDraft:
				id := msg.State.DraftID
				if d := h.drafts[id]; d != nil {
					msg.Reply <- d
					break
				}
				d := draft.New(h.ctx, msg.State, h.cfg.Draft, draft.Deps{
					Scheduler:  h.deps.Scheduler,
					Publisher:  h.deps.Publisher,
					Store:      h.deps.Store,
					Logger:     h.deps.Logger,
					Metrics:    h.deps.Metrics,
					OnComplete: func(v draft.View) { go h.finish(v) },
				})
				h.drafts[id] = d
				h.logger.Info("draft scheduled",
					zap.String("draft_id", id),
					zap.Int("teams", len(msg.State.Teams)),
					zap.Int("committed", len(msg.State.Picks)))
				msg.Reply <- d

			case GetDraft:
				msg.Reply <- h.drafts[msg.ID]

			case RemoveDraft:
				if d := h.drafts[msg.ID]; d != nil {
					d.Shutdown()
					delete(h.drafts, msg.ID)
				}

			case ListDrafts:
				ids := make([]string, 0, len(h.drafts))
				for id := range h.drafts {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, d := range h.drafts {
		d.Shutdown()
		delete(h.drafts, id)
	}
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule loads a draft's roster and installs a SCHEDULED machine for it.
// Committed picks are replayed so a restarted draft resumes where it stopped.
// Scheduling a draft that is already live returns the live machine.
func (h *Hub) Schedule(ctx context.Context, draftID string) (*draft.Machine, error) {
	if d, err := h.Get(ctx, draftID); err == nil {
		return d, nil
	} else if !errors.Is(err, ErrDraftNotFound) {
		return nil, err
	}

	state, err := h.load(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return h.Install(ctx, state)
}

// Install hands a prepared state to the hub.
func (h *Hub) Install(ctx context.Context, state engine.State) (*draft.Machine, error) {
	reply := make(chan *draft.Machine, 1)
	if err := h.send(ctx, EnsureDraft{State: state, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case d := <-reply:
		return d, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) load(ctx context.Context, draftID string) (engine.State, error) {
	if h.deps.Store == nil {
		return engine.State{}, fmt.Errorf("schedule %s: no draft store", draftID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	r, err := h.deps.Store.LoadDraftRoster(ctx, draftID)
	if err != nil {
		return engine.State{}, err
	}
	for i := range r.Teams {
		list, err := h.deps.Store.LoadAutoPickList(ctx, r.Teams[i].ID)
		if err != nil {
			h.logger.Warn("autopick list load failed", zap.String("team_id", r.Teams[i].ID), zap.Error(err))
			continue
		}
		if len(list) > 0 {
			r.Teams[i].AutoPickList = list
		}
	}
	if r.Settings.PickTimeLimitSeconds == 0 {
		r.Settings.PickTimeLimitSeconds = h.cfg.DefaultPickTimeLimitSeconds
	}

	state, err := engine.NewState(r.DraftID, r.LeagueID, r.Teams, r.Players, r.Settings)
	if err != nil {
		return engine.State{}, fmt.Errorf("schedule %s: %w", draftID, err)
	}
	state, err = engine.Replay(state, r.Picks)
	if err != nil {
		return engine.State{}, fmt.Errorf("schedule %s: %w", draftID, err)
	}
	return state, nil
}

func (h *Hub) Get(ctx context.Context, draftID string) (*draft.Machine, error) {
	reply := make(chan *draft.Machine, 1)
	if err := h.send(ctx, GetDraft{ID: draftID, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case d := <-reply:
		if d == nil {
			return nil, ErrDraftNotFound
		}
		return d, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Remove(ctx context.Context, draftID string) error {
	return h.send(ctx, RemoveDraft{ID: draftID})
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, ListDrafts{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every machine and the hub itself.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
}

// finish archives a completed draft and forgets its machine.
func (h *Hub) finish(v draft.View) {
	s := v.State
	if h.deps.Archive != nil {
		ctx, cancel := context.WithTimeout(h.ctx, h.cfg.StoreTimeout)
		err := h.deps.Archive.ArchiveDraft(ctx, store.ArchivedDraft{
			DraftID:     s.DraftID,
			LeagueID:    s.LeagueID,
			Picks:       s.Picks,
			CompletedAt: v.At,
		})
		cancel()
		if err != nil {
			h.deps.Metrics.StoreFailed("archive")
			h.logger.Error("archive draft failed", zap.String("draft_id", s.DraftID), zap.Error(err))
		}
	}
	if err := h.Remove(h.ctx, s.DraftID); err != nil && !errors.Is(err, ErrHubStopped) && !errors.Is(err, context.Canceled) {
		h.logger.Warn("remove completed draft", zap.String("draft_id", s.DraftID), zap.Error(err))
	}
}
