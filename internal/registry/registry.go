// Package registry tracks live connections, the user behind each one and
// the rooms it has joined. It is the only owner of connection lifecycle:
// connections are created by Register and destroyed by Unregister.
package registry

import (
	"errors"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

// shardCount must be a power of two.
const shardCount = 32

var ErrUnknownConnection = errors.New("unknown connection")

type Config struct {
	QueueDepth    int
	IdleTimeout   time.Duration // <= 0 disables the idle sweep
	SweepInterval time.Duration
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

type Registry struct {
	cfg     Config
	sched   *scheduler.Scheduler
	pump    *outbound.Pump
	logger  *zap.Logger
	metrics *metrics.Collector

	seed   maphash.Seed
	shards [shardCount]*shard
	size   atomic.Int64

	usersMu sync.RWMutex
	users   map[string]map[string]*Connection

	idleMu sync.Mutex
	onIdle func(id string)
	sweep  *scheduler.Task
}

func New(cfg Config, sched *scheduler.Scheduler, pump *outbound.Pump, logger *zap.Logger, m *metrics.Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		cfg:     cfg,
		sched:   sched,
		pump:    pump,
		logger:  logger.Named("registry"),
		metrics: m,
		seed:    maphash.MakeSeed(),
		users:   make(map[string]map[string]*Connection),
	}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &shard{conns: make(map[string]*Connection)}
	}
	if cfg.IdleTimeout > 0 {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = cfg.IdleTimeout / 2
		}
		r.sweep = sched.Every(interval, r.sweepIdle)
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[maphash.String(r.seed, id)&(shardCount-1)]
}

// OnIdle sets the callback run for each connection found idle by the sweep.
// The callback is expected to disconnect it.
func (r *Registry) OnIdle(fn func(id string)) {
	r.idleMu.Lock()
	r.onIdle = fn
	r.idleMu.Unlock()
}

// Register stores a new connection for an authenticated user. closeFn is run
// once when the connection is unregistered, whatever the cause.
func (r *Registry) Register(userID string, sink outbound.Sink, closeFn func()) *Connection {
	c := &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		Queue:        outbound.NewQueue(r.cfg.QueueDepth, r.metrics),
		closeFn:      closeFn,
		rooms:        make(map[string]struct{}),
		lastActivity: r.sched.Now(),
	}

	sh := r.shardFor(c.ID)
	sh.mu.Lock()
	sh.conns[c.ID] = c
	sh.mu.Unlock()
	r.size.Add(1)

	r.usersMu.Lock()
	byUser := r.users[userID]
	if byUser == nil {
		byUser = make(map[string]*Connection)
		r.users[userID] = byUser
	}
	byUser[c.ID] = c
	r.usersMu.Unlock()

	if r.pump != nil && sink != nil {
		r.pump.Attach(c.ID, c.Queue, sink)
	}
	r.metrics.ConnectionOpened()
	r.logger.Info("connection registered", zap.String("conn_id", c.ID), zap.String("user_id", userID))
	return c
}

func (r *Registry) Get(id string) (*Connection, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	c, ok := sh.conns[id]
	sh.mu.RUnlock()
	return c, ok
}

// userConns returns every connection the user has open on this instance.
func (r *Registry) userConns(userID string) []*Connection {
	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	out := make([]*Connection, 0, len(r.users[userID]))
	for _, c := range r.users[userID] {
		out = append(out, c)
	}
	return out
}

// Touch records activity on the connection.
func (r *Registry) Touch(id string) {
	if c, ok := r.Get(id); ok {
		c.Touch(r.sched.Now())
	}
}

// Unregister deletes the connection, drops its pending outbound messages and
// closes it. The connection is marked closed first, after which AddRoom
// refuses it; the caller releases the memberships it already holds.
func (r *Registry) Unregister(id string) (*Connection, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	c, ok := sh.conns[id]
	if ok {
		delete(sh.conns, id)
	}
	sh.mu.Unlock()
	if !ok {
		return nil, ErrUnknownConnection
	}
	r.size.Add(-1)

	r.usersMu.Lock()
	if byUser := r.users[c.UserID]; byUser != nil {
		delete(byUser, id)
		if len(byUser) == 0 {
			delete(r.users, c.UserID)
		}
	}
	r.usersMu.Unlock()

	c.markClosed()
	if r.pump != nil {
		r.pump.Detach(id)
	}
	r.metrics.Dropped(metrics.DropDisconnected, c.Queue.Close())
	r.metrics.ConnectionClosed()
	c.close()

	r.logger.Info("connection unregistered", zap.String("conn_id", id), zap.String("user_id", c.UserID))
	return c, nil
}

func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Each calls fn for a snapshot of all connections, without holding any lock.
func (r *Registry) Each(fn func(*Connection)) {
	var all []*Connection
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, c := range sh.conns {
			all = append(all, c)
		}
		sh.mu.RUnlock()
	}
	for _, c := range all {
		fn(c)
	}
}

// Idle returns the ids of connections with no activity since before cutoff.
func (r *Registry) Idle(cutoff time.Time) []string {
	var ids []string
	r.Each(func(c *Connection) {
		if c.LastActivity().Before(cutoff) {
			ids = append(ids, c.ID)
		}
	})
	return ids
}

func (r *Registry) sweepIdle() {
	ids := r.Idle(r.sched.Now().Add(-r.cfg.IdleTimeout))
	if len(ids) == 0 {
		return
	}

	r.idleMu.Lock()
	fn := r.onIdle
	r.idleMu.Unlock()

	for _, id := range ids {
		r.logger.Info("idle timeout", zap.String("conn_id", id))
		if fn != nil {
			fn(id)
		} else {
			_, _ = r.Unregister(id)
		}
	}
}

// Close stops the idle sweep.
func (r *Registry) Close() {
	r.sweep.Cancel()
}
