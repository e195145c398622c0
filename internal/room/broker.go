// Package room implements named broadcast groups on top of the connection
// registry. Each room's membership is guarded by its own lock, and local
// fan-out runs under that lock so members see one room's messages in publish
// order and never miss a message because of a concurrent join or leave.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

var (
	ErrRoomFull    = errors.New("room full")
	ErrInvalidRoom = errors.New("invalid room name")
)

const userPrefix = "user:"

func LeagueRoom(id string) string  { return "league:" + id }
func DraftRoom(id string) string   { return "draft:" + id }
func MatchupRoom(id string) string { return "matchup:" + id }
func UserRoom(id string) string    { return userPrefix + id }

// Remote replicates publishes to other instances.
type Remote interface {
	PublishRemote(ctx context.Context, room string, msg outbound.Message)
}

type Config struct {
	Capacity    int // members per room, <= 0 is unlimited; user rooms are exempt
	AutoCleanup bool
}

type room struct {
	name    string
	mu      sync.Mutex
	members map[string]*registry.Connection
	// dead is set when an emptied room is removed from the broker; anyone
	// still holding the pointer must look the room up again.
	dead bool
}

type Broker struct {
	cfg        Config
	instanceID string
	reg        *registry.Registry
	sched      *scheduler.Scheduler
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu     sync.Mutex
	rooms  map[string]*room
	remote Remote
}

func NewBroker(cfg Config, instanceID string, reg *registry.Registry, sched *scheduler.Scheduler, logger *zap.Logger, m *metrics.Collector) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		cfg:        cfg,
		instanceID: instanceID,
		reg:        reg,
		sched:      sched,
		logger:     logger.Named("room"),
		metrics:    m,
		rooms:      make(map[string]*room),
	}
}

// SetRemote installs cross-instance replication. Without it the broker only
// fans out locally.
func (b *Broker) SetRemote(r Remote) {
	b.mu.Lock()
	b.remote = r
	b.mu.Unlock()
}

func (b *Broker) InstanceID() string { return b.instanceID }

// Connect registers a connection and joins it to its user room.
func (b *Broker) Connect(userID string, sink outbound.Sink, closeFn func()) (*registry.Connection, error) {
	c := b.reg.Register(userID, sink, closeFn)
	if err := b.Join(c.ID, UserRoom(userID)); err != nil {
		_, _ = b.reg.Unregister(c.ID)
		return nil, err
	}
	return c, nil
}

// Disconnect unregisters the connection and leaves every joined room.
// Unregistering first closes the window for a concurrent Join.
// Draft timers are untouched.
func (b *Broker) Disconnect(connID string) {
	c, err := b.reg.Unregister(connID)
	if err != nil {
		return
	}
	for _, name := range c.Rooms() {
		_ = b.Leave(connID, name)
	}
}

func (b *Broker) lookup(name string, create bool) *room {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[name]
	if !ok && create {
		r = &room{name: name, members: make(map[string]*registry.Connection)}
		b.rooms[name] = r
		b.metrics.RoomCreated()
		b.logger.Debug("room created", zap.String("room", name))
	}
	return r
}

// Join adds the connection to the room, creating the room if needed.
// Joining a room twice is a no-op.
func (b *Broker) Join(connID, name string) error {
	if name == "" {
		return ErrInvalidRoom
	}
	c, ok := b.reg.Get(connID)
	if !ok {
		return registry.ErrUnknownConnection
	}

	for {
		r := b.lookup(name, true)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		if _, member := r.members[connID]; member {
			r.mu.Unlock()
			return nil
		}
		if b.cfg.Capacity > 0 && !strings.HasPrefix(name, userPrefix) && len(r.members) >= b.cfg.Capacity {
			r.mu.Unlock()
			return ErrRoomFull
		}
		if !c.AddRoom(name) {
			empty := len(r.members) == 0
			r.mu.Unlock()
			if empty && b.cfg.AutoCleanup {
				b.cleanup(r)
			}
			return registry.ErrUnknownConnection
		}
		r.members[connID] = c
		r.mu.Unlock()
		return nil
	}
}

// Leave removes the membership and destroys the room once empty when
// auto-cleanup is enabled.
func (b *Broker) Leave(connID, name string) error {
	r := b.lookup(name, false)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if c, ok := r.members[connID]; ok {
		delete(r.members, connID)
		c.RemoveRoom(name)
	}
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty && b.cfg.AutoCleanup {
		b.cleanup(r)
	}
	return nil
}

func (b *Broker) cleanup(r *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead || len(r.members) > 0 {
		return
	}
	r.dead = true

	b.mu.Lock()
	if b.rooms[r.name] == r {
		delete(b.rooms, r.name)
		b.metrics.RoomDestroyed()
	}
	b.mu.Unlock()
	b.logger.Debug("room destroyed", zap.String("room", r.name))
}

// Publish fans msg out to local members and hands it to the remote bridge.
// The message is stamped with this instance as its origin.
func (b *Broker) Publish(ctx context.Context, name string, msg outbound.Message) int {
	msg.Target = name
	if msg.Origin == "" {
		msg.Origin = b.instanceID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.sched.Now()
	}
	b.metrics.Published(name)

	n := b.DeliverLocal(name, msg)

	b.mu.Lock()
	remote := b.remote
	b.mu.Unlock()
	if remote != nil {
		remote.PublishRemote(ctx, name, msg)
	}
	return n
}

// DeliverLocal fans msg out to this instance's members only and returns how
// many queues accepted it. Messages arriving from other instances enter here.
func (b *Broker) DeliverLocal(name string, msg outbound.Message) int {
	r := b.lookup(name, false)
	if r == nil {
		return 0
	}
	msg.Target = name

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.members {
		if c.Enqueue(msg) {
			n++
		}
	}
	return n
}

// SendToConn enqueues msg for one connection without a room.
func (b *Broker) SendToConn(connID string, msg outbound.Message) bool {
	c, ok := b.reg.Get(connID)
	if !ok {
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.sched.Now()
	}
	return c.Enqueue(msg)
}

// Members returns the local member connection ids of a room.
func (b *Broker) Members(name string) []string {
	r := b.lookup(name, false)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

func (b *Broker) HasRoom(name string) bool {
	return b.lookup(name, false) != nil
}

func (b *Broker) RoomCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}
