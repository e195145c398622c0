// Package pubsub replicates room publishes across server instances through an
// external broker. Every message carries the id of the instance that first
// published it; an instance drops its own messages when the broker echoes
// them back and never re-publishes what it receives.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

var ErrBrokerDown = errors.New("broker unavailable")

// Broker is the external message bus. Channels are named after rooms.
type Broker interface {
	Publish(ctx context.Context, room string, data []byte) error
	// Subscribe delivers every message on every room channel to handler
	// until the returned function is called.
	Subscribe(ctx context.Context, handler func(room string, data []byte)) (func() error, error)
	Close() error
}

// Local is the local-only fan-out path of the room broker.
type Local interface {
	DeliverLocal(room string, msg outbound.Message) int
}

type Config struct {
	InstanceID     string
	RetryInterval  time.Duration
	PublishTimeout time.Duration
	MaxFailures    uint32
	ResetTimeout   time.Duration
}

type Bridge struct {
	cfg     Config
	broker  Broker
	local   Local
	sched   *scheduler.Scheduler
	logger  *zap.Logger
	metrics *metrics.Collector
	cb      *gobreaker.CircuitBreaker

	mu     sync.Mutex
	unsub  func() error
	retry  *scheduler.Task
	closed bool
}

func NewBridge(cfg Config, broker Broker, local Local, sched *scheduler.Scheduler, logger *zap.Logger, m *metrics.Collector) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pubsub").With(zap.String("instance_id", cfg.InstanceID))
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}

	b := &Bridge{
		cfg:     cfg,
		broker:  broker,
		local:   local,
		sched:   sched,
		logger:  logger,
		metrics: m,
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "broker-publish",
		Timeout: cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return b
}

// Start subscribes to the broker. A failed subscription is not fatal: the
// instance runs local-only and retries every RetryInterval.
func (b *Bridge) Start(ctx context.Context) {
	if b.subscribe(ctx) {
		return
	}
	if b.cfg.RetryInterval <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.retry = b.sched.Every(b.cfg.RetryInterval, func() {
		if b.subscribe(ctx) {
			b.mu.Lock()
			b.retry.Cancel()
			b.mu.Unlock()
		}
	})
}

func (b *Bridge) subscribe(ctx context.Context) bool {
	b.mu.Lock()
	if b.closed || b.unsub != nil {
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()

	unsub, err := b.broker.Subscribe(ctx, b.OnRemoteMessage)
	if err != nil {
		b.logger.Warn("broker subscribe failed; running local-only", zap.Error(err))
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = unsub()
		return true
	}
	b.unsub = unsub
	b.logger.Info("subscribed to broker")
	return true
}

// Subscribed reports whether remote messages are currently being received.
func (b *Bridge) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsub != nil
}

// PublishRemote sends msg to the room's broker channel. Failures are logged
// and counted; local fan-out has already happened and is not affected.
func (b *Bridge) PublishRemote(ctx context.Context, room string, msg outbound.Message) {
	if msg.Origin == "" {
		msg.Origin = b.cfg.InstanceID
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encode remote message", zap.String("room", room), zap.Error(err))
		return
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		pctx := ctx
		if b.cfg.PublishTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, b.cfg.PublishTimeout)
			defer cancel()
		}
		return nil, b.broker.Publish(pctx, room, data)
	})
	if err != nil {
		b.metrics.BridgePublishFailed()
		b.logger.Warn("remote publish failed; delivered local-only",
			zap.String("room", room),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}

// OnRemoteMessage handles one message from the broker. Messages this
// instance originated are dropped; everything else goes to local fan-out only.
func (b *Bridge) OnRemoteMessage(room string, data []byte) {
	var msg outbound.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Warn("discarding malformed broker message", zap.String("room", room), zap.Error(err))
		return
	}
	if msg.Origin == b.cfg.InstanceID {
		b.metrics.BridgeEchoDropped()
		return
	}
	b.metrics.BridgeReceived()
	b.local.DeliverLocal(room, msg)
}

// Close unsubscribes and stops retrying. The broker itself is closed by its owner.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	unsub := b.unsub
	b.unsub = nil
	b.retry.Cancel()
	b.mu.Unlock()

	if unsub != nil {
		return unsub()
	}
	return nil
}
