package outbound

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

// ErrSlowConsumer is returned by sinks whose write buffer is full.
var ErrSlowConsumer = errors.New("slow consumer")

// Sink accepts encoded frames for one socket. Send must not block.
type Sink interface {
	Send(frame []byte) error
}

type target struct {
	queue *Queue
	sink  Sink
}

type Pump struct {
	batch   int
	logger  *zap.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	targets   map[string]target
	onFailure func(id string, err error)

	task *scheduler.Task
}

// NewPump creates a pump that writes at most batch frames per connection per tick.
func NewPump(batch int, logger *zap.Logger, m *metrics.Collector) *Pump {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pump{
		batch:   batch,
		logger:  logger.Named("pump"),
		metrics: m,
		targets: make(map[string]target),
	}
}

// OnFailure registers the callback invoked after a failed write. The failed
// connection's pending messages have already been dropped when it runs.
func (p *Pump) OnFailure(fn func(id string, err error)) {
	p.mu.Lock()
	p.onFailure = fn
	p.mu.Unlock()
}

func (p *Pump) Attach(id string, q *Queue, sink Sink) {
	p.mu.Lock()
	p.targets[id] = target{queue: q, sink: sink}
	p.mu.Unlock()
}

func (p *Pump) Detach(id string) {
	p.mu.Lock()
	delete(p.targets, id)
	p.mu.Unlock()
}

// Start drains on every interval until Stop.
func (p *Pump) Start(s *scheduler.Scheduler, interval time.Duration) {
	p.task = s.Every(interval, p.Flush)
}

func (p *Pump) Stop() {
	p.task.Cancel()
}

// Flush runs one drain pass over every attached queue. A write failure drops
// that connection's pending messages only; the other connections still drain.
func (p *Pump) Flush() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.targets))
	snapshot := make([]target, 0, len(p.targets))
	for id, t := range p.targets {
		ids = append(ids, id)
		snapshot = append(snapshot, t)
	}
	onFailure := p.onFailure
	p.mu.Unlock()

	for i, t := range snapshot {
		if err := p.drainOne(t); err != nil {
			p.logger.Warn("dropping connection output",
				zap.String("conn_id", ids[i]),
				zap.Error(err),
			)
			if onFailure != nil {
				onFailure(ids[i], err)
			}
		}
	}
}

func (p *Pump) drainOne(t target) error {
	msgs := t.queue.Drain(p.batch)
	delivered := 0
	defer func() { p.metrics.Delivered(delivered) }()

	for i, msg := range msgs {
		frame, err := msg.Encode()
		if err != nil {
			p.logger.Error("encode frame", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		if err := t.sink.Send(frame); err != nil {
			dropped := len(msgs) - i + t.queue.Clear()
			p.metrics.Dropped(metrics.DropWriteFailed, dropped)
			return err
		}
		delivered++
	}
	return nil
}
