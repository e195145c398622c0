// Package notify keeps one one-way event stream per user on this instance.
// Streams are not replicated across instances: a notification only reaches a
// user whose stream is open on the instance that sends it.
package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

var ErrStreamClosed = errors.New("stream closed")

// Writer emits one named frame to the client.
type Writer interface {
	WriteEvent(event string, data []byte) error
}

// Frame is the JSON body of every stream event.
type Frame struct {
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Config struct {
	HeartbeatInterval time.Duration
}

// Stream is one user's open handle. Done is closed when the stream is
// replaced by a newer one, fails a write, or is closed.
type Stream struct {
	ID     string
	UserID string

	w    Writer
	mu   sync.Mutex
	dead bool
	done chan struct{}
}

func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) write(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrStreamClosed
	}
	return s.w.WriteEvent(event, data)
}

func (s *Stream) kill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return false
	}
	s.dead = true
	close(s.done)
	return true
}

type Manager struct {
	mu      sync.Mutex
	streams map[string]*Stream

	sched     *scheduler.Scheduler
	heartbeat *scheduler.Task
	logger    *zap.Logger
	metrics   *metrics.Collector
}

func NewManager(cfg Config, sched *scheduler.Scheduler, logger *zap.Logger, m *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := &Manager{
		streams: make(map[string]*Stream),
		sched:   sched,
		logger:  logger.Named("notify"),
		metrics: m,
	}
	if cfg.HeartbeatInterval > 0 {
		mgr.heartbeat = sched.Every(cfg.HeartbeatInterval, mgr.Heartbeat)
	}
	return mgr
}

// Open registers w as userID's stream and writes the connected frame. An
// older stream for the same user is closed.
func (m *Manager) Open(userID string, w Writer) (*Stream, error) {
	s := &Stream{
		ID:     uuid.NewString(),
		UserID: userID,
		w:      w,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	old := m.streams[userID]
	m.streams[userID] = s
	m.mu.Unlock()

	if old != nil && old.kill() {
		m.metrics.StreamClosed()
		m.logger.Debug("stream replaced", zap.String("user_id", userID), zap.String("stream_id", old.ID))
	}
	m.metrics.StreamOpened()

	if err := m.emit(s, types.StreamConnected, map[string]string{"user_id": userID, "stream_id": s.ID}); err != nil {
		return nil, err
	}
	m.logger.Debug("stream opened", zap.String("user_id", userID), zap.String("stream_id", s.ID))
	return s, nil
}

// Close removes s if it is still the user's current stream.
func (m *Manager) Close(s *Stream) {
	m.mu.Lock()
	if m.streams[s.UserID] == s {
		delete(m.streams, s.UserID)
	}
	m.mu.Unlock()

	if s.kill() {
		m.metrics.StreamClosed()
		m.logger.Debug("stream closed", zap.String("user_id", s.UserID), zap.String("stream_id", s.ID))
	}
}

// Send writes a notification frame to userID's stream. A user without an
// open stream is not an error; nothing is written.
func (m *Manager) Send(userID string, notification any) error {
	m.mu.Lock()
	s := m.streams[userID]
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	err := m.emit(s, types.StreamNotification, notification)
	if errors.Is(err, ErrStreamClosed) {
		return nil
	}
	return err
}

// Heartbeat writes a heartbeat frame to every open stream.
func (m *Manager) Heartbeat() {
	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		_ = m.emit(s, types.StreamHeartbeat, nil)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Stop ends the heartbeat and closes every stream.
func (m *Manager) Stop() {
	m.heartbeat.Cancel()

	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[string]*Stream)
	m.mu.Unlock()

	for _, s := range streams {
		if s.kill() {
			m.metrics.StreamClosed()
		}
	}
}

// emit encodes and writes one frame. A failed write means the client went
// away, so the stream is dropped.
func (m *Manager) emit(s *Stream, event string, payload any) error {
	frame := Frame{Timestamp: m.sched.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		frame.Payload = raw
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	if err := s.write(event, data); err != nil {
		if !errors.Is(err, ErrStreamClosed) {
			m.logger.Debug("stream write failed", zap.String("user_id", s.UserID), zap.Error(err))
			m.Close(s)
		}
		return err
	}
	m.metrics.FrameSent(event)
	return nil
}
