// Package ratelimit implements per-identifier admission control with fixed
// one-second and one-minute windows.
package ratelimit

import (
	"sync"
	"time"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

type Config struct {
	PerSecond     int // <= 0 disables the per-second window
	PerMinute     int // <= 0 disables the per-minute window
	SweepInterval time.Duration
}

// entry tracks one identifier's counters; a rejected event is not counted.
type entry struct {
	secondCount int
	secondReset time.Time
	minuteCount int
	minuteReset time.Time
}

type Limiter struct {
	cfg     Config
	clock   scheduler.Clock
	metrics *metrics.Collector

	mu      sync.Mutex
	entries map[string]*entry

	sweep *scheduler.Task
}

// New creates a limiter. When SweepInterval is positive, expired entries are
// deleted on that interval so memory tracks only recently active identifiers.
func New(cfg Config, sched *scheduler.Scheduler, m *metrics.Collector) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		clock:   sched.Clock(),
		metrics: m,
		entries: make(map[string]*entry),
	}
	if cfg.SweepInterval > 0 {
		l.sweep = sched.Every(cfg.SweepInterval, func() { l.Sweep() })
	}
	return l
}

// Allow reports whether one more event from id is admitted.
func (l *Limiter) Allow(id string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		e = &entry{}
		l.entries[id] = e
	}
	if !now.Before(e.secondReset) {
		e.secondCount = 0
		e.secondReset = now.Add(time.Second)
	}
	if !now.Before(e.minuteReset) {
		e.minuteCount = 0
		e.minuteReset = now.Add(time.Minute)
	}

	if l.cfg.PerSecond > 0 && e.secondCount >= l.cfg.PerSecond {
		l.metrics.RateLimited()
		return false
	}
	if l.cfg.PerMinute > 0 && e.minuteCount >= l.cfg.PerMinute {
		l.metrics.RateLimited()
		return false
	}

	e.secondCount++
	e.minuteCount++
	return true
}

// Sweep deletes entries whose windows have both reset and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if !now.Before(e.secondReset) && !now.Before(e.minuteReset) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Forget drops an identifier's counters, e.g. when its connection closes.
func (l *Limiter) Forget(id string) {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) Close() {
	l.sweep.Cancel()
}
