// Package scheduler runs one-shot and periodic callbacks against an injectable
// Clock. Heartbeats, draft countdowns, queue drains and cleanup sweeps all go
// through it so tests can drive them with a ManualClock instead of sleeping.
package scheduler

import (
	"sync"
	"time"
)

type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	stopped bool
}

// Task is a handle to a scheduled callback.
type Task struct {
	s *Scheduler

	mu        sync.Mutex
	timer     Timer
	cancelled bool
}

func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock: clock,
		tasks: make(map[*Task]struct{}),
	}
}

func (s *Scheduler) Now() time.Time { return s.clock.Now() }

func (s *Scheduler) Clock() Clock { return s.clock }

// After runs fn once after d.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{s: s}
	if !s.track(t) {
		t.cancelled = true
		return t
	}

	t.mu.Lock()
	t.timer = s.clock.AfterFunc(d, func() {
		if !t.finish() {
			return
		}
		fn()
	})
	t.mu.Unlock()
	return t
}

// Every runs fn every interval until cancelled. Deadlines are computed from
// the task's start time, not from when the previous run finished, so a slow
// callback or a late timer never shifts later runs. Runs that are missed
// entirely are skipped rather than replayed.
func (s *Scheduler) Every(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		panic("scheduler: Every requires a positive interval")
	}
	t := &Task{s: s}
	if !s.track(t) {
		t.cancelled = true
		return t
	}

	next := s.clock.Now().Add(interval)
	var arm func()
	arm = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.cancelled {
			return
		}
		t.timer = s.clock.AfterFunc(next.Sub(s.clock.Now()), func() {
			if t.Cancelled() {
				return
			}
			fn()

			now := s.clock.Now()
			next = next.Add(interval)
			for !next.After(now) {
				next = next.Add(interval)
			}
			arm()
		})
	}
	arm()
	return t
}

// Stop cancels every pending task. Tasks scheduled afterwards never run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

// Len reports the number of live tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) track(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.tasks[t] = struct{}{}
	return true
}

func (s *Scheduler) untrack(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}

// Cancel stops the task. It reports false if the task had already run (for
// one-shot tasks) or was already cancelled.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	timer := t.timer
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	t.s.untrack(t)
	return true
}

func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// finish marks a one-shot task as done. Returns false if it was cancelled first.
func (t *Task) finish() bool {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.mu.Unlock()
	t.s.untrack(t)
	return true
}
