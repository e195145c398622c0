// Package outbound buffers messages between room fan-out and sockets.
//
// Each connection owns a Queue. Messages are delivered high priority first and
// in enqueue order within a priority. A message carrying a coalescing key
// replaces any pending message with the same target and key. When the queue
// grows past its ceiling the oldest lowest-priority message is dropped, so
// draft picks and chat are never discarded while score ticks are pending.
//
// The Pump drains every attached queue on a Scheduler interval and writes the
// frames to the connection's Sink.
package outbound

import (
	"container/list"
	"sync"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
)

type Queue struct {
	maxDepth int
	metrics  *metrics.Collector

	mu     sync.Mutex
	lanes  [High + 1]*list.List
	index  map[string]*list.Element
	size   int
	closed bool
}

// NewQueue creates a queue holding at most maxDepth messages (<= 0 means unbounded).
func NewQueue(maxDepth int, m *metrics.Collector) *Queue {
	q := &Queue{
		maxDepth: maxDepth,
		metrics:  m,
		index:    make(map[string]*list.Element),
	}
	for i := range q.lanes {
		q.lanes[i] = list.New()
	}
	return q
}

func coalesceKey(m Message) string {
	return m.Target + "\x00" + m.Key
}

// Enqueue adds msg. It returns false once the queue has been closed.
func (q *Queue) Enqueue(msg Message) bool {
	if msg.Priority < Low || msg.Priority > High {
		msg.Priority = Normal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if msg.Key != "" {
		k := coalesceKey(msg)
		if el, ok := q.index[k]; ok {
			old := el.Value.(Message)
			q.lanes[old.Priority].Remove(el)
			q.size--
			q.metrics.Coalesced()
		}
		q.index[k] = q.lanes[msg.Priority].PushBack(msg)
	} else {
		q.lanes[msg.Priority].PushBack(msg)
	}
	q.size++

	for q.maxDepth > 0 && q.size > q.maxDepth {
		q.evictOne()
	}
	return true
}

// evictOne drops the oldest message of the lowest non-empty priority.
// Must be called with q.mu held.
func (q *Queue) evictOne() {
	for p := Low; p <= High; p++ {
		lane := q.lanes[p]
		if el := lane.Front(); el != nil {
			q.remove(lane, el)
			q.metrics.Dropped(metrics.DropQueueFull, 1)
			return
		}
	}
}

// remove must be called with q.mu held.
func (q *Queue) remove(lane *list.List, el *list.Element) Message {
	msg := lane.Remove(el).(Message)
	q.size--
	if msg.Key != "" {
		k := coalesceKey(msg)
		if q.index[k] == el {
			delete(q.index, k)
		}
	}
	return msg
}

// Drain removes and returns up to max messages in delivery order
// (max <= 0 drains everything).
func (q *Queue) Drain(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}
	n := q.size
	if max > 0 && max < n {
		n = max
	}

	out := make([]Message, 0, n)
	for p := High; p >= Low && len(out) < n; p-- {
		lane := q.lanes[p]
		for len(out) < n {
			el := lane.Front()
			if el == nil {
				break
			}
			out = append(out, q.remove(lane, el))
		}
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Clear discards everything pending and returns how many messages were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clear()
}

// Close clears the queue and rejects further messages.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.clear()
}

func (q *Queue) clear() int {
	n := q.size
	for _, lane := range q.lanes {
		lane.Init()
	}
	clear(q.index)
	q.size = 0
	return n
}
