package outbound

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
)

var t0 = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func msg(t *testing.T, typ string, p Priority) Message {
	t.Helper()
	m, err := New(typ, map[string]string{"type": typ}, p, t0)
	require.NoError(t, err)
	m.Target = "draft:1"
	return m
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func TestQueue_DrainsByPriorityThenFIFO(t *testing.T) {
	q := NewQueue(0, nil)

	q.Enqueue(msg(t, "low-1", Low))
	q.Enqueue(msg(t, "normal-1", Normal))
	q.Enqueue(msg(t, "high-1", High))
	q.Enqueue(msg(t, "low-2", Low))
	q.Enqueue(msg(t, "high-2", High))

	got := q.Drain(0)
	assert.Equal(t, []string{"high-1", "high-2", "normal-1", "low-1", "low-2"}, types(got))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainIsBounded(t *testing.T) {
	q := NewQueue(0, nil)
	for i := 0; i < 5; i++ {
		q.Enqueue(msg(t, "n", Normal))
	}

	assert.Len(t, q.Drain(2), 2)
	assert.Equal(t, 3, q.Len())
	assert.Len(t, q.Drain(10), 3)
	assert.Nil(t, q.Drain(10))
}

func TestQueue_CoalescingKeepsMostRecent(t *testing.T) {
	m := metrics.New()
	q := NewQueue(0, m)

	first := msg(t, "scoring:update", Low).Coalescing("score")
	first.Payload = []byte(`{"home":7}`)
	other := msg(t, "scoring:update", Low).Coalescing("score")
	other.Target = "matchup:2"
	chat := msg(t, "draft:chat", High)
	second := msg(t, "scoring:update", Low).Coalescing("score")
	second.Payload = []byte(`{"home":14}`)

	q.Enqueue(first)
	q.Enqueue(other)
	q.Enqueue(chat)
	q.Enqueue(second)

	require.Equal(t, 3, q.Len())
	got := q.Drain(0)
	require.Len(t, got, 3)
	assert.Equal(t, "draft:chat", got[0].Type)
	assert.Equal(t, "matchup:2", got[1].Target)
	assert.Equal(t, second.ID, got[2].ID)
	assert.JSONEq(t, `{"home":14}`, string(got[2].Payload))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CoalescedTotal()))
}

func TestQueue_CeilingDropsLowBeforeHigh(t *testing.T) {
	m := metrics.New()
	q := NewQueue(3, m)

	q.Enqueue(msg(t, "pick-1", High))
	q.Enqueue(msg(t, "score-1", Low))
	q.Enqueue(msg(t, "score-2", Low))
	q.Enqueue(msg(t, "chat-1", High))
	q.Enqueue(msg(t, "pick-2", High))

	got := q.Drain(0)
	assert.Equal(t, []string{"pick-1", "chat-1", "pick-2"}, types(got))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DroppedTotal(metrics.DropQueueFull)))
}

func TestQueue_CeilingEvictsOldestWithinPriority(t *testing.T) {
	q := NewQueue(2, nil)

	q.Enqueue(msg(t, "n-1", Normal))
	q.Enqueue(msg(t, "n-2", Normal))
	q.Enqueue(msg(t, "n-3", Normal))

	assert.Equal(t, []string{"n-2", "n-3"}, types(q.Drain(0)))
}

func TestQueue_EvictedCoalescedEntryFreesKey(t *testing.T) {
	q := NewQueue(1, nil)

	q.Enqueue(msg(t, "timer-1", Low).Coalescing("timer"))
	q.Enqueue(msg(t, "pick", High)) // evicts timer-1
	q.Enqueue(msg(t, "timer-2", Low).Coalescing("timer"))

	// timer-2 itself is the lowest priority entry and is evicted next
	assert.Equal(t, []string{"pick"}, types(q.Drain(0)))
}

func TestQueue_CloseRejectsAndDrops(t *testing.T) {
	q := NewQueue(0, nil)
	q.Enqueue(msg(t, "a", Normal))
	q.Enqueue(msg(t, "b", Normal))

	assert.Equal(t, 2, q.Close())
	assert.False(t, q.Enqueue(msg(t, "c", High)))
	assert.Equal(t, 0, q.Len())
}
