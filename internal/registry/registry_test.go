package registry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
)

type nopSink struct{}

func (nopSink) Send([]byte) error { return nil }

func newRegistry(t *testing.T, cfg Config) (*Registry, *scheduler.ManualClock, *metrics.Collector) {
	t.Helper()
	clock := scheduler.NewManualClock(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	m := metrics.New()
	sched := scheduler.New(clock)
	pump := outbound.NewPump(16, zaptest.NewLogger(t), m)
	r := New(cfg, sched, pump, zaptest.NewLogger(t), m)
	t.Cleanup(r.Close)
	return r, clock, m
}

func TestRegister_GetAndUserConns(t *testing.T) {
	r, _, m := newRegistry(t, Config{QueueDepth: 8})

	a := r.Register("user-1", nopSink{}, nil)
	b := r.Register("user-1", nopSink{}, nil)
	c := r.Register("user-2", nopSink{}, nil)

	require.NotEqual(t, a.ID, b.ID)
	got, ok := r.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, "user-2", got.UserID)
	assert.Len(t, r.userConns("user-1"), 2)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ConnectionsActive()))
}

func TestUnregister_ClosesOnceAndDropsQueue(t *testing.T) {
	r, _, m := newRegistry(t, Config{QueueDepth: 8})

	closed := 0
	c := r.Register("user-1", nopSink{}, func() { closed++ })
	msg, err := outbound.New("draft:chat", nil, outbound.High, time.Now())
	require.NoError(t, err)
	c.Enqueue(msg)
	c.Enqueue(msg)

	_, err = r.Unregister(c.ID)
	require.NoError(t, err)
	_, err = r.Unregister(c.ID)
	assert.ErrorIs(t, err, ErrUnknownConnection)

	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.userConns("user-1"))
	assert.False(t, c.Enqueue(msg), "queue closed after unregister")
	assert.True(t, c.Closed())
	assert.False(t, c.AddRoom("league:1"), "closed connections take no rooms")
	assert.Empty(t, c.Rooms())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DroppedTotal(metrics.DropDisconnected)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionsActive()))
}

func TestConnection_Rooms(t *testing.T) {
	r, _, _ := newRegistry(t, Config{})
	c := r.Register("user-1", nil, nil)

	require.True(t, c.AddRoom("league:1"))
	require.True(t, c.AddRoom("draft:9"))
	assert.Equal(t, []string{"draft:9", "league:1"}, c.Rooms())
	assert.True(t, c.InRoom("draft:9"))

	c.RemoveRoom("draft:9")
	assert.False(t, c.InRoom("draft:9"))
}

func TestIdleSweep_DisconnectsInactiveConnections(t *testing.T) {
	r, clock, _ := newRegistry(t, Config{IdleTimeout: time.Minute, SweepInterval: 10 * time.Second})

	var idle []string
	r.OnIdle(func(id string) {
		idle = append(idle, id)
		_, _ = r.Unregister(id)
	})

	quiet := r.Register("user-1", nil, nil)
	chatty := r.Register("user-2", nil, nil)

	for i := 0; i < 7; i++ {
		clock.Advance(10 * time.Second)
		r.Touch(chatty.ID)
	}

	assert.Equal(t, []string{quiet.ID}, idle)
	_, ok := r.Get(chatty.ID)
	assert.True(t, ok)
}
