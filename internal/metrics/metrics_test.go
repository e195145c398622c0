package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.Published("draft:42")
	c.Published("draft:43")
	c.Published("matchup:7")
	c.Published("weird")
	c.Dropped(DropQueueFull, 3)
	c.Dropped(DropQueueFull, 0)
	c.PickCommitted("auto", 90*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.published.WithLabelValues("draft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published.WithLabelValues("matchup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published.WithLabelValues("other")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dropped.WithLabelValues(DropQueueFull)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.picks.WithLabelValues("auto")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ConnectionOpened()
		c.Published("league:1")
		c.Dropped(DropWriteFailed, 1)
		c.PickCommitted("manual", time.Second)
		c.FrameSent("heartbeat")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.RateLimited()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "fantasy_realtime_ratelimit_rejected_total 1"))
}
