package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/metrics"
	facettest "github.com/blockberries/facetroute/testing"
	"github.com/blockberries/facetroute/types"
)

func TestCollector_TracksTransitions(t *testing.T) {
	c := metrics.NewCollector("")
	h := facettest.NewHarness(t, time.Hour,
		dispatcher.WithObserver(c),
		dispatcher.WithRecorder(c),
	)
	c.TrackLiveRoutes(h.Dispatcher().Len)

	h.Rollout(facettest.MakeRoutes(3)...)

	// Rejected commit: wrong epoch.
	err := h.Dispatcher().Commit(facettest.GovernorCtx(), facettest.Root(9), 7)
	require.ErrorIs(t, err, facetroute.ErrBadEpoch)

	h.Commit(facettest.Root(2), 2)

	reg := c.Registry()
	assert.Equal(t, 1.0, gauge(t, reg, "facetroute_dispatcher_active_epoch"))
	assert.Equal(t, 2.0, gauge(t, reg, "facetroute_dispatcher_pending_epoch"))
	assert.Equal(t, 3.0, gauge(t, reg, "facetroute_dispatcher_live_routes"))
	assert.Equal(t, 0.0, gauge(t, reg, "facetroute_dispatcher_frozen"))

	require.NoError(t, h.Dispatcher().Freeze(facettest.GuardianCtx()))
	assert.Equal(t, 1.0, gauge(t, reg, "facetroute_dispatcher_frozen"))

	body := scrape(t, c)
	assert.Contains(t, body, `facetroute_dispatcher_operations_total{op="commit",outcome="ok"} 2`)
	assert.Contains(t, body, `facetroute_dispatcher_operations_total{op="commit",outcome="BadEpoch"} 1`)
	assert.Contains(t, body, `facetroute_dispatcher_operations_total{op="apply_route",outcome="ok"} 3`)
	assert.Contains(t, body, `facetroute_dispatcher_events_total{kind="route_applied"} 3`)
	assert.Contains(t, body, `facetroute_dispatcher_events_total{kind="frozen"} 1`)
	assert.Contains(t, body, "facetroute_dispatcher_operation_duration_seconds_bucket")
}

func TestCollector_Sync(t *testing.T) {
	c := metrics.NewCollector("test")
	c.Sync(types.State{
		ActiveEpoch:  4,
		PendingRoot:  facettest.Root(5),
		PendingEpoch: 5,
		Frozen:       true,
	})
	reg := c.Registry()
	assert.Equal(t, 4.0, gauge(t, reg, "test_dispatcher_active_epoch"))
	assert.Equal(t, 5.0, gauge(t, reg, "test_dispatcher_pending_epoch"))
	assert.Equal(t, 1.0, gauge(t, reg, "test_dispatcher_frozen"))

	c.Sync(types.State{ActiveEpoch: 4})
	assert.Equal(t, 0.0, gauge(t, reg, "test_dispatcher_pending_epoch"))
	assert.Equal(t, 0.0, gauge(t, reg, "test_dispatcher_frozen"))
}

func TestCollector_TrackLiveRoutesOnce(t *testing.T) {
	c := metrics.NewCollector("")
	c.TrackLiveRoutes(func() int { return 7 })
	assert.NotPanics(t, func() { c.TrackLiveRoutes(func() int { return 9 }) })
	assert.Equal(t, 7.0, gauge(t, c.Registry(), "facetroute_dispatcher_live_routes"))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a := metrics.NewCollector("")
	b := metrics.NewCollector("")
	a.ObserveOp(dispatcher.OpFreeze, "ok", time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(a.Registry(), "facetroute_dispatcher_operations_total"))
	assert.Equal(t, 0, testutil.CollectAndCount(b.Registry(), "facetroute_dispatcher_operations_total"))
}

func gauge(t *testing.T, reg prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		return mf.GetMetric()[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func scrape(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
