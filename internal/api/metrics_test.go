package api

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/timeutil"
	"github.com/wayline-gg/wayline/internal/uplink"
)

func newTestMetrics(t *testing.T) (*Metrics, *stream.Synchronizer, *uplink.Supervisor, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	streams := stream.New(clock, 0)
	sup := uplink.NewSupervisor(nil, streams, clock)
	m := NewMetrics(prometheus.NewRegistry(), streams, sup)
	return m, streams, sup, clock
}

func TestMetricsOnMerge(t *testing.T) {
	m, _, _, _ := newTestMetrics(t)

	m.OnMerge("view-a", []route.Point{apiPoint(10, 100, 100), apiPoint(20, 110, 100)}, 2)
	m.OnMerge("view-a", []route.Point{apiPoint(30, 120, 100)}, 3)

	if got := testutil.ToFloat64(m.merged.WithLabelValues("view-a")); got != 3 {
		t.Errorf("merged counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.bufferPoints.WithLabelValues("view-a")); got != 3 {
		t.Errorf("buffer gauge = %v, want 3", got)
	}
}

func TestMetricsRefresh(t *testing.T) {
	m, streams, sup, clock := newTestMetrics(t)
	sup.Watch("view-a")

	// One clean batch, then a batch carrying a duplicate and an invalid
	// sentinel the synchronizer drops.
	if _, err := streams.ApplyIncremental("view-a", []route.Point{apiPoint(10, 100, 100), apiPoint(20, 110, 100)}); err != nil {
		t.Fatalf("ApplyIncremental: %v", err)
	}
	if _, err := streams.ApplyIncremental("view-a", []route.Point{apiPoint(20, 110, 100), {TimestampMs: 99}}); err != nil {
		t.Fatalf("ApplyIncremental: %v", err)
	}

	m.Refresh()
	if got := testutil.ToFloat64(m.duplicates.WithLabelValues("view-a")); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("view-a")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bufferPoints.WithLabelValues("view-a")); got != 2 {
		t.Errorf("buffer gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.liveChannels); got != 1 {
		t.Errorf("live channels = %v, want 1", got)
	}

	// Refreshing against unchanged cumulative stats must not re-count.
	m.Refresh()
	if got := testutil.ToFloat64(m.duplicates.WithLabelValues("view-a")); got != 1 {
		t.Errorf("duplicates after idle refresh = %v, want 1 still", got)
	}

	clock.Advance(2 * time.Minute)
	m.Refresh()
	if got := testutil.ToFloat64(m.liveChannels); got != 0 {
		t.Errorf("live channels after idle window = %v, want 0", got)
	}

	// Unwatching retires the channel's label values.
	sup.Unwatch("view-a")
	m.Refresh()
	if n := testutil.CollectAndCount(m.bufferPoints); n != 0 {
		t.Errorf("buffer series after unwatch = %d, want 0", n)
	}
	if n := testutil.CollectAndCount(m.duplicates); n != 0 {
		t.Errorf("duplicate series after unwatch = %d, want 0", n)
	}
}
