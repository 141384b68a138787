package api

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/uplink"
)

// Metrics is the overlay's Prometheus view: counters for merged, duplicate
// and dropped points and session reconnects, gauges for live channels and
// buffer sizes.
//
// Merged points arrive through OnMerge, which the daemon hangs off the
// synchronizer. The remaining series derive from synchronizer and supervisor
// counters, refreshed on a fixed cadence by Run; counters only ever see the
// positive delta since the previous refresh.
type Metrics struct {
	streams *stream.Synchronizer
	sup     *uplink.Supervisor

	merged       *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	reconnects   prometheus.Counter
	liveChannels prometheus.Gauge
	bufferPoints *prometheus.GaugeVec

	mu             sync.Mutex
	prev           map[string]stream.ChannelStats
	prevReconnects uint64
}

// NewMetrics registers the overlay metric set with reg. Pass
// prometheus.DefaultRegisterer in daemons and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer, streams *stream.Synchronizer, sup *uplink.Supervisor) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		streams: streams,
		sup:     sup,
		merged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "points_merged_total",
			Help:      "Points accepted into a channel buffer.",
		}, []string{"channel"}),
		duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "points_duplicate_total",
			Help:      "Points discarded as duplicate timestamps (first-seen kept).",
		}, []string{"channel"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "points_dropped_total",
			Help:      "Points discarded as invalid before merging.",
		}, []string{"channel"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "uplink_reconnects_total",
			Help:      "Upstream sessions re-established after a loss.",
		}),
		liveChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay",
			Name:      "channels_live",
			Help:      "Channels whose last point-bearing merge is within the staleness window.",
		}),
		bufferPoints: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "overlay",
			Name:      "channel_buffer_points",
			Help:      "Points currently held in a channel buffer.",
		}, []string{"channel"}),
		prev: make(map[string]stream.ChannelStats),
	}
}

// OnMerge records a point-bearing merge. Its signature matches
// stream.MergeObserver.
func (m *Metrics) OnMerge(channelID string, added []route.Point, total int) {
	m.merged.WithLabelValues(channelID).Add(float64(len(added)))
	m.bufferPoints.WithLabelValues(channelID).Set(float64(total))
}

// Refresh folds the current synchronizer and supervisor counters into the
// exported series.
func (m *Metrics) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := 0
	seen := make(map[string]bool)
	for _, id := range m.streams.Channels() {
		st, err := m.streams.Stats(id)
		if err != nil {
			// Unwatched between listing and stats.
			continue
		}
		seen[id] = true
		prev := m.prev[id]
		if d := st.Duplicates - prev.Duplicates; d > 0 {
			m.duplicates.WithLabelValues(id).Add(float64(d))
		}
		if d := st.Dropped - prev.Dropped; d > 0 {
			m.dropped.WithLabelValues(id).Add(float64(d))
		}
		m.bufferPoints.WithLabelValues(id).Set(float64(st.Points))
		if st.State == stream.Live {
			live++
		}
		m.prev[id] = st
	}

	// Unwatched channels stop existing as label values too.
	for id := range m.prev {
		if !seen[id] {
			m.merged.DeleteLabelValues(id)
			m.duplicates.DeleteLabelValues(id)
			m.dropped.DeleteLabelValues(id)
			m.bufferPoints.DeleteLabelValues(id)
			delete(m.prev, id)
		}
	}

	m.liveChannels.Set(float64(live))

	if cur := m.sup.Reconnects(); cur > m.prevReconnects {
		m.reconnects.Add(float64(cur - m.prevReconnects))
		m.prevReconnects = cur
	}
}

// Run refreshes the derived series on the given cadence until ctx is done.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-ctx.Done():
			return
		}
	}
}
