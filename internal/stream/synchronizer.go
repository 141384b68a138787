// Package stream keeps each live channel's point history ordered,
// de-duplicated and fresh across reconnects and replays.
//
// A channel is one route's stream, keyed by its opaque viewing credential.
// All history enters through the same idempotent merge, whether it arrives
// as the snapshot sent on (re)join or as an incremental batch, so replays,
// overlapping batches and re-snapshots never duplicate data. Each channel's
// buffer has a single writer at a time; distinct channels share nothing and
// proceed in parallel.
package stream

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

// DefaultStalenessWindow is how long a channel may go without a
// point-bearing merge before it reports Stale.
const DefaultStalenessWindow = 60 * time.Second

// ErrNoChannel reports a merge or query against a channel that was never
// watched (or has been unwatched). Calling merge on a non-existent channel
// is a contract violation; callers treat this as fatal.
var ErrNoChannel = fmt.Errorf("no such channel")

// Liveness is the data-freshness state of a channel. It is independent of
// transport state: a connected channel whose source stopped producing
// points goes Stale, and flips back to Live the instant a point merges.
type Liveness string

const (
	Live  Liveness = "live"
	Stale Liveness = "stale"
)

// MergeObserver is notified after every point-bearing merge with the points
// that were actually new, in ascending order, and the channel's new total.
// It runs outside the channel lock; implementations may merge further data.
type MergeObserver func(channelID string, added []route.Point, total int)

// Synchronizer owns the per-channel point buffers. Safe for concurrent use;
// mutations of one channel are serialized against each other while distinct
// channels proceed independently.
type Synchronizer struct {
	clock  timeutil.Clock
	window time.Duration

	// OnMerge, when set before the synchronizer starts receiving data, is
	// invoked after each merge that added points.
	OnMerge MergeObserver

	mu       sync.RWMutex
	channels map[string]*channel
}

type channel struct {
	mu         sync.Mutex
	removed    bool
	points     []route.Point
	lastMerge  time.Time
	haveMerge  bool
	duplicates uint64
	dropped    uint64
}

// New builds a Synchronizer on the given clock. A zero stalenessWindow
// selects DefaultStalenessWindow.
func New(clock timeutil.Clock, stalenessWindow time.Duration) *Synchronizer {
	if stalenessWindow <= 0 {
		stalenessWindow = DefaultStalenessWindow
	}
	return &Synchronizer{
		clock:    clock,
		window:   stalenessWindow,
		channels: make(map[string]*channel),
	}
}

// Watch creates the buffer for a channel. Watching an existing channel is a
// no-op.
func (s *Synchronizer) Watch(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelID]; !ok {
		s.channels[channelID] = &channel{}
	}
}

// Unwatch destroys a channel. Effective immediately for future events: any
// batch still queued or in flight for the channel is dropped, never merged.
func (s *Synchronizer) Unwatch(channelID string) {
	s.mu.Lock()
	ch, ok := s.channels[channelID]
	delete(s.channels, channelID)
	s.mu.Unlock()
	if !ok {
		return
	}

	// Mark under the channel lock so a concurrent merge that already holds
	// a reference observes the removal and drops its batch.
	ch.mu.Lock()
	ch.removed = true
	ch.points = nil
	ch.mu.Unlock()
}

// ApplySnapshot merges the full historical replay sent once per (re)join.
// Re-snapshots after reconnects are harmless: points already present are
// dropped as duplicates.
func (s *Synchronizer) ApplySnapshot(channelID string, points []route.Point) (added int, err error) {
	return s.apply(channelID, points, "snapshot")
}

// ApplyIncremental merges a live batch. Safe with overlapping or
// previously-seen data.
func (s *Synchronizer) ApplyIncremental(channelID string, batch []route.Point) (added int, err error) {
	return s.apply(channelID, batch, "incremental")
}

func (s *Synchronizer) apply(channelID string, batch []route.Point, kind string) (int, error) {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s merge into channel %q: %w", kind, channelID, ErrNoChannel)
	}

	clean, dropped := sanitize(batch)

	ch.mu.Lock()
	if ch.removed {
		ch.mu.Unlock()
		monitoring.Logf("channel %s: dropping %s of %d points for unwatched channel", channelID, kind, len(batch))
		return 0, nil
	}

	merged, addedPoints, duplicates := merge(ch.points, clean)
	ch.points = merged
	ch.duplicates += uint64(duplicates)
	ch.dropped += uint64(dropped)
	if len(addedPoints) > 0 {
		ch.lastMerge = s.clock.Now()
		ch.haveMerge = true
	}
	total := len(merged)
	observer := s.OnMerge
	ch.mu.Unlock()

	if dropped > 0 {
		monitoring.Logf("channel %s: dropped %d invalid points from %s batch of %d", channelID, dropped, kind, len(batch))
	}
	if duplicates > 0 {
		monitoring.Logf("channel %s: %s replayed %d duplicate timestamps (first-seen kept)", channelID, kind, duplicates)
	}
	if observer != nil && len(addedPoints) > 0 {
		observer(channelID, addedPoints, total)
	}
	return len(addedPoints), nil
}

// Points returns a copy of the channel's ordered buffer.
func (s *Synchronizer) Points(channelID string) ([]route.Point, error) {
	ch, err := s.channel(channelID)
	if err != nil {
		return nil, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]route.Point, len(ch.points))
	copy(out, ch.points)
	return out, nil
}

// State reports the channel's liveness as a pure function of elapsed time
// since its last point-bearing merge.
func (s *Synchronizer) State(channelID string) (Liveness, error) {
	ch, err := s.channel(channelID)
	if err != nil {
		return Stale, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return s.liveness(ch), nil
}

func (s *Synchronizer) liveness(ch *channel) Liveness {
	if !ch.haveMerge || s.clock.Since(ch.lastMerge) > s.window {
		return Stale
	}
	return Live
}

// ChannelStats is the monitoring view of one channel.
type ChannelStats struct {
	ChannelID   string     `json:"channelId"`
	Points      int        `json:"points"`
	Duplicates  uint64     `json:"duplicatePoints"`
	Dropped     uint64     `json:"droppedPoints"`
	State       Liveness   `json:"state"`
	LastMergeAt *time.Time `json:"lastMergeAt,omitempty"`
}

// Stats returns the monitoring counters for one channel.
func (s *Synchronizer) Stats(channelID string) (ChannelStats, error) {
	ch, err := s.channel(channelID)
	if err != nil {
		return ChannelStats{}, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	st := ChannelStats{
		ChannelID:  channelID,
		Points:     len(ch.points),
		Duplicates: ch.duplicates,
		Dropped:    ch.dropped,
		State:      s.liveness(ch),
	}
	if ch.haveMerge {
		t := ch.lastMerge
		st.LastMergeAt = &t
	}
	return st, nil
}

// Channels lists the watched channel ids in stable order.
func (s *Synchronizer) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Synchronizer) channel(channelID string) (*channel, error) {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, ErrNoChannel)
	}
	return ch, nil
}
