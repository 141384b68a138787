package pointlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

// Memory is an in-process Store for tests and ephemeral relays. Semantics
// match the SQLite store: idempotent on capture timestamp, ordered loads,
// activity advancing only when a channel gains points.
type Memory struct {
	clock timeutil.Clock

	mu       sync.Mutex
	points   map[string][]route.Point
	lastSeen map[string]time.Time
}

func NewMemory(clock timeutil.Clock) *Memory {
	return &Memory{
		clock:    clock,
		points:   make(map[string][]route.Point),
		lastSeen: make(map[string]time.Time),
	}
}

func (m *Memory) Append(_ context.Context, channelID string, points []route.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	have := m.points[channelID]
	seen := make(map[int64]bool, len(have))
	for _, p := range have {
		seen[p.TimestampMs] = true
	}

	added := 0
	for _, p := range points {
		if !p.Valid() || !p.Finite() || seen[p.TimestampMs] {
			continue
		}
		seen[p.TimestampMs] = true
		have = append(have, p)
		added++
	}
	if added == 0 {
		return nil
	}

	sort.SliceStable(have, func(i, j int) bool { return have[i].TimestampMs < have[j].TimestampMs })
	m.points[channelID] = have
	m.lastSeen[channelID] = m.clock.Now()
	return nil
}

func (m *Memory) Load(_ context.Context, channelID string) ([]route.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]route.Point(nil), m.points[channelID]...), nil
}

func (m *Memory) Channels(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := make([]string, 0, len(m.points))
	for id := range m.points {
		channels = append(channels, id)
	}
	sort.Strings(channels)
	return channels, nil
}

func (m *Memory) LastActivity(_ context.Context, channelID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen[channelID], nil
}

func (m *Memory) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, seen := range m.lastSeen {
		if seen.Before(cutoff) {
			delete(m.points, id)
			delete(m.lastSeen, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) Close() error {
	return nil
}
