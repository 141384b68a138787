package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/pointlog"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

// sendBuffer is each subscriber's outbound queue. A consumer that falls
// this far behind gets evicted rather than stalling the hub.
const sendBuffer = 256

// Hub fans ingested batches out to stream subscribers. Per-channel history
// lives in a stream.Synchronizer, so snapshots served on join carry the
// same ordered, de-duplicated view the overlay would build itself, and a
// re-pushed batch broadcasts nothing.
type Hub struct {
	resolver KeyResolver
	store    pointlog.Store // nil means no persistence
	clock    timeutil.Clock
	sync     *stream.Synchronizer

	mu      sync.Mutex
	members map[string]map[*subscriber]bool // view key -> joined subscribers
}

// subscriber is one connected stream consumer. The transport side drains
// send; the hub closes it exactly once on eviction or unsubscribe.
type subscriber struct {
	id     string
	send   chan ServerMessage
	joined map[string]bool // guarded by hub.mu
	gone   bool            // guarded by hub.mu
}

func NewHub(resolver KeyResolver, store pointlog.Store, clock timeutil.Clock) *Hub {
	h := &Hub{
		resolver: resolver,
		store:    store,
		clock:    clock,
		sync:     stream.New(clock, 0),
		members:  make(map[string]map[*subscriber]bool),
	}
	h.sync.OnMerge = h.onMerge
	for _, ch := range resolver.Channels() {
		h.sync.Watch(ch.ViewKey)
		h.members[ch.ViewKey] = make(map[*subscriber]bool)
	}
	return h
}

// Start replays persisted history into the channel buffers so snapshots
// served after a restart are complete. Merge idempotence makes replaying
// on top of already-ingested data harmless.
func (h *Hub) Start(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	for _, ch := range h.resolver.Channels() {
		points, err := h.store.Load(ctx, ch.ViewKey)
		if err != nil {
			return fmt.Errorf("failed to replay channel %q: %w", ch.Name, err)
		}
		if len(points) == 0 {
			continue
		}
		added, err := h.sync.ApplySnapshot(ch.ViewKey, points)
		if err != nil {
			return fmt.Errorf("failed to replay channel %q: %w", ch.Name, err)
		}
		monitoring.Logf("relay: replayed %d point(s) into channel %s", added, ch.Name)
	}
	return nil
}

// Ingest authenticates a push and merges the batch. Accepted counts newly
// merged points; dropped counts points discarded as invalid. A failing
// point log is logged and skipped, never a reason to refuse data.
func (h *Hub) Ingest(ctx context.Context, pushKey string, points []route.Point) (accepted, dropped int, err error) {
	ch, err := h.resolver.ByPushKey(pushKey)
	if err != nil {
		return 0, 0, err
	}

	now := h.clock.Now().UTC()
	stamped := make([]route.Point, len(points))
	for i, p := range points {
		if p.ServerReceivedAt == nil {
			p.ServerReceivedAt = &now
		}
		if !p.Valid() || !p.Finite() {
			dropped++
		}
		stamped[i] = p
	}

	accepted, err = h.sync.ApplyIncremental(ch.ViewKey, stamped)
	if err != nil {
		return 0, dropped, err
	}
	if h.store != nil {
		if err := h.store.Append(ctx, ch.ViewKey, stamped); err != nil {
			monitoring.Logf("relay: point log append failed for %s: %v", ch.Name, err)
		}
	}
	return accepted, dropped, nil
}

// onMerge runs after every point-adding merge, outside the channel lock.
func (h *Hub) onMerge(channelID string, added []route.Point, total int) {
	h.broadcast(ServerMessage{Type: TypeIncremental, Channel: channelID, Points: added})
}

func (h *Hub) broadcast(msg ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.members[msg.Channel] {
		select {
		case sub.send <- msg:
		default:
			// The consumer stopped draining. Dropping one incremental would
			// silently lose points, so evict; the rejoin snapshot resyncs.
			monitoring.Logf("relay: evicting slow subscriber %s", sub.id)
			h.dropLocked(sub)
		}
	}
}

// subscribe registers a new stream consumer.
func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{
		id:     uuid.NewString(),
		send:   make(chan ServerMessage, sendBuffer),
		joined: make(map[string]bool),
	}
	return sub
}

// unsubscribe removes the consumer from every channel and closes its send
// queue. Safe to call more than once.
func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

func (h *Hub) dropLocked(sub *subscriber) {
	if sub.gone {
		return
	}
	sub.gone = true
	for viewKey := range sub.joined {
		delete(h.members[viewKey], sub)
	}
	sub.joined = nil
	close(sub.send)
}

// join subscribes sub to a view key. An unknown key answers with a
// rejected frame; a known one queues the current snapshot and adds the
// subscriber to the channel's fan-out set.
func (h *Hub) join(sub *subscriber, viewKey string) {
	ch, err := h.resolver.ByViewKey(viewKey)
	if err != nil {
		h.trySend(sub, ServerMessage{Type: TypeRejected, Channel: viewKey, Reason: "unknown view key"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.gone || sub.joined[ch.ViewKey] {
		return
	}
	sub.joined[ch.ViewKey] = true
	h.members[ch.ViewKey][sub] = true

	// Queue the snapshot under the hub lock: a concurrent merge broadcasts
	// after us, and anything it added that Points already saw simply
	// repeats, which the consumer's merge discards.
	points, err := h.sync.Points(ch.ViewKey)
	if err != nil {
		points = nil
	}
	select {
	case sub.send <- ServerMessage{Type: TypeSnapshot, Channel: ch.ViewKey, Points: points}:
	default:
		h.dropLocked(sub)
	}
}

// leave removes sub from a channel's fan-out set.
func (h *Hub) leave(sub *subscriber, viewKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.gone || !sub.joined[viewKey] {
		return
	}
	delete(sub.joined, viewKey)
	delete(h.members[viewKey], sub)
}

func (h *Hub) trySend(sub *subscriber, msg ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.gone {
		return
	}
	select {
	case sub.send <- msg:
	default:
		h.dropLocked(sub)
	}
}

// ChannelInfo is one channel's status line for the relay's own API.
type ChannelInfo struct {
	Name        string          `json:"name"`
	ViewKey     string          `json:"viewKey"`
	Points      int             `json:"points"`
	Subscribers int             `json:"subscribers"`
	State       stream.Liveness `json:"state"`
	LastMergeAt *time.Time      `json:"lastMergeAt,omitempty"`
}

// ChannelInfos reports every configured channel in config order.
func (h *Hub) ChannelInfos() []ChannelInfo {
	channels := h.resolver.Channels()
	infos := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		stats, err := h.sync.Stats(ch.ViewKey)
		if err != nil {
			continue
		}
		h.mu.Lock()
		subs := len(h.members[ch.ViewKey])
		h.mu.Unlock()
		infos = append(infos, ChannelInfo{
			Name:        ch.Name,
			ViewKey:     ch.ViewKey,
			Points:      stats.Points,
			Subscribers: subs,
			State:       stats.State,
			LastMergeAt: stats.LastMergeAt,
		})
	}
	return infos
}
