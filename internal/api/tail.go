package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/wayline-gg/wayline/internal/httputil"
	"github.com/wayline-gg/wayline/internal/route"
)

// tailQueueSize bounds each SSE watcher's backlog. A watcher that cannot
// drain its queue misses events rather than stalling the merge path.
const tailQueueSize = 16

// TailEvent is one SSE payload: the points a merge added, in order, and the
// channel's new total.
type TailEvent struct {
	ChannelID string        `json:"channelId"`
	Points    []route.Point `json:"points"`
	Total     int           `json:"total"`
}

// tailHub tracks SSE watchers per channel.
type tailHub struct {
	mu       sync.Mutex
	watchers map[string]map[string]chan TailEvent
}

func newTailHub() *tailHub {
	return &tailHub{watchers: make(map[string]map[string]chan TailEvent)}
}

func (h *tailHub) subscribe(channelID string) (string, chan TailEvent) {
	id := uuid.NewString()
	ch := make(chan TailEvent, tailQueueSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watchers[channelID] == nil {
		h.watchers[channelID] = make(map[string]chan TailEvent)
	}
	h.watchers[channelID][id] = ch
	return id, ch
}

func (h *tailHub) unsubscribe(channelID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.watchers[channelID][id]; ok {
		close(ch)
		delete(h.watchers[channelID], id)
	}
}

// closeChannel ends every watcher of one channel, used when the channel is
// unwatched.
func (h *tailHub) closeChannel(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.watchers[channelID] {
		close(ch)
		delete(h.watchers[channelID], id)
	}
	delete(h.watchers, channelID)
}

func (h *tailHub) broadcast(ev TailEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.watchers[ev.ChannelID] {
		select {
		case ch <- ev:
		default:
			// Full queue: skip rather than block the merge path.
		}
	}
}

// Broadcast feeds merged points to SSE watchers. Its signature matches
// stream.MergeObserver so the daemon can hang it off the synchronizer.
func (s *Server) Broadcast(channelID string, added []route.Point, total int) {
	s.tails.broadcast(TailEvent{ChannelID: channelID, Points: added, Total: total})
}

// tailChannel streams merge events for one channel as server-sent events.
func (s *Server) tailChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key, ok := channelKey(w, r)
	if !ok {
		return
	}
	if _, err := s.sync.Stats(key); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, events := s.tails.subscribe(key)
	defer s.tails.unsubscribe(key, id)

	// Initial ping so the client sees the stream is up before any merge.
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Channel unwatched underneath us.
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
