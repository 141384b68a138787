package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wayline-gg/wayline/internal/httputil"
	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/version"
)

// Pump timing per gorilla conventions.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB

	maxPushBody = 4 << 20 // cap on one ingest batch
)

// Server exposes the relay over HTTP: point ingest, the stream websocket,
// a channel status list and a liveness probe.
type Server struct {
	hub      *Hub
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	s := &Server{
		hub: hub,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Capture clients and overlay daemons are not browsers, so
			// origin checks buy nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("/api/points", s.handlePushPoints)
	s.mux.HandleFunc("/api/channels", s.handleChannels)
	s.mux.HandleFunc("/stream", s.handleStream)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handlePushPoints ingests one JSON array of points pushed by a capture
// client. 401 tells the pusher its key is dead and retrying is pointless.
func (s *Server) handlePushPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	pushKey := r.Header.Get(PushKeyHeader)
	if pushKey == "" {
		httputil.WriteJSONError(w, http.StatusUnauthorized, "missing push key")
		return
	}

	var points []route.Point
	body := http.MaxBytesReader(w, r.Body, maxPushBody)
	if err := json.NewDecoder(body).Decode(&points); err != nil {
		httputil.BadRequest(w, "invalid point batch: "+err.Error())
		return
	}

	accepted, dropped, err := s.hub.Ingest(r.Context(), pushKey, points)
	if errors.Is(err, ErrBadKey) {
		httputil.WriteJSONError(w, http.StatusUnauthorized, "unknown push key")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, PushResponse{Accepted: accepted, Dropped: dropped})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.hub.ChannelInfos())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleStream upgrades to a websocket and starts the pumps. The
// subscriber's lifetime is the connection's.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("relay: websocket upgrade failed: %v", err)
		return
	}
	sub := s.hub.subscribe()
	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

// readPump consumes viewer commands until the connection dies.
func (s *Server) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		s.hub.unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("relay: stream read error: %v", err)
			}
			return
		}
		switch msg.Type {
		case TypeJoin:
			s.hub.join(sub, msg.Channel)
		case TypeLeave:
			s.hub.leave(sub, msg.Channel)
		default:
			// Unknown commands are ignored so the protocol can grow.
		}
	}
}

// writePump drains the subscriber queue onto the wire and keeps the
// connection alive with pings.
func (s *Server) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub evicted us; say goodbye properly.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
