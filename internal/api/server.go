// Package api serves the viewer-facing HTTP surface of the overlay daemon:
// channel listings and connection states, per-channel points, segments and
// jumps, the per-map coordinate transform, and a server-sent-event live
// tail.
//
// Handlers read straight from the synchronizer and supervisor; nothing here
// owns state beyond the tail watcher registry. All responses are JSON.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/projection"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/uplink"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// ANSI escape codes for the request log.
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server answers viewer queries from the overlay core.
type Server struct {
	sync   *stream.Synchronizer
	sup    *uplink.Supervisor
	mapper *projection.Mapper
	maps   *worldmap.Registry

	tails *tailHub
}

// NewServer wires the API over the overlay's synchronizer, supervisor, map
// registry and fitted transforms.
func NewServer(sync *stream.Synchronizer, sup *uplink.Supervisor, mapper *projection.Mapper, maps *worldmap.Registry) *Server {
	return &Server{
		sync:   sync,
		sup:    sup,
		mapper: mapper,
		maps:   maps,
		tails:  newTailHub(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux mounts the viewer endpoints.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/channel/points", s.listPoints)
	mux.HandleFunc("/api/channel/segments", s.listSegments)
	mux.HandleFunc("/api/channel/jumps", s.listJumps)
	mux.HandleFunc("/api/channel/state", s.showChannelState)
	mux.HandleFunc("/api/channel/tail", s.tailChannel)
	mux.HandleFunc("/api/transform", s.transformPoint)
	mux.HandleFunc("/api/maps", s.listMaps)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}
