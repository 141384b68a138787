// Package monitor serves the operator debug UI for a running overlay: a
// server-rendered status page plus chart endpoints for inspecting map
// calibration quality and live channel routes. Everything here is
// debugging-only and unauthenticated; it binds its own address so it is
// never exposed alongside the viewer API.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/wayline-gg/wayline/internal/projection"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/timeutil"
	"github.com/wayline-gg/wayline/internal/uplink"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring overlay state.
// It provides endpoints for health checks, a status page, and debug charts.
type WebServer struct {
	address   string
	registry  *worldmap.Registry
	mapper    *projection.Mapper
	streams   *stream.Synchronizer
	uplink    *uplink.Supervisor
	clock     timeutil.Clock
	version   string
	startedAt time.Time
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Registry *worldmap.Registry
	Mapper   *projection.Mapper
	Streams  *stream.Synchronizer
	Uplink   *uplink.Supervisor
	Clock    timeutil.Clock
	Version  string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	ws := &WebServer{
		address:   config.Address,
		registry:  config.Registry,
		mapper:    config.Mapper,
		streams:   config.Streams,
		uplink:    config.Uplink,
		clock:     clock,
		version:   config.Version,
		startedAt: clock.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting monitor server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start monitor server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor server force close error: %v", err)
		}
	}

	log.Printf("monitor server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/charts/residuals", ws.handleResidualChart)
	mux.HandleFunc("/charts/calibration", ws.handleCalibrationChart)
	mux.HandleFunc("/charts/route", ws.handleRouteChart)
	mux.HandleFunc("/plots/residuals.png", ws.handleResidualPlot)

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "overlay-monitor", "timestamp": "%s"}`, ws.clock.Now().UTC().Format(time.RFC3339))
}

// statusChannelRow is one row of the status page channel table.
type statusChannelRow struct {
	ChannelID  string
	Points     int
	Duplicates uint64
	Dropped    uint64
	State      string
	LastMerge  string
	Connection string
	Reason     string
}

// statusMapRow is one row of the status page map table.
type statusMapRow struct {
	ID          string
	Name        string
	Size        string
	Calibration int
	FitMode     string
	MeanPx      string
	MaxPx       string
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	channels := make([]statusChannelRow, 0)
	if ws.streams != nil {
		for _, id := range ws.streams.Channels() {
			stats, err := ws.streams.Stats(id)
			if err != nil {
				continue
			}
			row := statusChannelRow{
				ChannelID:  stats.ChannelID,
				Points:     stats.Points,
				Duplicates: stats.Duplicates,
				Dropped:    stats.Dropped,
				State:      string(stats.State),
				LastMerge:  "never",
			}
			if stats.LastMergeAt != nil {
				row.LastMerge = stats.LastMergeAt.UTC().Format(time.RFC3339)
			}
			if ws.uplink != nil {
				if cs, err := ws.uplink.ChannelState(id); err == nil {
					row.Connection = string(cs.State)
					row.Reason = cs.Reason
				}
			}
			channels = append(channels, row)
		}
	}

	maps := make([]statusMapRow, 0)
	if ws.registry != nil && ws.mapper != nil {
		for _, cfg := range ws.registry.All() {
			row := statusMapRow{
				ID:          string(cfg.ID),
				Name:        cfg.Name,
				Size:        fmt.Sprintf("%dx%d", cfg.WidthPx, cfg.HeightPx),
				Calibration: len(cfg.Calibration),
			}
			if report, err := ws.mapper.Report(cfg.ID); err == nil {
				row.FitMode = string(report.Mode)
				row.MeanPx = fmt.Sprintf("%.2f", report.Mean)
				row.MaxPx = fmt.Sprintf("%.2f", report.Max)
			}
			maps = append(maps, row)
		}
	}

	uplinkState := "unconfigured"
	var reconnects uint64
	if ws.uplink != nil {
		uplinkState = string(ws.uplink.State())
		reconnects = ws.uplink.Reconnects()
	}

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Version     string
		HTTPAddress string
		Uptime      string
		UplinkState string
		Reconnects  uint64
		Channels    []statusChannelRow
		Maps        []statusMapRow
	}{
		Version:     ws.version,
		HTTPAddress: ws.address,
		Uptime:      ws.clock.Now().Sub(ws.startedAt).Round(time.Second).String(),
		UplinkState: uplinkState,
		Reconnects:  reconnects,
		Channels:    channels,
		Maps:        maps,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
