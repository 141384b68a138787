package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayline-gg/wayline/internal/api"
	"github.com/wayline-gg/wayline/internal/config"
	"github.com/wayline-gg/wayline/internal/monitor"
	"github.com/wayline-gg/wayline/internal/projection"
	"github.com/wayline-gg/wayline/internal/relay"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/timeutil"
	"github.com/wayline-gg/wayline/internal/uplink"
	"github.com/wayline-gg/wayline/internal/version"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

var (
	configPath  = flag.String("config", "", "Path to an overlay config JSON file (built-in defaults when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	relayURL    = flag.String("relay", "", "Relay stream URL (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("overlay", version.String())
		return
	}

	cfg := &config.OverlayConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadOverlayConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}
	streamURL := cfg.GetRelayURL()
	if *relayURL != "" {
		streamURL = *relayURL
	}

	maps, err := worldmap.LoadRegistry(cfg.GetMapsPath())
	if err != nil {
		log.Fatalf("failed to load map registry: %v", err)
	}
	mapper := projection.NewMapper(maps)

	clock := timeutil.RealClock{}
	streams := stream.New(clock, cfg.GetStalenessWindow())
	supervisor := uplink.NewSupervisor(&relay.Dialer{URL: streamURL}, streams, clock)

	server := api.NewServer(streams, supervisor, mapper, maps)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer, streams, supervisor)

	// Merges fan out to the counters and to any live tail watchers.
	streams.OnMerge = func(channelID string, added []route.Point, total int) {
		metrics.OnMerge(channelID, added, total)
		server.Broadcast(channelID, added, total)
	}

	for _, key := range cfg.GetChannels() {
		supervisor.Watch(key)
	}

	log.Printf("overlay %s following %s with %d maps", version.String(), streamURL, maps.Len())

	// Wait group for the uplink session, metrics refresher, and HTTP server
	// routines, plus the debug monitor when enabled.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the uplink session loop: dial, join, pump, redial
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := supervisor.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("uplink session loop failed: %v", err)
		}
		log.Print("uplink routine terminated")
	}()

	// fold cumulative channel stats into the exported counters
	wg.Add(1)
	go func() {
		defer wg.Done()
		metrics.Run(ctx, cfg.GetMetricsInterval())
		log.Print("metrics routine terminated")
	}()

	// debug monitor on its own address, so it is never reachable through
	// the viewer API port
	if monitorAddr := cfg.GetMonitorAddr(); monitorAddr != "" {
		mon := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  monitorAddr,
			Registry: maps,
			Mapper:   mapper,
			Streams:  streams,
			Uplink:   supervisor,
			Clock:    clock,
			Version:  version.String(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Start(ctx); err != nil {
				log.Printf("monitor server failed: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		var handler http.Handler = mux
		if cfg.GetLogRequests() {
			handler = api.LoggingMiddleware(mux)
		}

		httpServer := &http.Server{
			Addr:    addr,
			Handler: handler,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
