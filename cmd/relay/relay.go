package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/wayline-gg/wayline/internal/config"
	"github.com/wayline-gg/wayline/internal/pointlog"
	"github.com/wayline-gg/wayline/internal/relay"
	"github.com/wayline-gg/wayline/internal/timeutil"
	"github.com/wayline-gg/wayline/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a relay config JSON file (built-in defaults when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("relay", version.String())
		return
	}

	cfg := &config.RelayConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadRelayConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	configChannels := cfg.GetChannels()
	channels := make([]relay.Channel, 0, len(configChannels))
	for _, ch := range configChannels {
		channels = append(channels, relay.Channel{Name: ch.Name, PushKey: ch.PushKey, ViewKey: ch.ViewKey})
	}
	keys, err := relay.NewStaticKeys(channels)
	if err != nil {
		log.Fatalf("invalid channel table: %v", err)
	}

	clock := timeutil.RealClock{}

	// An empty point log path keeps everything in memory, for throwaway
	// runs.
	var store pointlog.Store
	var sqlStore *pointlog.SQLite
	if path := cfg.GetPointLogPath(); path == "" {
		store = pointlog.NewMemory(clock)
		log.Print("point log: in-memory store, history is lost on restart")
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("failed to create point log directory: %v", err)
			}
		}
		sqlStore, err = pointlog.Open(path, clock)
		if err != nil {
			log.Fatalf("failed to open point log: %v", err)
		}
		store = sqlStore
		log.Printf("point log: %s", path)
	}
	defer store.Close()

	hub := relay.NewHub(keys, store, clock)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replay persisted history so post-restart snapshots are complete.
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("failed to replay point log: %v", err)
	}

	retention := pointlog.NewRetentionWorker(store, clock)
	retention.MaxIdle = cfg.GetRetentionMaxIdle()
	retention.Interval = cfg.GetRetentionInterval()
	retention.Start()
	defer retention.Stop()

	log.Printf("relay %s serving %d channel(s) on %s", version.String(), len(channels), addr)

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/", relay.NewServer(hub))
		if sqlStore != nil {
			if err := sqlStore.AttachAdminRoutes(mux); err != nil {
				log.Printf("point log admin routes unavailable: %v", err)
			}
		}

		httpServer := &http.Server{
			Addr:    addr,
			Handler: mux,
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
