// Command route-sim pushes a synthetic position stream at a relay.
//
// This is useful for exercising a relay and overlay pair without a real
// capture client. It walks a plausible route with periodic teleports and
// map transitions, pushing batches the way a capture client would.
//
// Usage:
//
//	go run ./cmd/tools/route-sim [flags]
//
// Flags:
//
//	-relay             Relay base URL (default: http://127.0.0.1:8091)
//	-key               Push key for the target channel (required)
//	-rate              Samples per second (default: 4)
//	-batch             Samples per push (default: 8)
//	-teleport-every    Samples between teleports, 0 disables (default: 40)
//	-transition-every  Samples between map transitions, 0 disables (default: 100)
//	-invalid-rate      Fraction of samples sent as the invalid sentinel (default: 0)
//	-count             Total samples to push, 0 runs until interrupted (default: 0)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wayline-gg/wayline/internal/relay"
	"github.com/wayline-gg/wayline/internal/sim"
)

func main() {
	relayURL := flag.String("relay", "http://127.0.0.1:8091", "Relay base URL")
	key := flag.String("key", "", "Push key for the target channel (required)")
	rate := flag.Float64("rate", 4, "Samples per second")
	batch := flag.Int("batch", 8, "Samples per push")
	teleportEvery := flag.Int("teleport-every", 40, "Samples between teleports, 0 disables")
	transitionEvery := flag.Int("transition-every", 100, "Samples between map transitions, 0 disables")
	invalidRate := flag.Float64("invalid-rate", 0, "Fraction of samples sent as the invalid sentinel")
	count := flag.Int("count", 0, "Total samples to push, 0 runs until interrupted")
	flag.Parse()

	if *key == "" {
		log.Fatal("a -key is required; it selects the channel to push into")
	}
	if *rate <= 0 || *batch <= 0 {
		log.Fatal("-rate and -batch must be positive")
	}

	walker := sim.NewRouteWalker()
	walker.SampleHz = *rate
	walker.TeleportEvery = *teleportEvery
	walker.TransitionEvery = *transitionEvery
	walker.InvalidRate = *invalidRate

	log.Printf("Pushing to %s at %.1f samples/s, %d per batch", *relayURL, *rate, *batch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Duration(float64(*batch) / *rate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pushed := 0
	for {
		n := *batch
		if *count > 0 && pushed+n > *count {
			n = *count - pushed
		}

		resp, err := push(ctx, client, *relayURL, *key, walker, n)
		if err != nil {
			log.Printf("push failed: %v", err)
		} else {
			pushed += n
			log.Printf("pushed %d samples (accepted=%d dropped=%d, total=%d)",
				n, resp.Accepted, resp.Dropped, pushed)
		}

		if *count > 0 && pushed >= *count {
			log.Printf("done: %d samples pushed", pushed)
			return
		}

		select {
		case <-ctx.Done():
			log.Printf("interrupted after %d samples", pushed)
			return
		case <-ticker.C:
		}
	}
}

// push sends one batch and decodes the relay's accounting.
func push(ctx context.Context, client *http.Client, relayURL, key string, walker *sim.RouteWalker, n int) (*relay.PushResponse, error) {
	body, err := json.Marshal(walker.NextBatch(n))
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, relayURL+"/api/points", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(relay.PushKeyHeader, key)

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized {
		log.Fatalf("relay rejected the push key; check -key against the relay's channel table")
	}
	if httpResp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("relay returned %s", httpResp.Status)
	}

	var resp relay.PushResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
