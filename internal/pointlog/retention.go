package pointlog

import (
	"context"
	"time"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

// RetentionWorker periodically drops channels that have not gained points
// for MaxIdle. Designed to run hourly; a channel someone is still pushing
// to never ages out because every accepted batch refreshes its activity.
type RetentionWorker struct {
	Store    Store
	Clock    timeutil.Clock
	MaxIdle  time.Duration // drop channels idle longer than this (e.g. 24h)
	Interval time.Duration // how often to sweep (e.g. 1h)
	StopChan chan struct{}
}

func NewRetentionWorker(store Store, clock timeutil.Clock) *RetentionWorker {
	return &RetentionWorker{
		Store:    store,
		Clock:    clock,
		MaxIdle:  24 * time.Hour,
		Interval: time.Hour,
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic sweep loop in a goroutine.
func (w *RetentionWorker) Start() {
	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("pointlog: retention sweep error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *RetentionWorker) Stop() {
	close(w.StopChan)
}

// RunOnce performs one sweep and reports how many channels were purged.
func (w *RetentionWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.Clock.Now().Add(-w.MaxIdle)
	purged, err := w.Store.DeleteIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		monitoring.Logf("pointlog: purged %d idle channel(s)", purged)
	}
	return purged, nil
}
