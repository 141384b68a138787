package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestSync() (*Synchronizer, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(testEpoch)
	return New(clock, time.Minute), clock
}

func TestApplySnapshotThenIncrementals(t *testing.T) {
	s, _ := newTestSync()
	s.Watch("k")

	added, err := s.ApplySnapshot("k", at(0, 100))
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if added != 2 {
		t.Errorf("snapshot added %d, want 2", added)
	}

	if _, err := s.ApplyIncremental("k", at(50, 150)); err != nil {
		t.Fatalf("ApplyIncremental: %v", err)
	}

	points, err := s.Points("k")
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if diff := cmp.Diff([]int64{0, 50, 100, 150}, timestamps(points)); diff != "" {
		t.Errorf("buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchArrivalOrderIrrelevant(t *testing.T) {
	b1 := at(0, 100)
	b2 := at(50, 150)

	forward, _ := newTestSync()
	forward.Watch("k")
	forward.ApplySnapshot("k", b1)
	forward.ApplyIncremental("k", b2)

	reverse, _ := newTestSync()
	reverse.Watch("k")
	reverse.ApplySnapshot("k", b2)
	reverse.ApplyIncremental("k", b1)

	fp, _ := forward.Points("k")
	rp, _ := reverse.Points("k")
	if diff := cmp.Diff(timestamps(fp), timestamps(rp)); diff != "" {
		t.Errorf("arrival order changed the buffer (-forward +reverse):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{0, 50, 100, 150}, timestamps(fp)); diff != "" {
		t.Errorf("buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestResnapshotAfterReconnectIsIdempotent(t *testing.T) {
	s, _ := newTestSync()
	s.Watch("k")

	s.ApplySnapshot("k", at(0, 100, 200))
	s.ApplyIncremental("k", at(300))

	// Reconnect: upstream replays history plus the point it saw meanwhile.
	added, err := s.ApplySnapshot("k", at(0, 100, 200, 300, 400))
	if err != nil {
		t.Fatalf("re-snapshot: %v", err)
	}
	if added != 1 {
		t.Errorf("re-snapshot added %d, want 1 (only the unseen point)", added)
	}

	points, _ := s.Points("k")
	if diff := cmp.Diff([]int64{0, 100, 200, 300, 400}, timestamps(points)); diff != "" {
		t.Errorf("buffer after re-snapshot (-want +got):\n%s", diff)
	}

	stats, _ := s.Stats("k")
	if stats.Duplicates != 4 {
		t.Errorf("duplicates = %d, want 4", stats.Duplicates)
	}
}

func TestMergeIntoUnknownChannelIsContractViolation(t *testing.T) {
	s, _ := newTestSync()
	if _, err := s.ApplyIncremental("ghost", at(0)); !errors.Is(err, ErrNoChannel) {
		t.Errorf("err = %v, want ErrNoChannel", err)
	}
	if _, err := s.Points("ghost"); !errors.Is(err, ErrNoChannel) {
		t.Errorf("Points err = %v, want ErrNoChannel", err)
	}
	if _, err := s.State("ghost"); !errors.Is(err, ErrNoChannel) {
		t.Errorf("State err = %v, want ErrNoChannel", err)
	}
}

func TestLivenessWindow(t *testing.T) {
	s, clock := newTestSync()
	s.Watch("k")

	// No merge yet: stale.
	if st, _ := s.State("k"); st != Stale {
		t.Errorf("state before any merge = %s, want stale", st)
	}

	s.ApplyIncremental("k", at(0))
	if st, _ := s.State("k"); st != Live {
		t.Errorf("state after merge = %s, want live", st)
	}

	// Exactly at the window boundary still counts as live.
	clock.Advance(time.Minute)
	if st, _ := s.State("k"); st != Live {
		t.Errorf("state at window boundary = %s, want live", st)
	}

	clock.Advance(time.Second)
	if st, _ := s.State("k"); st != Stale {
		t.Errorf("state past window = %s, want stale", st)
	}

	// The next merged point flips the channel back immediately.
	s.ApplyIncremental("k", at(100))
	if st, _ := s.State("k"); st != Live {
		t.Errorf("state after fresh point = %s, want live", st)
	}
}

func TestReplayDoesNotFakeLiveness(t *testing.T) {
	s, clock := newTestSync()
	s.Watch("k")
	s.ApplySnapshot("k", at(0, 100))

	clock.Advance(2 * time.Minute)
	if st, _ := s.State("k"); st != Stale {
		t.Fatalf("state = %s, want stale", st)
	}

	// A replayed snapshot of a dead source adds nothing and must not
	// refresh the merge mark.
	s.ApplySnapshot("k", at(0, 100))
	if st, _ := s.State("k"); st != Stale {
		t.Errorf("state after pure replay = %s, want stale", st)
	}
}

func TestUnwatchDropsChannel(t *testing.T) {
	s, _ := newTestSync()
	s.Watch("k")
	s.ApplySnapshot("k", at(0))

	s.Unwatch("k")
	if _, err := s.ApplyIncremental("k", at(100)); !errors.Is(err, ErrNoChannel) {
		t.Errorf("merge after unwatch: err = %v, want ErrNoChannel", err)
	}
	if got := s.Channels(); len(got) != 0 {
		t.Errorf("Channels() = %v, want empty", got)
	}

	// Unwatching twice is harmless.
	s.Unwatch("k")
}

func TestUnwatchConcurrentWithMergeNeverResurrects(t *testing.T) {
	for i := 0; i < 100; i++ {
		s, _ := newTestSync()
		s.Watch("k")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ApplyIncremental("k", at(0, 100, 200))
		}()
		go func() {
			defer wg.Done()
			s.Unwatch("k")
		}()
		wg.Wait()

		if _, err := s.Points("k"); !errors.Is(err, ErrNoChannel) {
			t.Fatalf("iteration %d: channel resurrected after unwatch (err = %v)", i, err)
		}
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	s, _ := newTestSync()
	s.Watch("a")
	s.Watch("b")

	s.ApplySnapshot("a", at(0, 100))
	s.ApplySnapshot("b", at(500))

	ap, _ := s.Points("a")
	bp, _ := s.Points("b")
	if len(ap) != 2 || len(bp) != 1 {
		t.Errorf("buffers leaked across channels: a=%d b=%d, want 2 and 1", len(ap), len(bp))
	}
	if diff := cmp.Diff([]string{"a", "b"}, s.Channels()); diff != "" {
		t.Errorf("Channels() mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleWriterPerChannel(t *testing.T) {
	s, _ := newTestSync()
	s.Watch("k")

	// 8 writers × 50 disjoint timestamps each. With serialized merges the
	// final buffer is exactly the union.
	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ms := int64(w*perWriter + i)
				if _, err := s.ApplyIncremental("k", at(ms)); err != nil {
					t.Errorf("writer %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	points, err := s.Points("k")
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if len(points) != writers*perWriter {
		t.Fatalf("got %d points, want %d", len(points), writers*perWriter)
	}
	for i := 1; i < len(points); i++ {
		if points[i-1].TimestampMs >= points[i].TimestampMs {
			t.Fatalf("buffer not strictly ascending at %d: %d >= %d",
				i, points[i-1].TimestampMs, points[i].TimestampMs)
		}
	}
}

func TestMergeObserver(t *testing.T) {
	s, _ := newTestSync()

	type call struct {
		ID    string
		Added []int64
		Total int
	}
	var mu sync.Mutex
	var calls []call
	s.OnMerge = func(channelID string, added []route.Point, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, call{channelID, timestamps(added), total})
	}

	s.Watch("k")
	s.ApplySnapshot("k", at(0, 100))
	s.ApplyIncremental("k", at(100)) // pure replay: no callback
	s.ApplyIncremental("k", at(200))

	mu.Lock()
	defer mu.Unlock()
	want := []call{
		{"k", []int64{0, 100}, 2},
		{"k", []int64{200}, 3},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("observer calls mismatch (-want +got):\n%s", diff)
	}
}
