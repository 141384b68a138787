package relay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/route"
)

// mockPointStore is a minimal pointlog.Store that records appends and can
// fail on demand.
type mockPointStore struct {
	appendErr error
	loadErr   error
	history   map[string][]route.Point
	appends   []appendCall
}

type appendCall struct {
	channelID string
	points    []route.Point
}

func (m *mockPointStore) Append(ctx context.Context, channelID string, points []route.Point) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appends = append(m.appends, appendCall{channelID: channelID, points: points})
	return nil
}

func (m *mockPointStore) Load(ctx context.Context, channelID string) ([]route.Point, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.history[channelID], nil
}

func (m *mockPointStore) Channels(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mockPointStore) LastActivity(ctx context.Context, channelID string) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockPointStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (m *mockPointStore) Close() error { return nil }

func TestHubStart_NilStore(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t, nil)
	assert.NoError(t, hub.Start(context.Background()))
}

func TestHubStart_LoadError(t *testing.T) {
	t.Parallel()
	store := &mockPointStore{loadErr: errors.New("database file vanished")}
	hub, _ := newTestHub(t, store)

	err := hub.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to replay channel")
	assert.Contains(t, err.Error(), "database file vanished")
}

func TestHubStart_EmptyHistoryIsFine(t *testing.T) {
	t.Parallel()
	store := &mockPointStore{history: map[string][]route.Point{}}
	hub, _ := newTestHub(t, store)
	assert.NoError(t, hub.Start(context.Background()))
}

func TestHubIngest_AppendReceivesWholeStampedBatch(t *testing.T) {
	t.Parallel()
	store := &mockPointStore{}
	hub, clock := newTestHub(t, store)

	bad := relayPoint(30, 1, 1)
	bad.GlobalX = math.NaN()
	batch := []route.Point{relayPoint(10, 1, 1), relayPoint(20, 2, 2), bad}
	accepted, dropped, err := hub.Ingest(context.Background(), "push-alice", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, dropped)

	// The log is keyed by view key and sees the full stamped batch; weeding
	// out invalid points is the store's own job.
	require.Len(t, store.appends, 1)
	call := store.appends[0]
	assert.Equal(t, "view-alice", call.channelID)
	require.Len(t, call.points, 3)
	for _, p := range call.points {
		require.NotNil(t, p.ServerReceivedAt)
		assert.Equal(t, clock.Now().UTC(), *p.ServerReceivedAt)
	}
}

func TestHubIngest_AppendErrorNeverRefusesData(t *testing.T) {
	orig := monitoring.Logf
	defer monitoring.SetLogger(orig)
	var logged string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged += fmt.Sprintf(format, v...) + "\n"
	})

	store := &mockPointStore{appendErr: errors.New("disk full")}
	hub, _ := newTestHub(t, store)

	accepted, _, err := hub.Ingest(context.Background(), "push-alice", []route.Point{relayPoint(10, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
	assert.Contains(t, logged, "point log append failed")

	// The point made it into the live buffer regardless.
	sub := hub.subscribe()
	hub.join(sub, "view-alice")
	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeSnapshot, msgs[0].Type)
	assert.Len(t, msgs[0].Points, 1)
}
