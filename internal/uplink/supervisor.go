package uplink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/stream"
	"github.com/wayline-gg/wayline/internal/timeutil"
)

// ConnState is a connection state machine state. Rejected appears only in
// per-channel views; the connection itself never enters it.
type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
	Reconnecting ConnState = "reconnecting"
	// Rejected is the terminal per-channel state after the upstream
	// refused the credential. No retries follow.
	Rejected ConnState = "rejected"
)

// ErrNotWatched reports a channel-state query for a credential the
// supervisor does not track.
var ErrNotWatched = errors.New("channel not watched")

// backoffSchedule is the fixed reconnect delay sequence. The first retry is
// immediate; later ones stretch out and cap at the final entry. A
// successful connect resets the schedule.
var backoffSchedule = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// ChannelStatus is the per-channel connection view surfaced to the API.
type ChannelStatus struct {
	ChannelID string    `json:"channelId"`
	State     ConnState `json:"state"`
	Reason    string    `json:"reason,omitempty"`
}

// Supervisor drives one upstream session and the membership of every
// watched channel across it. Channel membership is tracked internally:
// after every successful (re)connect the supervisor re-issues Join for each
// tracked credential and lets merge idempotence absorb the replayed
// snapshots.
type Supervisor struct {
	dialer Dialer
	sync   *stream.Synchronizer
	clock  timeutil.Clock

	reconnects atomic.Uint64

	mu            sync.Mutex
	state         ConnState
	everConnected bool
	conn          Conn
	channels      map[string]*trackedChannel
}

type trackedChannel struct {
	rejected bool
	reason   string
}

// NewSupervisor wires a supervisor to its transport and synchronizer. Run
// must be started for any data to flow.
func NewSupervisor(dialer Dialer, sync *stream.Synchronizer, clock timeutil.Clock) *Supervisor {
	return &Supervisor{
		dialer:   dialer,
		sync:     sync,
		clock:    clock,
		state:    Disconnected,
		channels: make(map[string]*trackedChannel),
	}
}

// Watch starts tracking a channel. The synchronizer buffer exists from this
// moment; if a session is up the join is issued immediately, otherwise it
// happens on the next (re)connect. Watching an already-watched channel is a
// no-op.
func (s *Supervisor) Watch(credential string) {
	// Buffer first: a (re)join may produce a snapshot the moment the
	// credential becomes visible to the session loop.
	s.sync.Watch(credential)

	s.mu.Lock()
	if _, ok := s.channels[credential]; ok {
		s.mu.Unlock()
		return
	}
	s.channels[credential] = &trackedChannel{}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Join(credential); err != nil {
			// The session is dying; the read loop will notice and the
			// join replays on reconnect.
			monitoring.Logf("uplink: join %s failed, deferring to reconnect: %v", credential, err)
		}
	}
}

// Unwatch stops tracking a channel, leaves it upstream, and destroys its
// buffer. Any batch still in flight for it is dropped, never merged.
func (s *Supervisor) Unwatch(credential string) {
	s.mu.Lock()
	_, ok := s.channels[credential]
	delete(s.channels, credential)
	conn := s.conn
	s.mu.Unlock()
	if !ok {
		return
	}

	s.sync.Unwatch(credential)
	if conn != nil {
		if err := conn.Leave(credential); err != nil {
			monitoring.Logf("uplink: leave %s failed: %v", credential, err)
		}
	}
}

// State returns the connection-level FSM state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChannelState returns the per-channel view: terminal Rejected with its
// reason once the upstream refused the credential, the connection state
// otherwise.
func (s *Supervisor) ChannelState(credential string) (ChannelStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.channels[credential]
	if !ok {
		return ChannelStatus{}, fmt.Errorf("channel %q: %w", credential, ErrNotWatched)
	}
	return s.statusLocked(credential, tc), nil
}

// ChannelStates lists every tracked channel's view, sorted by credential.
func (s *Supervisor) ChannelStates() []ChannelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelStatus, 0, len(s.channels))
	for id, tc := range s.channels {
		out = append(out, s.statusLocked(id, tc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

func (s *Supervisor) statusLocked(credential string, tc *trackedChannel) ChannelStatus {
	if tc.rejected {
		return ChannelStatus{ChannelID: credential, State: Rejected, Reason: tc.reason}
	}
	return ChannelStatus{ChannelID: credential, State: s.state}
}

// Reconnects reports how many times the supervisor has re-established a
// session after losing one.
func (s *Supervisor) Reconnects() uint64 {
	return s.reconnects.Load()
}

// Run drives the session until ctx is done: dial, join tracked channels,
// pump events, and on any session loss redial per the backoff schedule.
// Returns ctx.Err() once stopped; the supervisor is then terminally
// Disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(Disconnected)

	attempt := 0
	for {
		if err := s.waitBackoff(ctx, attempt); err != nil {
			return err
		}

		s.mu.Lock()
		if s.everConnected {
			s.state = Reconnecting
		} else {
			s.state = Connecting
		}
		s.mu.Unlock()

		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			monitoring.Logf("uplink: dial failed (attempt %d): %v", attempt, err)
			continue
		}

		attempt = 0
		s.mu.Lock()
		if s.everConnected {
			s.reconnects.Add(1)
		}
		s.everConnected = true
		s.conn = conn
		s.state = Connected
		s.mu.Unlock()
		monitoring.Logf("uplink: connected")

		err = s.session(ctx, conn)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A lost session redials immediately (attempt stays reset); only
		// failed dials climb the backoff ladder.
		monitoring.Logf("uplink: session lost: %v", err)
	}
}

func (s *Supervisor) waitBackoff(ctx context.Context, attempt int) error {
	idx := attempt
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	d := backoffSchedule[idx]
	if d == 0 {
		return ctx.Err()
	}
	monitoring.Logf("uplink: retrying in %v", d)
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session re-joins every tracked channel, then pumps events until the
// connection dies or ctx is done.
func (s *Supervisor) session(ctx context.Context, conn Conn) error {
	// Close the connection when ctx ends so the blocking Next unblocks.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	for _, credential := range s.joinable() {
		if err := conn.Join(credential); err != nil {
			return fmt.Errorf("join %s: %w", credential, err)
		}
	}

	for {
		ev, err := conn.Next()
		if err != nil {
			return err
		}
		s.handleEvent(ev)
	}
}

// joinable snapshots the credentials that should be (re)joined: everything
// tracked that has not been terminally rejected.
func (s *Supervisor) joinable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for id, tc := range s.channels {
		if !tc.rejected {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Supervisor) handleEvent(ev Event) {
	s.mu.Lock()
	tc, tracked := s.channels[ev.ChannelID]
	rejected := tracked && tc.rejected
	if ev.Kind == EventRejected && tracked {
		tc.rejected = true
		tc.reason = ev.Reason
	}
	s.mu.Unlock()

	if !tracked || rejected {
		// Unwatched between send and receipt, or data for a rejected
		// credential: drop.
		return
	}

	switch ev.Kind {
	case EventSnapshot:
		if _, err := s.sync.ApplySnapshot(ev.ChannelID, ev.Points); err != nil && !errors.Is(err, stream.ErrNoChannel) {
			monitoring.Logf("uplink: snapshot merge for %s: %v", ev.ChannelID, err)
		}
	case EventIncremental:
		if _, err := s.sync.ApplyIncremental(ev.ChannelID, ev.Points); err != nil && !errors.Is(err, stream.ErrNoChannel) {
			monitoring.Logf("uplink: incremental merge for %s: %v", ev.ChannelID, err)
		}
	case EventRejected:
		monitoring.Logf("uplink: channel %s rejected by upstream: %s", ev.ChannelID, ev.Reason)
	default:
		monitoring.Logf("uplink: ignoring unknown event kind %q", ev.Kind)
	}
}

func (s *Supervisor) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
