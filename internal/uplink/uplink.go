// Package uplink maintains the overlay daemon's session to a relay: one
// connection state machine that dials, joins the watched channels, feeds
// their snapshots and incremental batches into the stream synchronizer, and
// reconnects on a fixed backoff schedule.
//
// The transport is pluggable behind the Dialer/Conn pair so the supervisor
// logic stays independent of any particular connection library's callback
// shape; the relay package supplies the websocket implementation and tests
// supply scripted in-memory ones.
package uplink

import (
	"context"

	"github.com/wayline-gg/wayline/internal/route"
)

// EventKind discriminates the messages a relay session can deliver.
type EventKind string

const (
	// EventSnapshot carries a channel's full historical replay, sent once
	// per (re)join.
	EventSnapshot EventKind = "snapshot"
	// EventIncremental carries newly ingested points for a joined channel.
	EventIncremental EventKind = "incremental"
	// EventRejected reports that the upstream refused a credential. The
	// rejection is terminal for that channel.
	EventRejected EventKind = "rejected"
)

// Event is one message received from the upstream session.
type Event struct {
	Kind      EventKind
	ChannelID string
	Points    []route.Point
	// Reason is set on EventRejected.
	Reason string
}

// Conn is one established upstream session.
type Conn interface {
	// Join subscribes to a channel; the upstream replies with a snapshot
	// event followed by incrementals.
	Join(channelID string) error

	// Leave unsubscribes from a channel.
	Leave(channelID string) error

	// Next blocks until the upstream delivers the next event or the
	// session dies, in which case it returns the transport error.
	Next() (Event, error)

	// Close tears the session down. Unblocks any pending Next.
	Close() error
}

// Dialer establishes upstream sessions. Dial blocks until the session is
// ready or the context is done; every returned error is treated as
// recoverable and retried on the backoff schedule.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
