// Package relay implements the reference relay between capture clients and
// overlay daemons: HTTP ingest authenticated by push key, a websocket
// stream endpoint viewers join by view key, and the matching websocket
// Dialer the overlay side connects with. The wire format lives here on
// both ends so the core never sees it.
package relay

import "github.com/wayline-gg/wayline/internal/route"

// Stream message types. Viewers send join/leave; the relay answers every
// join with one snapshot, then pushes incrementals as batches arrive, and
// rejected when a view key is unknown.
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeSnapshot    = "snapshot"
	TypeIncremental = "incremental"
	TypeRejected    = "rejected"
)

// ClientMessage is a viewer's command frame.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// ServerMessage is a relay-to-viewer frame.
type ServerMessage struct {
	Type    string        `json:"type"`
	Channel string        `json:"channel"`
	Points  []route.Point `json:"points,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// PushResponse is the body of a 202 from the ingest endpoint. Accepted
// counts points newly merged into the channel; re-pushed duplicates land
// in neither number.
type PushResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// PushKeyHeader authenticates capture clients on the ingest endpoint.
const PushKeyHeader = "X-Push-Key"
