package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wayline-gg/wayline/internal/uplink"
)

// Dialer connects an overlay daemon to a relay's /stream endpoint. It
// implements uplink.Dialer, so the supervisor drives reconnection and
// membership without knowing this wire format exists.
type Dialer struct {
	// URL is the stream endpoint, e.g. ws://relay.example:8080/stream.
	URL string
}

func (d *Dialer) Dial(ctx context.Context) (uplink.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", d.URL, err)
	}
	return &streamConn{conn: conn}, nil
}

// streamConn adapts one websocket session to uplink.Conn. Join and Leave
// arrive from any goroutine; gorilla allows a single concurrent writer,
// hence the write lock. Pongs to the relay's pings go out from inside the
// read loop, which gorilla serializes for us.
type streamConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *streamConn) Join(channelID string) error {
	return c.writeCommand(ClientMessage{Type: TypeJoin, Channel: channelID})
}

func (c *streamConn) Leave(channelID string) error {
	return c.writeCommand(ClientMessage{Type: TypeLeave, Channel: channelID})
}

func (c *streamConn) writeCommand(msg ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Next blocks for the next data frame. Frame types the overlay does not
// model are skipped rather than surfaced as errors.
func (c *streamConn) Next() (uplink.Event, error) {
	for {
		var msg ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return uplink.Event{}, err
		}
		switch msg.Type {
		case TypeSnapshot:
			return uplink.Event{Kind: uplink.EventSnapshot, ChannelID: msg.Channel, Points: msg.Points}, nil
		case TypeIncremental:
			return uplink.Event{Kind: uplink.EventIncremental, ChannelID: msg.Channel, Points: msg.Points}, nil
		case TypeRejected:
			return uplink.Event{Kind: uplink.EventRejected, ChannelID: msg.Channel, Reason: msg.Reason}, nil
		}
	}
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}
