// Package pointlog persists relayed route points so channel history
// survives a relay restart. The relay appends every accepted batch and
// replays a channel's history into its snapshot after coming back up;
// the stream merge being idempotent makes double-loading harmless.
package pointlog

import (
	"context"
	"time"

	"github.com/wayline-gg/wayline/internal/route"
)

// Store is the persistence contract the relay hub writes through. Append
// must be idempotent on (channel, timestampMs) so a re-pushed batch never
// duplicates rows.
type Store interface {
	// Append writes the valid points of a batch. Invalid or non-finite
	// points are skipped, matching what the stream layer would drop anyway.
	Append(ctx context.Context, channelID string, points []route.Point) error

	// Load returns a channel's full history ordered by capture timestamp.
	// A channel with no history yields an empty slice, not an error.
	Load(ctx context.Context, channelID string) ([]route.Point, error)

	// Channels lists every channel with at least one stored point, sorted.
	Channels(ctx context.Context) ([]string, error)

	// LastActivity reports when the channel last gained new points. The
	// zero time means it never has.
	LastActivity(ctx context.Context, channelID string) (time.Time, error)

	// DeleteIdle removes every channel whose last activity is before
	// cutoff and reports how many channels were purged.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
