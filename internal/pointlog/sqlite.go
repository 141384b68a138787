package pointlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/route"
	"github.com/wayline-gg/wayline/internal/timeutil"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// SQLite stores the point log in a single SQLite file.
type SQLite struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the point log at path and brings its
// schema up to date. Pragmas ride in the DSN so every pooled connection
// gets them, not just the first.
func Open(path string, clock timeutil.Clock) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s"+
		"?_pragma=busy_timeout(5000)"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=temp_store(MEMORY)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open point log: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, path: path, clock: clock}, nil
}

// Append writes the valid points of a batch inside one transaction.
// INSERT OR IGNORE on the (channel_id, timestamp_ms) key makes re-pushed
// batches a no-op.
func (s *SQLite) Append(ctx context.Context, channelID string, points []route.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("pointlog: rollback failed: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO points (
		channel_id, timestamp_ms, local_x, local_y, local_z,
		global_x, global_y, global_z, raw_area_id, world_layer, received_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare append: %w", err)
	}
	defer stmt.Close()

	nowMs := s.clock.Now().UnixMilli()
	for _, p := range points {
		if !p.Valid() || !p.Finite() {
			continue
		}
		receivedMs := nowMs
		if p.ServerReceivedAt != nil {
			receivedMs = p.ServerReceivedAt.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx,
			channelID, p.TimestampMs, p.LocalX, p.LocalY, p.LocalZ,
			p.GlobalX, p.GlobalY, p.GlobalZ, int64(p.RawAreaID), p.WorldLayer, receivedMs,
		); err != nil {
			return fmt.Errorf("failed to append point: %w", err)
		}
	}
	return tx.Commit()
}

// Load returns the channel's history ordered by capture timestamp. The
// textual area id is rebuilt from the raw id rather than stored.
func (s *SQLite) Load(ctx context.Context, channelID string) ([]route.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp_ms, local_x, local_y, local_z,
		global_x, global_y, global_z, raw_area_id, world_layer, received_at_ms
		FROM points WHERE channel_id = ? ORDER BY timestamp_ms ASC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel %q: %w", channelID, err)
	}
	defer rows.Close()

	var points []route.Point
	for rows.Next() {
		var (
			p          route.Point
			rawAreaID  int64
			receivedMs int64
		)
		if err := rows.Scan(&p.TimestampMs, &p.LocalX, &p.LocalY, &p.LocalZ,
			&p.GlobalX, &p.GlobalY, &p.GlobalZ, &rawAreaID, &p.WorldLayer, &receivedMs); err != nil {
			return nil, err
		}
		p.RawAreaID = uint32(rawAreaID)
		p.TextualAreaID = worldmap.FormatAreaID(p.RawAreaID)
		received := time.UnixMilli(receivedMs).UTC()
		p.ServerReceivedAt = &received
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLite) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT channel_id FROM points ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		channels = append(channels, id)
	}
	return channels, rows.Err()
}

func (s *SQLite) LastActivity(ctx context.Context, channelID string) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(received_at_ms) FROM points WHERE channel_id = ?`, channelID).Scan(&ms)
	if err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

func (s *SQLite) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffMs := cutoff.UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention sweep: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("pointlog: rollback failed: %v", err)
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT channel_id FROM points GROUP BY channel_id HAVING MAX(received_at_ms) < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	var idle []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		idle = append(idle, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range idle {
		if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE channel_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to purge channel %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(idle), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Stats summarizes the log for the debug surfaces.
type Stats struct {
	Channels      int   `json:"channels"`
	Points        int64 `json:"points"`
	SizeBytes     int64 `json:"sizeBytes"`
	SchemaVersion uint  `json:"schemaVersion"`
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT channel_id), COUNT(*) FROM points`).Scan(&st.Channels, &st.Points); err != nil {
		return Stats{}, err
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Stats{}, err
	}
	st.SizeBytes = pageCount * pageSize

	version, _, err := schemaVersion(s.db)
	if err != nil {
		return Stats{}, err
	}
	st.SchemaVersion = version
	return st, nil
}
