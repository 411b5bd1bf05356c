package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/pinglog/internal/probe"
)

const schema = `
CREATE TABLE IF NOT EXISTS pings (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    host        TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    rtt_ms      INTEGER NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pings_host ON pings(host);
CREATE INDEX IF NOT EXISTS idx_pings_checked_at ON pings(checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_pings_host_checked ON pings(host, checked_at DESC);

CREATE TABLE IF NOT EXISTS speeds (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    mbps        REAL    NOT NULL,
    bytes       INTEGER NOT NULL,
    elapsed_ms  INTEGER NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    measured_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_speeds_measured_at ON speeds(measured_at DESC);
`

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ping is a stored probe result.
type Ping struct {
	ID        int64     `json:"id"`
	Host      string    `json:"host"`
	Status    string    `json:"status"`
	RTTMs     int64     `json:"rtt_ms"`
	Error     string    `json:"error"`
	CheckedAt time.Time `json:"checked_at"`
}

// Speed is a stored speed test outcome. Error is set when the test failed.
type Speed struct {
	ID         int64     `json:"id"`
	MBps       float64   `json:"mbps"`
	Bytes      int64     `json:"bytes"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Error      string    `json:"error"`
	MeasuredAt time.Time `json:"measured_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertPing persists a probe result.
func (d *DB) InsertPing(ctx context.Context, r probe.Result) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO pings (host, status, rtt_ms, error, checked_at) VALUES (?, ?, ?, ?, ?)`,
		r.Host,
		string(r.Status),
		r.RTT.Milliseconds(),
		r.Error,
		r.CheckedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting ping for %q: %w", r.Host, err)
	}
	return nil
}

// LatestPing returns the most recent result for host, or nil if none.
func (d *DB) LatestPing(ctx context.Context, host string) (*Ping, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, host, status, rtt_ms, error, checked_at FROM pings WHERE host = ? ORDER BY checked_at DESC LIMIT 1`,
		host,
	)
	p, err := scanPing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest ping for %q: %w", host, err)
	}
	return p, nil
}

// PingHistory returns paginated results for host plus the total count.
func (d *DB) PingHistory(ctx context.Context, host string, limit, offset int) ([]Ping, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pings WHERE host = ?`, host,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting pings for %q: %w", host, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, host, status, rtt_ms, error, checked_at FROM pings WHERE host = ? ORDER BY checked_at DESC LIMIT ? OFFSET ?`,
		host, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", host, err)
	}
	defer rows.Close()

	pings, err := scanPings(rows)
	if err != nil {
		return nil, 0, err
	}
	return pings, total, nil
}

// PingsBetween returns all results checked in [from, to), oldest first.
func (d *DB) PingsBetween(ctx context.Context, from, to time.Time) ([]Ping, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, host, status, rtt_ms, error, checked_at FROM pings WHERE checked_at >= ? AND checked_at < ? ORDER BY checked_at ASC`,
		from.UTC().Format(timeLayout),
		to.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying pings between %s and %s: %w", from, to, err)
	}
	defer rows.Close()
	return scanPings(rows)
}

// AllLatest returns the most recent result for each host.
func (d *DB) AllLatest(ctx context.Context) ([]Ping, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, host, status, rtt_ms, error, checked_at
		FROM pings
		WHERE id IN (
			SELECT MAX(id) FROM pings GROUP BY host
		)
		ORDER BY host
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanPings(rows)
}

// UptimePercent returns the percentage of "up" results in the last N probes of host.
func (d *DB) UptimePercent(ctx context.Context, host string, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM pings WHERE host = ? ORDER BY checked_at DESC LIMIT ?
		)
	`, host, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", host, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

// InsertSpeed persists a speed test outcome.
func (d *DB) InsertSpeed(ctx context.Context, s Speed) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO speeds (mbps, bytes, elapsed_ms, error, measured_at) VALUES (?, ?, ?, ?, ?)`,
		s.MBps,
		s.Bytes,
		s.ElapsedMs,
		s.Error,
		s.MeasuredAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting speed: %w", err)
	}
	return nil
}

// SpeedHistory returns the most recent speed tests, newest first.
func (d *DB) SpeedHistory(ctx context.Context, limit int) ([]Speed, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, mbps, bytes, elapsed_ms, error, measured_at FROM speeds ORDER BY measured_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying speed history: %w", err)
	}
	defer rows.Close()

	var speeds []Speed
	for rows.Next() {
		var s Speed
		var measuredAt string
		if err := rows.Scan(&s.ID, &s.MBps, &s.Bytes, &s.ElapsedMs, &s.Error, &measuredAt); err != nil {
			return nil, fmt.Errorf("scanning speed row: %w", err)
		}
		t, err := parseTime(measuredAt)
		if err != nil {
			return nil, err
		}
		s.MeasuredAt = t
		speeds = append(speeds, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating speed rows: %w", err)
	}
	return speeds, nil
}

// LatestSpeed returns the most recent speed test, or nil if none.
func (d *DB) LatestSpeed(ctx context.Context) (*Speed, error) {
	speeds, err := d.SpeedHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(speeds) == 0 {
		return nil, nil
	}
	return &speeds[0], nil
}

// Prune deletes pings and speed tests recorded before cutoff and returns the
// number of rows removed.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(timeLayout)

	var removed int64
	for _, q := range []string{
		`DELETE FROM pings WHERE checked_at < ?`,
		`DELETE FROM speeds WHERE measured_at < ?`,
	} {
		res, err := d.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return removed, fmt.Errorf("pruning history: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPing(row scanner) (*Ping, error) {
	var p Ping
	var checkedAt string
	err := row.Scan(&p.ID, &p.Host, &p.Status, &p.RTTMs, &p.Error, &checkedAt)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(checkedAt)
	if err != nil {
		return nil, err
	}
	p.CheckedAt = t
	return &p, nil
}

func scanPings(rows *sql.Rows) ([]Ping, error) {
	var pings []Ping
	for rows.Next() {
		p, err := scanPing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ping row: %w", err)
		}
		pings = append(pings, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ping rows: %w", err)
	}
	return pings, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t, nil
}
