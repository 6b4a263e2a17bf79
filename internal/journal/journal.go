// Package journal is the durable delivery log. Buffers record what happened
// to every event (delivered, bypassed, duplicate, late, dropped) and the
// stats command reads it back.
//
// Backed by SQLite with WAL mode. Recording is best-effort: a failed insert
// is logged and never fails a delivery.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/causewayio/causeway/internal/buffer"
	"github.com/causewayio/causeway/internal/event"
	"github.com/causewayio/causeway/internal/hlc"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial delivery_log schema
const currentSchemaVersion = 1

// Journal wraps the SQLite delivery log. It implements buffer.Recorder.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Entry is one row of the delivery log.
type Entry struct {
	Subscriber string         `json:"subscriber"`
	Outcome    buffer.Outcome `json:"outcome"`
	EventID    string         `json:"event_id"`
	Topic      string         `json:"topic"`
	Timestamp  hlc.Timestamp  `json:"timestamp"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithNowFunc substitutes the wall-clock source for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open creates or opens the journal database at path. Use ":memory:" for an
// ephemeral journal in tests.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// SQLite supports one writer at a time, so the pool is pinned to a single
// connection. Open is idempotent.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	j := &Journal{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record implements buffer.Recorder. Called from buffer actor goroutines;
// insert failures are logged, never propagated.
func (j *Journal) Record(subscriber string, outcome buffer.Outcome, ev *event.Event) {
	_, err := j.db.Exec(`
		INSERT INTO delivery_log
		(subscriber, outcome, event_id, topic, physical_ms, logical, node_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		subscriber,
		string(outcome),
		ev.ID,
		ev.Topic,
		ev.Timestamp.Physical,
		ev.Timestamp.Logical,
		ev.Timestamp.NodeID,
		j.now().UnixMilli(),
	)
	if err != nil {
		j.logger.Warn("journal insert failed",
			"subscriber", subscriber, "outcome", string(outcome), "error", err)
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Recent returns the newest n entries for a subscriber, most recent first.
func (j *Journal) Recent(ctx context.Context, subscriber string, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT subscriber, outcome, event_id, topic, physical_ms, logical, node_id, recorded_at
		FROM delivery_log
		WHERE subscriber = ?
		ORDER BY id DESC
		LIMIT ?
	`, subscriber, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		var recordedAt int64
		if err := rows.Scan(&e.Subscriber, &outcome, &e.EventID, &e.Topic,
			&e.Timestamp.Physical, &e.Timestamp.Logical, &e.Timestamp.NodeID, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Outcome = buffer.Outcome(outcome)
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Counts aggregates outcome totals for a subscriber. An empty subscriber
// aggregates across all of them.
func (j *Journal) Counts(ctx context.Context, subscriber string) (map[buffer.Outcome]int64, error) {
	query := `SELECT outcome, COUNT(*) FROM delivery_log GROUP BY outcome`
	args := []any{}
	if subscriber != "" {
		query = `SELECT outcome, COUNT(*) FROM delivery_log WHERE subscriber = ? GROUP BY outcome`
		args = append(args, subscriber)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[buffer.Outcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[buffer.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Subscribers lists every subscriber id present in the journal.
func (j *Journal) Subscribers(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT DISTINCT subscriber FROM delivery_log ORDER BY subscriber`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}
