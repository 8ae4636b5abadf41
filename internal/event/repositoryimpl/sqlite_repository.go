// Package repositoryimpl provides the SQLite-backed event store.
//
// SQLite in WAL mode gives the log its durability boundary: Insert does not
// return until the row is committed, so an acknowledged append survives a
// process crash.
package repositoryimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crewdhq/crewd/internal/event"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database and initializes the
// schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id      TEXT NOT NULL UNIQUE,
		ts            INTEGER NOT NULL,
		actor_id      TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_path TEXT,
		task_id       TEXT,
		before_hash   TEXT,
		after_hash    TEXT,
		metadata      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor_id, ts);
	CREATE INDEX IF NOT EXISTS idx_events_action ON events(action, ts);
	CREATE INDEX IF NOT EXISTS idx_events_resource ON events(resource_path, ts);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *event.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (event_id, ts, actor_id, action, resource_path, task_id, before_hash, after_hash, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.ActorID, string(e.Action),
		e.ResourcePath, e.TaskID, e.BeforeHash, e.AfterHash, string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.Seq = seq
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, q event.Query) ([]*event.Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = event.DefaultQueryLimit
	}
	if limit > event.MaxQueryLimit {
		limit = event.MaxQueryLimit
	}

	var conds []string
	var args []any
	if q.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, q.ActorID)
	}
	if q.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(q.Action))
	}
	if q.ResourcePath != "" {
		conds = append(conds, "resource_path = ?")
		args = append(args, q.ResourcePath)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.IncludeHeartbeats {
		conds = append(conds, "action != ?")
		args = append(args, string(event.ActionAgentHeartbeat))
	}

	query := `SELECT seq, event_id, ts, actor_id, action,
	                 COALESCE(resource_path,''), COALESCE(task_id,''),
	                 COALESCE(before_hash,''), COALESCE(after_hash,''),
	                 COALESCE(metadata,'')
	          FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *SQLiteRepository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = event.DefaultQueryLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, event_id, ts, actor_id, action,
		        COALESCE(resource_path,''), COALESCE(task_id,''),
		        COALESCE(before_hash,''), COALESCE(after_hash,''),
		        COALESCE(metadata,'')
		 FROM events WHERE seq > ?
		 ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events after %d: %w", afterSeq, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func scanEvents(rows *sql.Rows) ([]*event.Event, error) {
	var events []*event.Event
	for rows.Next() {
		var e event.Event
		var ts int64
		var action, meta string
		if err := rows.Scan(&e.Seq, &e.ID, &ts, &e.ActorID, &action,
			&e.ResourcePath, &e.TaskID, &e.BeforeHash, &e.AfterHash, &meta); err != nil {
			return nil, err
		}
		e.Action = event.Action(action)
		e.Timestamp = time.UnixMilli(ts).UTC()
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for event %s: %w", e.ID, err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
