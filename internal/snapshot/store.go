package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"orarsync/internal/model"
)

// Store persists schedule snapshots in a local SQLite database, one row
// per (group, week). A later run must be able to load what an earlier run
// saved and diff it against a fresh fetch, so the payload is the plain
// JSON encoding of the week's lessons, occurrence ids included.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	group_name  TEXT    NOT NULL,
	week        INTEGER NOT NULL,
	captured_at TEXT    NOT NULL,
	payload     TEXT    NOT NULL,
	PRIMARY KEY (group_name, week)
);
`

// Open opens (creating if needed) the snapshot database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	// The store is only ever touched by one process at a time; a single
	// connection avoids SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the schedule as the new baseline, superseding any previous
// snapshot of the same (group, week) rows. All weeks are written in one
// transaction so a failed save never leaves a half-updated baseline.
func (s *Store) Save(ctx context.Context, sched *model.Schedule, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (group_name, week, captured_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (group_name, week) DO UPDATE
		SET captured_at = excluded.captured_at, payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare save: %w", err)
	}
	defer stmt.Close()

	capturedAt := at.UTC().Format(time.RFC3339Nano)
	for _, week := range sched.Weeks {
		payload, err := json.Marshal(sched.Lessons[week])
		if err != nil {
			return fmt.Errorf("snapshot: encode week %d: %w", week, err)
		}
		if _, err := stmt.ExecContext(ctx, sched.Group, week, capturedAt, string(payload)); err != nil {
			return fmt.Errorf("snapshot: save week %d: %w", week, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit save: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for the given group restricted to the
// requested weeks. Weeks with no stored baseline are simply absent from
// the result; the diff ignores non-overlapping weeks anyway. The second
// return value is false when nothing at all is stored for these weeks.
func (s *Store) Load(ctx context.Context, group string, weeks []int) (*model.Snapshot, bool, error) {
	snap := &model.Snapshot{
		Schedule: &model.Schedule{
			Group:   group,
			Lessons: make(map[int][]model.Lesson, len(weeks)),
		},
	}

	stmt, err := s.db.PrepareContext(ctx,
		`SELECT captured_at, payload FROM snapshots WHERE group_name = ? AND week = ?`)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: prepare load: %w", err)
	}
	defer stmt.Close()

	found := false
	for _, week := range weeks {
		var capturedAt, payload string
		err := stmt.QueryRowContext(ctx, group, week).Scan(&capturedAt, &payload)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("snapshot: load week %d: %w", week, err)
		}

		var lessons []model.Lesson
		if err := json.Unmarshal([]byte(payload), &lessons); err != nil {
			return nil, false, fmt.Errorf("snapshot: decode week %d: %w", week, err)
		}

		snap.Schedule.Weeks = append(snap.Schedule.Weeks, week)
		snap.Schedule.Lessons[week] = lessons
		if at, err := time.Parse(time.RFC3339Nano, capturedAt); err == nil && at.After(snap.CapturedAt) {
			snap.CapturedAt = at
		}
		found = true
	}

	if !found {
		return nil, false, nil
	}
	return snap, true, nil
}
