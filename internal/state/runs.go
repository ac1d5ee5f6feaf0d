package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

const (
	sqlInsertRun = `INSERT INTO runs
		(id, source, kind, status, started_at, duration_ms, pages, discovered,
		 relevant, emitted, skipped, committed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, kind, status, started_at, duration_ms, pages,
		discovered, relevant, emitted, skipped, committed, error
		FROM runs WHERE source = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`

	sqlCursorInfo = `SELECT updated_at FROM cursors WHERE scope_key = ?`
	sqlSeenCount  = `SELECT COUNT(*) FROM seen_ids WHERE scope_key = ?`
)

// RunRecord is one row of the run journal.
type RunRecord struct {
	ID         string
	Kind       poll.RunKind
	Status     string
	StartedAt  time.Time
	Duration   time.Duration
	Pages      int
	Discovered int
	Relevant   int
	Emitted    int
	Skipped    int
	Committed  bool
	Error      string
}

// SourceStatus is a summary of one source for status tables.
type SourceStatus struct {
	Lifecycle   poll.Lifecycle
	CursorSaved time.Time // zero when no cursor was ever committed
	SeenCount   int
	LastRun     *RunRecord
}

// RecordRun appends a run report to the journal.
func (s *Store) RecordRun(ctx context.Context, rep *poll.RunReport) error {
	var errText string
	if rep.Err != nil {
		errText = rep.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, sqlInsertRun,
		rep.RunID, rep.Source, string(rep.Kind), rep.Status(),
		rep.StartedAt.UnixNano(), rep.Duration.Milliseconds(),
		rep.Pages, rep.Discovered, rep.Relevant, rep.Emitted, rep.Skipped,
		rep.Committed, nullString(errText),
	)
	if err != nil {
		return storageErr(fmt.Errorf("journaling run %s: %w", rep.RunID, err))
	}

	return nil
}

// RecentRuns returns up to limit journal rows for a source, newest first.
func (s *Store) RecentRuns(ctx context.Context, source string, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, source, limit)
	if err != nil {
		return nil, storageErr(fmt.Errorf("listing runs of %s: %w", source, err))
	}
	defer rows.Close()

	var out []RunRecord

	for rows.Next() {
		rec, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(fmt.Errorf("iterating runs of %s: %w", source, err))
	}

	return out, nil
}

func scanRunRow(rows *sql.Rows) (*RunRecord, error) {
	var (
		r         RunRecord
		kind      string
		startedAt int64
		durMs     int64
		errText   sql.NullString
	)

	err := rows.Scan(&r.ID, &kind, &r.Status, &startedAt, &durMs, &r.Pages,
		&r.Discovered, &r.Relevant, &r.Emitted, &r.Skipped, &r.Committed, &errText)
	if err != nil {
		return nil, storageErr(fmt.Errorf("scanning run row: %w", err))
	}

	r.Kind = poll.RunKind(kind)
	r.StartedAt = time.Unix(0, startedAt)
	r.Duration = time.Duration(durMs) * time.Millisecond
	r.Error = errText.String

	return &r, nil
}

// Status summarizes a source for the sources table.
func (s *Store) Status(ctx context.Context, source, scopeKey string) (*SourceStatus, error) {
	life, err := s.Lifecycle(ctx, source)
	if err != nil {
		return nil, err
	}

	st := &SourceStatus{Lifecycle: life}

	var updated int64

	err = s.db.QueryRowContext(ctx, sqlCursorInfo, scopeKey).Scan(&updated)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, storageErr(fmt.Errorf("loading cursor info for %s: %w", scopeKey, err))
	default:
		st.CursorSaved = time.Unix(0, updated)
	}

	if err := s.db.QueryRowContext(ctx, sqlSeenCount, scopeKey).Scan(&st.SeenCount); err != nil {
		return nil, storageErr(fmt.Errorf("counting seen ids for %s: %w", scopeKey, err))
	}

	runs, err := s.RecentRuns(ctx, source, 1)
	if err != nil {
		return nil, err
	}

	if len(runs) > 0 {
		st.LastRun = &runs[0]
	}

	return st, nil
}
