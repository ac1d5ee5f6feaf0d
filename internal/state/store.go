// Package state persists source state in SQLite: cursors, the bounded seen
// window, the scope node index, source lifecycle, and the run journal.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

const (
	sqlGetCursor = `SELECT cursor FROM cursors WHERE scope_key = ?`

	sqlUpsertCursor = `INSERT INTO cursors (scope_key, cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
		 cursor = excluded.cursor,
		 updated_at = excluded.updated_at`

	sqlListSeen = `SELECT item_id FROM seen_ids WHERE scope_key = ? ORDER BY seq`

	sqlInsertSeen = `INSERT INTO seen_ids (scope_key, item_id, seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(scope_key, item_id) DO NOTHING`

	// Keep the newest bound rows per scope; seq is monotonic.
	sqlTrimSeen = `DELETE FROM seen_ids WHERE scope_key = ? AND seq NOT IN (
		SELECT seq FROM seen_ids WHERE scope_key = ? ORDER BY seq DESC LIMIT ?)`

	sqlListNodes   = `SELECT node_id FROM scope_nodes WHERE scope_key = ?`
	sqlDeleteNodes = `DELETE FROM scope_nodes WHERE scope_key = ?`
	sqlInsertNode  = `INSERT INTO scope_nodes (scope_key, node_id) VALUES (?, ?)`

	sqlGetLifecycle = `SELECT lifecycle FROM sources WHERE name = ?`

	sqlUpsertLifecycle = `INSERT INTO sources (name, lifecycle, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		 lifecycle = excluded.lifecycle,
		 updated_at = excluded.updated_at`

	sqlDeleteCursor = `DELETE FROM cursors WHERE scope_key = ?`
	sqlDeleteSeen   = `DELETE FROM seen_ids WHERE scope_key = ?`
	sqlDeleteSource = `DELETE FROM sources WHERE name = ?`
)

// Store is the sole writer to the state database. Safe for concurrent use:
// the pool holds a single connection, so statements serialize.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

var (
	_ poll.CursorStore = (*Store)(nil)
	_ poll.RunJournal  = (*Store)(nil)
)

// Open opens the SQLite database at dbPath, runs migrations, and returns a
// ready-to-use store. The database uses WAL mode with synchronous=FULL so a
// committed cursor survives power loss.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr(fmt.Errorf("opening database %s: %w", dbPath, err))
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, storageErr(err)
	}

	logger.Debug("state store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// storageErr tags err as a storage failure for run classification.
func storageErr(err error) error {
	return fmt.Errorf("state: %w: %w", poll.ErrStorage, err)
}

// LoadState reads cursor, seen window (oldest first) and node index for a
// scope key. A key never committed yields an empty state.
func (s *Store) LoadState(ctx context.Context, scopeKey string) (*poll.SourceState, error) {
	st := &poll.SourceState{}

	var cursor string

	err := s.db.QueryRowContext(ctx, sqlGetCursor, scopeKey).Scan(&cursor)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, storageErr(fmt.Errorf("loading cursor for %s: %w", scopeKey, err))
	default:
		st.Cursor = poll.Cursor(cursor)
		st.Committed = true
	}

	if st.Seen, err = s.strings(ctx, sqlListSeen, scopeKey); err != nil {
		return nil, storageErr(fmt.Errorf("loading seen window for %s: %w", scopeKey, err))
	}

	if st.Nodes, err = s.strings(ctx, sqlListNodes, scopeKey); err != nil {
		return nil, storageErr(fmt.Errorf("loading scope nodes for %s: %w", scopeKey, err))
	}

	return st, nil
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, rows.Err()
}

// MarkSeen appends id to the scope's seen window and trims the window to
// bound in one transaction. Re-marking an id keeps its original position.
func (s *Store) MarkSeen(ctx context.Context, scopeKey, id string, bound int) error {
	if bound <= 0 {
		bound = poll.DefaultSeenBound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(fmt.Errorf("beginning mark-seen transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlInsertSeen, scopeKey, id, s.nowFunc().UnixNano()); err != nil {
		return storageErr(fmt.Errorf("recording seen id %s: %w", id, err))
	}

	if _, err := tx.ExecContext(ctx, sqlTrimSeen, scopeKey, scopeKey, bound); err != nil {
		return storageErr(fmt.Errorf("trimming seen window for %s: %w", scopeKey, err))
	}

	if err := tx.Commit(); err != nil {
		return storageErr(fmt.Errorf("committing seen id %s: %w", id, err))
	}

	return nil
}

// Commit replaces the cursor and node index of a scope in one transaction.
func (s *Store) Commit(ctx context.Context, scopeKey string, cursor poll.Cursor, nodes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(fmt.Errorf("beginning commit transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlUpsertCursor, scopeKey, string(cursor), s.nowFunc().UnixNano()); err != nil {
		return storageErr(fmt.Errorf("saving cursor for %s: %w", scopeKey, err))
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteNodes, scopeKey); err != nil {
		return storageErr(fmt.Errorf("clearing scope nodes for %s: %w", scopeKey, err))
	}

	for _, node := range nodes {
		if _, err := tx.ExecContext(ctx, sqlInsertNode, scopeKey, node); err != nil {
			return storageErr(fmt.Errorf("saving scope node %s: %w", node, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(fmt.Errorf("committing cursor for %s: %w", scopeKey, err))
	}

	s.logger.Debug("cursor committed",
		slog.String("scope", scopeKey),
		slog.Int("nodes", len(nodes)),
	)

	return nil
}

// Lifecycle returns the persisted lifecycle of a source. Unknown sources are
// unconfigured.
func (s *Store) Lifecycle(ctx context.Context, source string) (poll.Lifecycle, error) {
	var life string

	err := s.db.QueryRowContext(ctx, sqlGetLifecycle, source).Scan(&life)
	if errors.Is(err, sql.ErrNoRows) {
		return poll.Unconfigured, nil
	}

	if err != nil {
		return "", storageErr(fmt.Errorf("loading lifecycle of %s: %w", source, err))
	}

	return poll.Lifecycle(life), nil
}

// SetLifecycle persists the lifecycle of a source.
func (s *Store) SetLifecycle(ctx context.Context, source string, life poll.Lifecycle) error {
	_, err := s.db.ExecContext(ctx, sqlUpsertLifecycle, source, string(life), s.nowFunc().UnixNano())
	if err != nil {
		return storageErr(fmt.Errorf("saving lifecycle of %s: %w", source, err))
	}

	return nil
}

// Reset forgets everything about a source: its cursor, seen window and node
// index are dropped and the source returns to unconfigured. The run journal
// is kept.
func (s *Store) Reset(ctx context.Context, source, scopeKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(fmt.Errorf("beginning reset transaction: %w", err))
	}
	defer tx.Rollback()

	for _, q := range []string{sqlDeleteCursor, sqlDeleteSeen, sqlDeleteNodes} {
		if _, err := tx.ExecContext(ctx, q, scopeKey); err != nil {
			return storageErr(fmt.Errorf("resetting %s: %w", scopeKey, err))
		}
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteSource, source); err != nil {
		return storageErr(fmt.Errorf("resetting source %s: %w", source, err))
	}

	if err := tx.Commit(); err != nil {
		return storageErr(fmt.Errorf("committing reset of %s: %w", source, err))
	}

	s.logger.Info("source reset", slog.String("source", source), slog.String("scope", scopeKey))

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Nullable helper: empty string → NULL in SQLite.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
