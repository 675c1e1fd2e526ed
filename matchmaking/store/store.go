// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/volleylegends/matchbot/lib/sqlitepool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cooldowns (
		subject_key   TEXT PRIMARY KEY,
		touched_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS request_counters (
		host_id TEXT PRIMARY KEY,
		count   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS host_sessions (
		host_id       TEXT PRIMARY KEY,
		profile       BLOB NOT NULL,
		mode          TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		actor_id      TEXT NOT NULL,
		role          TEXT NOT NULL,
		profile       BLOB NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		PRIMARY KEY (actor_id, role)
	);

	CREATE TABLE IF NOT EXISTS channels (
		channel_id    TEXT PRIMARY KEY,
		host_id       TEXT NOT NULL,
		handle        TEXT NOT NULL,
		state         TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS channels_live_host
		ON channels (host_id) WHERE state != 'closed';

	CREATE TABLE IF NOT EXISTS channel_members (
		channel_id   TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		joined_at_ms INTEGER NOT NULL,
		PRIMARY KEY (channel_id, actor_id)
	);
`

// Error marks a storage failure. All Store methods wrap their
// underlying errors in *Error; callers treat any such failure as
// transient and retryable, never as permission to proceed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// SessionRow is a persisted host session. Profile is an opaque blob;
// the engine encodes and decodes it, the store does not look inside.
type SessionRow struct {
	HostID    string
	Profile   []byte
	Mode      string
	CreatedAt time.Time
}

// ChannelRow is a persisted ephemeral channel with its member set.
type ChannelRow struct {
	ChannelID string
	HostID    string
	Handle    string
	State     string
	CreatedAt time.Time
	Members   []string
}

// Store provides keyed access to the engine's durable records.
type Store struct {
	pool *sqlitepool.Pool
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the database file, or ":memory:" for tests.
	Path string

	// PoolSize is the connection pool size. ":memory:" requires 1.
	PoolSize int

	// Logger receives pool lifecycle messages. Nil means discard.
	Logger *slog.Logger
}

// Open opens the database and creates the schema.
func Open(cfg Config) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// --- Cooldowns ---

// GetCooldown returns the last touch time for a subject key, and
// whether a record exists.
func (s *Store) GetCooldown(ctx context.Context, subjectKey string) (time.Time, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return time.Time{}, false, wrap("get cooldown", err)
	}
	defer s.pool.Put(conn)

	var touched time.Time
	var found bool
	err = sqlitex.Execute(conn, `SELECT touched_at_ms FROM cooldowns WHERE subject_key = ?`, &sqlitex.ExecOptions{
		Args: []any{subjectKey},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			touched = time.UnixMilli(stmt.ColumnInt64(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return time.Time{}, false, wrap("get cooldown", err)
	}
	return touched, found, nil
}

// TouchCooldown records now as the subject's last qualifying action,
// overwriting any earlier timestamp. Last write wins; no history.
func (s *Store) TouchCooldown(ctx context.Context, subjectKey string, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("touch cooldown", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO cooldowns (subject_key, touched_at_ms) VALUES (?, ?)
		ON CONFLICT (subject_key) DO UPDATE SET touched_at_ms = excluded.touched_at_ms`,
		&sqlitex.ExecOptions{Args: []any{subjectKey, now.UnixMilli()}})
	if err != nil {
		return wrap("touch cooldown", err)
	}
	return nil
}

// PruneCooldowns deletes records last touched before the cutoff and
// returns how many went away. Storage hygiene only — reads already
// treat stale records as cold.
func (s *Store) PruneCooldowns(ctx context.Context, before time.Time) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, wrap("prune cooldowns", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM cooldowns WHERE touched_at_ms < ?`,
		&sqlitex.ExecOptions{Args: []any{before.UnixMilli()}})
	if err != nil {
		return 0, wrap("prune cooldowns", err)
	}
	return conn.Changes(), nil
}

// --- Request counters ---

// ResetCounter sets the host's counter to zero, creating the record
// if absent. Idempotent.
func (s *Store) ResetCounter(ctx context.Context, hostID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("reset counter", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO request_counters (host_id, count) VALUES (?, 0)
		ON CONFLICT (host_id) DO UPDATE SET count = 0`,
		&sqlitex.ExecOptions{Args: []any{hostID}})
	if err != nil {
		return wrap("reset counter", err)
	}
	return nil
}

// IncrementCounter atomically adds one to the host's counter and
// returns the post-increment value. A missing record starts at 1.
// The single upsert-returning statement is what makes concurrent
// increments safe; do not replace it with a read followed by a write.
func (s *Store) IncrementCounter(ctx context.Context, hostID string) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, wrap("increment counter", err)
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, `
		INSERT INTO request_counters (host_id, count) VALUES (?, 1)
		ON CONFLICT (host_id) DO UPDATE SET count = count + 1
		RETURNING count`,
		&sqlitex.ExecOptions{
			Args: []any{hostID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, wrap("increment counter", err)
	}
	return count, nil
}

// --- Host sessions ---

// PutSession stores the host's current session, superseding any
// previous one for the same host.
func (s *Store) PutSession(ctx context.Context, row SessionRow) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("put session", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO host_sessions (host_id, profile, mode, created_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT (host_id) DO UPDATE SET
			profile = excluded.profile,
			mode = excluded.mode,
			created_at_ms = excluded.created_at_ms`,
		&sqlitex.ExecOptions{Args: []any{row.HostID, row.Profile, row.Mode, row.CreatedAt.UnixMilli()}})
	if err != nil {
		return wrap("put session", err)
	}
	return nil
}

// GetSession returns the host's current session, if any.
func (s *Store) GetSession(ctx context.Context, hostID string) (SessionRow, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return SessionRow{}, false, wrap("get session", err)
	}
	defer s.pool.Put(conn)

	var row SessionRow
	var found bool
	err = sqlitex.Execute(conn, `
		SELECT host_id, profile, mode, created_at_ms FROM host_sessions WHERE host_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{hostID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row = SessionRow{
					HostID:    stmt.ColumnText(0),
					Profile:   columnBlob(stmt, 1),
					Mode:      stmt.ColumnText(2),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(3)),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return SessionRow{}, false, wrap("get session", err)
	}
	return row, found, nil
}

// --- Profile snapshots ---

// PutProfile stores an actor's last submitted profile for a role
// ("host" or "player"), independent of any session lifetime.
func (s *Store) PutProfile(ctx context.Context, actorID, role string, profile []byte, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("put profile", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO profiles (actor_id, role, profile, updated_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT (actor_id, role) DO UPDATE SET
			profile = excluded.profile,
			updated_at_ms = excluded.updated_at_ms`,
		&sqlitex.ExecOptions{Args: []any{actorID, role, profile, now.UnixMilli()}})
	if err != nil {
		return wrap("put profile", err)
	}
	return nil
}

// GetProfile returns an actor's last profile snapshot for a role.
func (s *Store) GetProfile(ctx context.Context, actorID, role string) ([]byte, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, wrap("get profile", err)
	}
	defer s.pool.Put(conn)

	var profile []byte
	var found bool
	err = sqlitex.Execute(conn, `SELECT profile FROM profiles WHERE actor_id = ? AND role = ?`,
		&sqlitex.ExecOptions{
			Args: []any{actorID, role},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				profile = columnBlob(stmt, 0)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, false, wrap("get profile", err)
	}
	return profile, found, nil
}

// --- Channels ---

// CreateChannel inserts a channel row in state open with the host as
// its first member. Returns false without mutating anything when the
// host already has a non-closed channel — the partial unique index is
// the compare-and-create primitive here.
func (s *Store) CreateChannel(ctx context.Context, row ChannelRow) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, wrap("create channel", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, wrap("create channel", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO channels (channel_id, host_id, handle, state, created_at_ms)
		VALUES (?, ?, ?, 'open', ?)
		ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{row.ChannelID, row.HostID, row.Handle, row.CreatedAt.UnixMilli()}})
	if err != nil {
		return false, wrap("create channel", err)
	}
	if conn.Changes() == 0 {
		return false, nil
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO channel_members (channel_id, actor_id, joined_at_ms) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{row.ChannelID, row.HostID, row.CreatedAt.UnixMilli()}})
	if err != nil {
		return false, wrap("create channel", err)
	}
	return true, nil
}

// GetChannel returns a channel and its members by ID.
func (s *Store) GetChannel(ctx context.Context, channelID string) (ChannelRow, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ChannelRow{}, false, wrap("get channel", err)
	}
	defer s.pool.Put(conn)
	return s.getChannel(conn, `WHERE channel_id = ?`, channelID)
}

// GetLiveChannel returns the host's non-closed channel, if any.
func (s *Store) GetLiveChannel(ctx context.Context, hostID string) (ChannelRow, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ChannelRow{}, false, wrap("get live channel", err)
	}
	defer s.pool.Put(conn)
	return s.getChannel(conn, `WHERE host_id = ? AND state != 'closed'`, hostID)
}

func (s *Store) getChannel(conn *sqlite.Conn, where, arg string) (ChannelRow, bool, error) {
	var row ChannelRow
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT channel_id, host_id, handle, state, created_at_ms FROM channels `+where,
		&sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row = ChannelRow{
					ChannelID: stmt.ColumnText(0),
					HostID:    stmt.ColumnText(1),
					Handle:    stmt.ColumnText(2),
					State:     stmt.ColumnText(3),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(4)),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return ChannelRow{}, false, wrap("get channel", err)
	}
	if !found {
		return ChannelRow{}, false, nil
	}

	err = sqlitex.Execute(conn, `
		SELECT actor_id FROM channel_members WHERE channel_id = ? ORDER BY joined_at_ms, actor_id`,
		&sqlitex.ExecOptions{
			Args: []any{row.ChannelID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row.Members = append(row.Members, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return ChannelRow{}, false, wrap("get channel members", err)
	}
	return row, true, nil
}

// ListLiveChannels returns every non-closed channel. Used once at
// startup to reschedule expiry deadlines.
func (s *Store) ListLiveChannels(ctx context.Context) ([]ChannelRow, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, wrap("list live channels", err)
	}
	defer s.pool.Put(conn)

	var ids []string
	err = sqlitex.Execute(conn, `SELECT channel_id FROM channels WHERE state != 'closed'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, wrap("list live channels", err)
	}

	rows := make([]ChannelRow, 0, len(ids))
	for _, id := range ids {
		row, found, err := s.getChannel(conn, `WHERE channel_id = ?`, id)
		if err != nil {
			return nil, err
		}
		if found {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// AddChannelMember records an actor in the channel's member set.
// Adding a present member is a no-op.
func (s *Store) AddChannelMember(ctx context.Context, channelID, actorID string, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("add channel member", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO channel_members (channel_id, actor_id, joined_at_ms) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{channelID, actorID, now.UnixMilli()}})
	if err != nil {
		return wrap("add channel member", err)
	}
	return nil
}

// RemoveChannelMember removes an actor from the member set. Used only
// to unwind a member insert whose access grant failed.
func (s *Store) RemoveChannelMember(ctx context.Context, channelID, actorID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("remove channel member", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM channel_members WHERE channel_id = ? AND actor_id = ?`,
		&sqlitex.ExecOptions{Args: []any{channelID, actorID}})
	if err != nil {
		return wrap("remove channel member", err)
	}
	return nil
}

// SetChannelState updates a channel's lifecycle state.
func (s *Store) SetChannelState(ctx context.Context, channelID, state string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return wrap("set channel state", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE channels SET state = ? WHERE channel_id = ?`,
		&sqlitex.ExecOptions{Args: []any{state, channelID}})
	if err != nil {
		return wrap("set channel state", err)
	}
	return nil
}

// columnBlob copies a blob column out of the statement. The statement
// reuses its buffer across rows, so the copy is required.
func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}
