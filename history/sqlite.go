package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sky-flux/tutor"
)

// SQLiteStore keeps snapshots and rounds in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and initializes the
// schema. Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			ability REAL NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			session_id TEXT NOT NULL,
			learner TEXT,
			ended_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_session_id ON rounds(session_id)`,
	}
	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession upserts the snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, snap tutor.Snapshot) error {
	if _, err := uuid.Parse(snap.ID); err != nil {
		return fmt.Errorf("%w: id %q", tutor.ErrInvalidSnapshot, snap.ID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, snapshot, ability, updated_at) VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, ability = excluded.ability,
			updated_at = excluded.updated_at`,
		snap.ID, string(data), snap.Ability)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored snapshot or ErrNotFound.
func (s *SQLiteStore) LoadSession(ctx context.Context, id uuid.UUID) (tutor.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return tutor.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return tutor.Snapshot{}, fmt.Errorf("load session: %w", err)
	}
	var snap tutor.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return tutor.Snapshot{}, fmt.Errorf("%w: %v", tutor.ErrInvalidSnapshot, err)
	}
	return snap, nil
}

// Sessions lists stored session ids in lexical order.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// AppendRound inserts a round summary.
func (s *SQLiteStore) AppendRound(ctx context.Context, r Round) error {
	if err := r.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, session_id, learner, ended_at, payload) VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.SessionID.String(), r.Learner, r.EndedAt.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("append round: %w", err)
	}
	return nil
}

// RecentRounds returns the last n rounds in insertion order.
func (s *SQLiteStore) RecentRounds(ctx context.Context, n int) ([]Round, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, payload FROM rounds ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	type row struct {
		seq   int64
		round Round
	}
	var out []row
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		var r Round
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			continue
		}
		out = append(out, row{seq, r})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	rounds := make([]Round, len(out))
	for i, r := range out {
		rounds[i] = r.round
	}
	return rounds, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
