package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ihiteshgupta/avatar-client/internal/state"
)

// SQLiteStore implements all repositories using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	Histories *SQLiteHistoryRepo
	Settings  *SQLiteSettingsRepo
	State     *SQLiteStateRepo
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		Histories: &SQLiteHistoryRepo{db: db},
		Settings:  &SQLiteSettingsRepo{db: db},
		State:     &SQLiteStateRepo{db: db},
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	migration := `
	-- Histories table, ordered as the backend lists them
	CREATE TABLE IF NOT EXISTS histories (
		uid TEXT PRIMARY KEY,
		position INTEGER NOT NULL DEFAULT 0,
		latest_role TEXT NOT NULL DEFAULT '',
		latest_content TEXT NOT NULL DEFAULT '',
		latest_timestamp TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_histories_position ON histories(position);

	-- Current history selection
	CREATE TABLE IF NOT EXISTS history_selection (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		uid TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	INSERT OR IGNORE INTO history_selection (id, uid, updated_at)
	VALUES (1, '', CURRENT_TIMESTAMP);

	-- User overrides (ws url, base url, debug mode)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Readiness status
	CREATE TABLE IF NOT EXISTS client_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	INSERT OR IGNORE INTO client_state (id, state, updated_at)
	VALUES (1, 'disconnected', CURRENT_TIMESTAMP);

	-- Readiness transitions
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		trigger TEXT NOT NULL,
		transport_state TEXT NOT NULL DEFAULT '',
		history_uid TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(migration)
	return err
}

// SQLiteHistoryRepo implements HistoryRepository.
type SQLiteHistoryRepo struct {
	db *sql.DB
}

func (r *SQLiteHistoryRepo) ReplaceAll(ctx context.Context, histories []History) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM histories"); err != nil {
		return err
	}

	now := time.Now()
	for i, h := range histories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO histories (uid, position, latest_role, latest_content, latest_timestamp, timestamp, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO NOTHING
		`, h.UID, i, h.LatestRole, h.LatestContent, h.LatestTimestamp, h.Timestamp, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLiteHistoryRepo) Prepend(ctx context.Context, h *History) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM histories WHERE uid = ?", h.UID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE histories SET position = position + 1"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO histories (uid, position, latest_role, latest_content, latest_timestamp, timestamp, updated_at)
		VALUES (?, 0, ?, ?, ?, ?, ?)
	`, h.UID, h.LatestRole, h.LatestContent, h.LatestTimestamp, h.Timestamp, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteHistoryRepo) List(ctx context.Context) ([]History, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uid, position, latest_role, latest_content, latest_timestamp, timestamp, updated_at
		FROM histories ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []History
	for rows.Next() {
		var h History
		err := rows.Scan(&h.UID, &h.Position, &h.LatestRole, &h.LatestContent, &h.LatestTimestamp, &h.Timestamp, &h.UpdatedAt)
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

func (r *SQLiteHistoryRepo) Delete(ctx context.Context, uid string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM histories WHERE uid = ?", uid)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteHistoryRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM histories").Scan(&count)
	return count, err
}

func (r *SQLiteHistoryRepo) GetSelection(ctx context.Context) (string, error) {
	var uid string
	err := r.db.QueryRowContext(ctx, "SELECT uid FROM history_selection WHERE id = 1").Scan(&uid)
	return uid, err
}

func (r *SQLiteHistoryRepo) SetSelection(ctx context.Context, uid string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE history_selection SET uid = ?, updated_at = ? WHERE id = 1", uid, time.Now())
	return err
}

// SQLiteSettingsRepo implements SettingsRepository.
type SQLiteSettingsRepo struct {
	db *sql.DB
}

func (r *SQLiteSettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (r *SQLiteSettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

func (r *SQLiteSettingsRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}

// SQLiteStateRepo implements StateRepository.
type SQLiteStateRepo struct {
	db *sql.DB
}

func (r *SQLiteStateRepo) GetState(ctx context.Context) (state.State, error) {
	var s string
	err := r.db.QueryRowContext(ctx, "SELECT state FROM client_state WHERE id = 1").Scan(&s)
	if err != nil {
		return "", err
	}
	return state.State(s), nil
}

func (r *SQLiteStateRepo) SaveState(ctx context.Context, s state.State) error {
	_, err := r.db.ExecContext(ctx, "UPDATE client_state SET state = ?, updated_at = ? WHERE id = 1", string(s), time.Now())
	return err
}

func (r *SQLiteStateRepo) LogTransition(ctx context.Context, t *Transition) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO transitions (session_id, from_state, to_state, trigger, transport_state, history_uid, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.SessionID, string(t.FromState), string(t.ToState), t.Trigger, t.TransportState, t.HistoryUID, ts)
	if err != nil {
		return err
	}
	t.ID, err = result.LastInsertId()
	return err
}

func (r *SQLiteStateRepo) GetTransitionHistory(ctx context.Context, limit int) ([]Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, from_state, to_state, trigger, transport_state, history_uid, timestamp
		FROM transitions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		err := rows.Scan(&t.ID, &t.SessionID, &from, &to, &t.Trigger, &t.TransportState, &t.HistoryUID, &t.Timestamp)
		if err != nil {
			return nil, err
		}
		t.FromState = state.State(from)
		t.ToState = state.State(to)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}
