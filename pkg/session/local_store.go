package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Local keys. The token and the profile are always written and cleared together.
const (
	localTokenKey = "token"
	localUserKey  = "user"
)

// LocalStore persists one session on disk as two key/value rows, for the operator CLI.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (or creates) the SQLite file at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return &LocalStore{db: db}, nil
}

func (l *LocalStore) Close() error {
	return l.db.Close()
}

// Put replaces the stored session.
func (l *LocalStore) Put(ctx context.Context, s Session) error {
	if !s.Authenticated() {
		return ErrNoSession
	}
	profile, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const upsert = `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, localTokenKey, s.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, localUserKey, string(profile)); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return tx.Commit()
}

// Get returns the stored session or ErrNoSession.
func (l *LocalStore) Get(ctx context.Context) (Session, error) {
	var token, profile string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, localTokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read token: %w", err)
	}
	err = l.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, localUserKey).Scan(&profile)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read profile: %w", err)
	}
	s := Session{Token: token}
	if err := json.Unmarshal([]byte(profile), &s.User); err != nil {
		return Session{}, fmt.Errorf("decode profile: %w", err)
	}
	return s, nil
}

// Clear removes both the token and the profile.
func (l *LocalStore) Clear(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?)`, localTokenKey, localUserKey)
	return err
}
