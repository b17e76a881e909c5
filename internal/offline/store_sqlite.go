package offline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteStorage is the alternative backend for deployments that prefer a
// single inspectable database file over a leveldb directory.
type sqliteStorage struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_stores (
    name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
    store TEXT NOT NULL,
    key TEXT NOT NULL,
    status INTEGER NOT NULL,
    header TEXT NOT NULL,
    body BLOB NOT NULL,
    captured_at INTEGER NOT NULL,
    PRIMARY KEY (store, key)
);
`

func openSQLiteStorage(dir string) (*sqliteStorage, error) {
	dsn := filepath.Join(dir, "cache.db") + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap sqlite schema: %w", err)
	}
	return &sqliteStorage{db: db}, nil
}

func (s *sqliteStorage) Close() error { return s.db.Close() }

func (s *sqliteStorage) Store(name string) Store {
	_, _ = s.db.Exec(
		"INSERT OR IGNORE INTO cache_stores (name, created_at) VALUES (?, unixepoch())",
		name,
	)
	return &sqliteStore{db: s.db, name: name}
}

func (s *sqliteStorage) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM cache_stores ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan store name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return names, nil
}

func (s *sqliteStorage) Delete(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete store %s: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM cache_entries WHERE store = ?", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete store %s entries: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM cache_stores WHERE name = ?", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete store %s: %w", name, err)
	}
	return tx.Commit()
}

type sqliteStore struct {
	db   *sql.DB
	name string
}

func (s *sqliteStore) Get(key string) (CacheEntry, error) {
	row := s.db.QueryRow(
		"SELECT status, header, body, captured_at FROM cache_entries WHERE store = ? AND key = ?",
		s.name, key,
	)
	var (
		ent       CacheEntry
		headerRaw string
	)
	err := row.Scan(&ent.Status, &headerRaw, &ent.Body, &ent.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, fmt.Errorf("read entry: %w", err)
	}
	ent.Header = http.Header{}
	if err := json.Unmarshal([]byte(headerRaw), &ent.Header); err != nil {
		return CacheEntry{}, fmt.Errorf("decode entry header: %w", err)
	}
	return ent, nil
}

func (s *sqliteStore) Put(key string, ent CacheEntry) error {
	headerRaw, err := json.Marshal(ent.Header)
	if err != nil {
		return fmt.Errorf("encode entry header: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO cache_entries (store, key, status, header, body, captured_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (store, key) DO UPDATE SET
    status = excluded.status,
    header = excluded.header,
    body = excluded.body,
    captured_at = excluded.captured_at`,
		s.name, key, ent.Status, string(headerRaw), ent.Body, ent.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Info() (StoreInfo, error) {
	row := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0) FROM cache_entries WHERE store = ?",
		s.name,
	)
	info := StoreInfo{Name: s.name}
	if err := row.Scan(&info.Entries, &info.Bytes); err != nil {
		return StoreInfo{}, fmt.Errorf("inspect store %s: %w", s.name, err)
	}
	return info, nil
}
