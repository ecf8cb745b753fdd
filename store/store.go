// Package store keeps parked generator snapshots in a SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist
var ErrSnapshotNotFound = errors.New("snapshot not found")

var log = commonlog.GetLogger("genvm.store")

// Record describes a stored snapshot without its payload.
type Record struct {
	ID          string
	ProgramHash string
	CreatedAt   time.Time
	Size        int
}

// Store handles SQLite storage for snapshots
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		program_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores data under id, replacing any earlier snapshot with that id.
func (s *Store) Save(id, programHash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (id, program_hash, created_at, data) VALUES (?, ?, ?, ?)",
		id, programHash, time.Now().UnixNano(), data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", id, err)
	}
	log.Debugf("saved %s (%d bytes)", id, len(data))
	return nil
}

// Load returns the payload and program hash stored under id.
func (s *Store) Load(id string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	var hash string
	err := s.db.QueryRow("SELECT data, program_hash FROM snapshots WHERE id = ?", id).Scan(&data, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return nil, "", fmt.Errorf("querying snapshot %s: %w", id, err)
	}
	return data, hash, nil
}

// List returns every stored snapshot, oldest first.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT id, program_hash, created_at, length(data) FROM snapshots ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.ProgramHash, &created, &r.Size); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the snapshot stored under id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return nil
}
