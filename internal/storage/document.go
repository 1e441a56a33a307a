package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// DocumentStore persists one JSON document wholesale. Every mutation is
// "load whole document, mutate, write whole document"; the later writer
// wins. That matches the original deployment and is an accepted design
// choice at this scale, not a hidden bug.
type DocumentStore interface {
	// Load returns the raw document, or nil when none exists yet.
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileDocumentStore keeps the document in a flat JSON file. A flock
// guards against the verification website process writing the same
// file concurrently; the mutex guards in-process callers.
type FileDocumentStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileDocumentStore creates a file-backed store at path, creating
// the parent directory if needed.
func NewFileDocumentStore(path string) (*FileDocumentStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &FileDocumentStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (s *FileDocumentStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *FileDocumentStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	// Write to a temp file first, then rename, so readers never observe
	// a half-written document.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// SQLiteDocumentStore keeps the whole document as a single row blob.
// The medium changes but the read-modify-write-whole-document semantics
// do not; selecting this backend is a configuration choice.
type SQLiteDocumentStore struct {
	queue *DBQueue
	name  string
}

// InitDocumentSchema creates the documents table.
func InitDocumentSchema(queue *DBQueue) error {
	return queue.Execute(func(db *sql.DB) error {
		_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS documents (
				name TEXT PRIMARY KEY,
				body BLOB NOT NULL,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`)
		return err
	})
}

// NewSQLiteDocumentStore creates a store for the named document.
func NewSQLiteDocumentStore(queue *DBQueue, name string) *SQLiteDocumentStore {
	return &SQLiteDocumentStore{queue: queue, name: name}
}

func (s *SQLiteDocumentStore) Load() ([]byte, error) {
	var body []byte
	err := s.queue.Execute(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT body FROM documents WHERE name = ?`, s.name)
		return row.Scan(&body)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return body, nil
}

func (s *SQLiteDocumentStore) Save(data []byte) error {
	return s.queue.Execute(func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO documents (name, body, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO UPDATE SET
				body = excluded.body,
				updated_at = CURRENT_TIMESTAMP
		`, s.name, data)
		return err
	})
}
