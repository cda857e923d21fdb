package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/prayerkit/internal/logger"
)

// Store owns the sqlite database backing the scalar and blob stores.
type Store struct {
	db  *sql.DB
	kv  *KV
	log *zap.SugaredLogger
}

// New opens (creating if needed) the SQLite database at dbPath
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	s := &Store{db: db, log: logger.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	s.kv = newKV(db, s.log)

	s.log.Debugw("Database opened", logger.FieldPath, dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// KV returns the scalar store. All callers share one instance so the
// in-memory fallback is consistent.
func (s *Store) KV() *KV {
	return s.kv
}

// Blobs returns the blob store view of the database.
func (s *Store) Blobs() *Blobs {
	return &Blobs{db: s.db}
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		mime_type TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
