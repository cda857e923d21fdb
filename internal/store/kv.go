package store

import (
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/logger"
)

// KV is a durable key to JSON-value store for small state: settings,
// cadences, the run ledger, the history collection.
//
// Writes never fail from the caller's point of view. The value is kept in
// memory first and then persisted; a persistence failure is logged and the
// in-memory value keeps serving reads for the life of the process.
type KV struct {
	db  *sql.DB
	log *zap.SugaredLogger

	mu  sync.RWMutex
	mem map[string][]byte // nil value marks a deleted key
}

func newKV(db *sql.DB, log *zap.SugaredLogger) *KV {
	return &KV{db: db, log: log, mem: make(map[string][]byte)}
}

// Get decodes the value stored under key into dst. It returns false, and
// leaves dst untouched, when the key is absent or cannot be decoded.
func (kv *KV) Get(key string, dst any) bool {
	raw, ok := kv.raw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		kv.log.Warnw("Discarding undecodable value", logger.FieldKey, key, logger.FieldError, err)
		return false
	}
	return true
}

// Load returns the value under key, or def when absent.
func Load[T any](kv *KV, key string, def T) T {
	var v T
	if kv.Get(key, &v) {
		return v
	}
	return def
}

// Set stores value under key.
func (kv *KV) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		kv.log.Errorw("Cannot encode value", logger.FieldKey, key, logger.FieldError, err)
		return
	}

	kv.mu.Lock()
	kv.mem[key] = data
	kv.mu.Unlock()

	_, err = kv.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(data))
	if err != nil {
		kv.log.Errorw("Failed to persist value, keeping in memory", logger.FieldKey, key, logger.FieldError, err)
	}
}

// Delete removes key.
func (kv *KV) Delete(key string) {
	kv.mu.Lock()
	kv.mem[key] = nil
	kv.mu.Unlock()

	if _, err := kv.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		kv.log.Errorw("Failed to delete persisted value", logger.FieldKey, key, logger.FieldError, err)
	}
}

func (kv *KV) raw(key string) ([]byte, bool) {
	kv.mu.RLock()
	v, cached := kv.mem[key]
	kv.mu.RUnlock()
	if cached {
		return v, v != nil
	}

	var s string
	err := kv.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		kv.log.Warnw("Failed to read value", logger.FieldKey, key, logger.FieldError, err)
		return nil, false
	}

	data := []byte(s)
	kv.mu.Lock()
	if _, ok := kv.mem[key]; !ok {
		kv.mem[key] = data
	}
	kv.mu.Unlock()
	return data, true
}
