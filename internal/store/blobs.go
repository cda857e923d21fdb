package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// Blob is binary media (audio, image, video) with its content type.
type Blob struct {
	Data      []byte
	MIMEType  string
	CreatedAt time.Time
}

// Blobs is a key to binary store. A missing key is a normal result, never
// an error.
type Blobs struct {
	db *sql.DB
}

// Get returns the blob under key. ok is false when the key is absent.
func (b *Blobs) Get(ctx context.Context, key string) (*Blob, bool, error) {
	var (
		blob    Blob
		created int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT data, mime_type, created_at FROM blobs WHERE key = ?`, key,
	).Scan(&blob.Data, &blob.MIMEType, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get blob %s", key)
	}
	blob.CreatedAt = time.UnixMilli(created)
	return &blob, true, nil
}

// Set stores blob under key, replacing any previous content.
func (b *Blobs) Set(ctx context.Context, key string, blob Blob) error {
	created := blob.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO blobs (key, mime_type, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			mime_type = excluded.mime_type,
			data = excluded.data,
			created_at = excluded.created_at
	`, key, blob.MIMEType, blob.Data, created.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "set blob %s", key)
	}
	return nil
}

// Delete removes the blob under key. Deleting a missing key succeeds.
func (b *Blobs) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "delete blob %s", key)
	}
	return nil
}

// Keys lists stored blob keys in key order.
func (b *Blobs) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key FROM blobs ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "list blobs")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
