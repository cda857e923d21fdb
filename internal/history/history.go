// Package history keeps the collection of generated kits, newest first.
package history

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Key is the scalar-store key holding the collection.
const Key = "marketing_history"

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("history item not found")

// Values is the scalar store the collection persists through.
type Values interface {
	Get(key string, dst any) bool
	Set(key string, value any)
}

// BlobDeleter removes media referenced by deleted items.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// BlobLister enumerates stored media.
type BlobLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Language types.Locale
	Search   string // case-insensitive, matched against title and prompt
}

// Collection is the in-memory history, persisted on every change.
type Collection struct {
	kv    Values
	blobs BlobDeleter
	log   *zap.SugaredLogger

	mu    sync.RWMutex
	items []types.HistoryItem
}

// New loads the collection from kv.
func New(kv Values, blobs BlobDeleter) *Collection {
	c := &Collection{kv: kv, blobs: blobs, log: logger.Named("history")}
	var items []types.HistoryItem
	if kv.Get(Key, &items) {
		c.items = items
	}
	return c
}

// Update replaces the collection with fn's result. fn receives a copy, so
// it may reorder or filter freely. The swap and the write happen under one
// lock; concurrent updates are applied one after another.
func (c *Collection) Update(fn func([]types.HistoryItem) []types.HistoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.snapshot())
	c.items = next
	if next == nil {
		next = []types.HistoryItem{}
	}
	c.kv.Set(Key, next)
}

// Append puts item at the front of the collection.
func (c *Collection) Append(item types.HistoryItem) {
	c.Update(func(items []types.HistoryItem) []types.HistoryItem {
		return append([]types.HistoryItem{item}, items...)
	})
	c.log.Infow("Added history item",
		logger.FieldItemID, item.ID,
		logger.FieldLocale, item.Language,
		logger.FieldClass, item.Type,
	)
}

// Get returns the item with id.
func (c *Collection) Get(id string) (types.HistoryItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if it.ID == id {
			return it, nil
		}
	}
	return types.HistoryItem{}, errors.Wrapf(ErrNotFound, "id %s", id)
}

// List returns the items matching f, newest first.
func (c *Collection) List(f Filter) []types.HistoryItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]types.HistoryItem, 0, len(c.items))
	for _, it := range c.items {
		if f.Language != "" && it.Language != f.Language {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Title()), q) &&
			!strings.Contains(strings.ToLower(it.Prompt), q) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Len reports the number of items.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// MarkDownloaded flags the item with id as downloaded.
func (c *Collection) MarkDownloaded(id string) error {
	found := false
	c.Update(func(items []types.HistoryItem) []types.HistoryItem {
		for i := range items {
			if items[i].ID == id {
				items[i].IsDownloaded = true
				found = true
			}
		}
		return items
	})
	if !found {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

// Delete removes the item with id along with its stored media. Blob
// deletion failures are logged; the item is removed regardless.
func (c *Collection) Delete(ctx context.Context, id string) error {
	item, err := c.Get(id)
	if err != nil {
		return err
	}

	for _, key := range item.BlobKeys() {
		if err := c.blobs.Delete(ctx, key); err != nil {
			c.log.Warnw("Failed to delete media", logger.FieldItemID, id, logger.FieldKey, key, logger.FieldError, err)
		}
	}

	c.Update(func(items []types.HistoryItem) []types.HistoryItem {
		out := items[:0]
		for _, it := range items {
			if it.ID != id {
				out = append(out, it)
			}
		}
		return out
	})
	c.log.Infow("Deleted history item", logger.FieldItemID, id)
	return nil
}

// SweepOrphans deletes stored media that no item references, such as
// blobs left behind by a failed cascade delete. It must not run while a
// job is committing, since a job writes its blobs before its item.
func (c *Collection) SweepOrphans(ctx context.Context, blobs BlobLister) (int, error) {
	keys, err := blobs.Keys(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	referenced := make(map[string]bool)
	for _, it := range c.items {
		for _, k := range it.BlobKeys() {
			referenced[k] = true
		}
	}
	c.mu.RUnlock()

	n := 0
	for _, k := range keys {
		if referenced[k] {
			continue
		}
		if err := c.blobs.Delete(ctx, k); err != nil {
			c.log.Warnw("Failed to delete orphaned media", logger.FieldKey, k, logger.FieldError, err)
			continue
		}
		n++
	}
	if n > 0 {
		c.log.Infow("Swept orphaned media", logger.FieldCount, n)
	}
	return n, nil
}

func (c *Collection) snapshot() []types.HistoryItem {
	if c.items == nil {
		return nil
	}
	out := make([]types.HistoryItem, len(c.items))
	copy(out, c.items)
	return out
}
