// Package media issues short-lived handles for stored blobs so a display
// surface can reference binary content by URL without copying it around.
package media

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/store"
)

// HandlePrefix starts every handle issued by a Registry.
const HandlePrefix = "blob:"

// Handle is a transient reference to an opened blob.
type Handle string

// ID returns the handle without its prefix, suitable for a URL path segment.
func (h Handle) ID() string {
	return strings.TrimPrefix(string(h), HandlePrefix)
}

// ParseHandle accepts either a full handle or its bare ID.
func ParseHandle(s string) Handle {
	if strings.HasPrefix(s, HandlePrefix) {
		return Handle(s)
	}
	return Handle(HandlePrefix + s)
}

// BlobGetter is the read side of the blob store.
type BlobGetter interface {
	Get(ctx context.Context, key string) (*store.Blob, bool, error)
}

// Registry holds opened blobs in memory until their handle is revoked.
type Registry struct {
	blobs BlobGetter
	log   *zap.SugaredLogger

	mu   sync.Mutex
	open map[Handle]*store.Blob
}

// NewRegistry returns a registry reading from blobs.
func NewRegistry(blobs BlobGetter) *Registry {
	return &Registry{
		blobs: blobs,
		log:   logger.Named("media"),
		open:  make(map[Handle]*store.Blob),
	}
}

// Open loads the blob at key and issues a new handle for it. ok is false
// when no blob is stored under key.
func (r *Registry) Open(ctx context.Context, key string) (Handle, bool, error) {
	blob, ok, err := r.blobs.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}

	h := Handle(HandlePrefix + uuid.NewString())
	r.mu.Lock()
	r.open[h] = blob
	r.mu.Unlock()

	r.log.Debugw("Opened handle", logger.FieldKey, key, logger.FieldHandle, h)
	return h, true, nil
}

// Resolve returns the blob behind h, if h is still live.
func (r *Registry) Resolve(h Handle) (*store.Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.open[h]
	return b, ok
}

// Revoke releases h. Revoking an unknown or empty handle is a no-op.
func (r *Registry) Revoke(h Handle) {
	if h == "" {
		return
	}
	r.mu.Lock()
	_, ok := r.open[h]
	delete(r.open, h)
	r.mu.Unlock()
	if ok {
		r.log.Debugw("Revoked handle", logger.FieldHandle, h)
	}
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
