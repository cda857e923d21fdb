package media

import (
	"context"
	"sync"
)

// View holds at most one live handle for a displaying component. Showing
// a new blob always releases the previous handle.
type View struct {
	reg *Registry

	mu      sync.Mutex
	current Handle
}

// NewView returns an empty view over reg.
func (r *Registry) NewView() *View {
	return &View{reg: r}
}

// Show opens key and makes it the view's current handle. The previous
// handle is revoked right after the new one is installed, including when
// key has no blob (the view then shows nothing).
func (v *View) Show(ctx context.Context, key string) (Handle, bool, error) {
	h, ok, err := v.reg.Open(ctx, key)
	if err != nil {
		return "", false, err
	}

	v.mu.Lock()
	prev := v.current
	v.current = h
	v.mu.Unlock()

	v.reg.Revoke(prev)
	return h, ok, nil
}

// Current returns the live handle, or "" when nothing is shown.
func (v *View) Current() Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Clear revokes the current handle.
func (v *View) Clear() {
	v.mu.Lock()
	prev := v.current
	v.current = ""
	v.mu.Unlock()

	v.reg.Revoke(prev)
}
