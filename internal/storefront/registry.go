package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry maps session ids to views. It holds at most a fixed number of
// views; the least recently used one is closed and dropped when full.
type Registry struct {
	newView func() *View
	logger  *slog.Logger

	mu      sync.Mutex // serializes get-or-create
	views   *lru.Cache[string, *View]
	loading map[string]chan struct{} // closed when the view's first load ends
}

// NewRegistry creates a registry whose views are built by newView.
func NewRegistry(size int, newView func() *View, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{newView: newView, logger: logger, loading: map[string]chan struct{}{}}

	views, err := lru.NewWithEvict(size, func(id string, v *View) {
		v.Close()
		r.logger.Debug("storefront view closed", slog.String("session_id", id))
	})
	if err != nil {
		return nil, fmt.Errorf("creating view registry: %w", err)
	}
	r.views = views
	return r, nil
}

// Get returns the view for sessionID, creating it on first use. A new view
// loads the catalog before it is returned, and concurrent callers for the same
// session wait for that load (or for ctx to end). A failed load is recorded in
// the view's Snapshot().Err and does not prevent its creation.
func (r *Registry) Get(ctx context.Context, sessionID string) *View {
	r.mu.Lock()
	if v, ok := r.views.Get(sessionID); ok {
		ready := r.loading[sessionID]
		r.mu.Unlock()
		if ready != nil {
			select {
			case <-ready:
			case <-ctx.Done():
			}
		}
		return v
	}
	v := r.newView()
	ready := make(chan struct{})
	r.loading[sessionID] = ready
	r.views.Add(sessionID, v)
	r.mu.Unlock()

	r.logger.Debug("storefront view created", slog.String("session_id", sessionID))

	// The view outlives the request that created it.
	if err := v.Load(context.WithoutCancel(ctx)); err != nil {
		r.logger.Debug("initial catalog load failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}

	r.mu.Lock()
	if r.loading[sessionID] == ready {
		delete(r.loading, sessionID)
	}
	r.mu.Unlock()
	close(ready)
	return v
}

// Peek returns the view for sessionID without creating one.
func (r *Registry) Peek(sessionID string) (*View, bool) {
	return r.views.Peek(sessionID)
}

// Remove closes and drops the view for sessionID.
func (r *Registry) Remove(sessionID string) bool {
	return r.views.Remove(sessionID)
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	return r.views.Len()
}

// Close closes every view.
func (r *Registry) Close() {
	r.views.Purge()
}
