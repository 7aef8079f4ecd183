package vectordb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
)

var ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

// Loader builds the index set of a jurisdiction from a backend.
type Loader interface {
	Jurisdictions(ctx context.Context) ([]string, error)
	// Load returns ErrUnknownJurisdiction (wrapped) when the backend has no
	// indexes for the jurisdiction.
	Load(ctx context.Context, jurisdiction string) (*Set, error)
}

// Registry caches loaded index sets per jurisdiction. Each set is loaded at
// most once until it is invalidated; readers never block each other once a
// set is cached.
type Registry struct {
	loader Loader

	mu   sync.RWMutex
	sets map[string]*Set
	// gen is bumped by every invalidation.
	gen uint64

	group singleflight.Group
}

func NewRegistry(loader Loader) *Registry {
	return &Registry{
		loader: loader,
		sets:   make(map[string]*Set),
	}
}

// Get returns the cached set for jurisdiction, loading it on first use.
func (r *Registry) Get(ctx context.Context, jurisdiction string) (*Set, error) {
	r.mu.RLock()
	s, ok := r.sets[jurisdiction]
	gen := r.gen
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	ch := r.group.DoChan(jurisdiction, func() (interface{}, error) {
		set, err := r.loader.Load(context.WithoutCancel(ctx), jurisdiction)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		// A set loaded across an invalidation is returned but not cached.
		if r.gen == gen {
			r.sets[jurisdiction] = set
		}
		r.mu.Unlock()
		logger.Infof("loaded %d indexes for jurisdiction %s: %v", set.Len(), jurisdiction, set.Names())
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load jurisdiction %s: %w", jurisdiction, res.Err)
		}
		return res.Val.(*Set), nil
	}
}

// Cached reports whether jurisdiction is currently loaded.
func (r *Registry) Cached(jurisdiction string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sets[jurisdiction]
	return ok
}

// Invalidate drops the cached set so the next Get reloads it.
func (r *Registry) Invalidate(jurisdiction string) {
	r.mu.Lock()
	delete(r.sets, jurisdiction)
	r.gen++
	r.mu.Unlock()
	r.group.Forget(jurisdiction)
	logger.Infof("invalidated indexes for jurisdiction %s", jurisdiction)
}

func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.sets))
	for j := range r.sets {
		names = append(names, j)
	}
	r.sets = make(map[string]*Set)
	r.gen++
	r.mu.Unlock()
	for _, j := range names {
		r.group.Forget(j)
	}
	logger.Infof("invalidated indexes for %d jurisdictions", len(names))
}

// Jurisdictions lists what the backend can serve, loaded or not.
func (r *Registry) Jurisdictions(ctx context.Context) ([]string, error) {
	js, err := r.loader.Jurisdictions(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(js)
	return js, nil
}

// Validate fails fast when jurisdiction is not served by the backend.
func (r *Registry) Validate(ctx context.Context, jurisdiction string) error {
	if r.Cached(jurisdiction) {
		return nil
	}
	js, err := r.Jurisdictions(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(js, jurisdiction) {
		return fmt.Errorf("%w %q (available: %v)", ErrUnknownJurisdiction, jurisdiction, js)
	}
	return nil
}
