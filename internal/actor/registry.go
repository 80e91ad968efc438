package actor

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	engramerrors "github.com/ccengram/ccengram/internal/errors"
)

// maxActors bounds concurrently open projects; the least recently used
// actor closes when the cap is hit.
const maxActors = 8

// Registry spawns and routes to per-project actors. The first request
// for a path spawns its actor; idle actors close via LRU eviction.
type Registry struct {
	mu     sync.Mutex
	actors *lru.Cache[string, *Actor]
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates the registry.
func NewRegistry(parent context.Context) *Registry {
	ctx, cancel := context.WithCancel(parent)

	actors, err := lru.NewWithEvict[string, *Actor](maxActors, func(root string, a *Actor) {
		slog.Info("closing idle project actor", "root", root)
		a.Close()
	})
	if err != nil {
		panic(err)
	}

	return &Registry{actors: actors, ctx: ctx, cancel: cancel}
}

// GetOrSpawn returns the actor for a project root, spawning on first use.
func (r *Registry) GetOrSpawn(root string) (*Actor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, engramerrors.InvalidInput("invalid project path: " + root)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors.Get(abs); ok {
		return a, nil
	}

	a, err := Spawn(r.ctx, abs)
	if err != nil {
		return nil, err
	}
	r.actors.Add(abs, a)
	return a, nil
}

// Get returns the actor for a root without spawning.
func (r *Registry) Get(root string) (*Actor, bool) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actors.Get(abs)
}

// Close frees a project's actor explicitly.
func (r *Registry) Close(root string) bool {
	abs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actors.Remove(abs)
}

// Dispatch routes a request to the actor for root.
func (r *Registry) Dispatch(ctx context.Context, root, method string, params json.RawMessage) (any, error) {
	a, err := r.GetOrSpawn(root)
	if err != nil {
		return nil, err
	}
	return a.Dispatch(ctx, method, params)
}

// Shutdown cancels all actors and waits for them to close.
func (r *Registry) Shutdown() {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors.Purge() // evict callbacks close each actor
}
