package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/service/saved"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

// BuildFunc creates the engine for a device seen for the first time.
type BuildFunc func(ctx context.Context, id identity.Identity) *Engine

// Registry hands out one Engine per device id. Engines idle for longer than
// the registry's ttl are dropped; their state lives on in the store. An
// engine with a search or comparison in flight never expires, so a late
// answer cannot overwrite turns written by its successor.
type Registry struct {
	// mu settles cache writes. It is never held while an engine is built.
	mu      sync.Mutex
	engines *cache.Cache
	build   BuildFunc
}

// NewRegistry returns a Registry that evicts engines after idle.
func NewRegistry(idle time.Duration, build BuildFunc) *Registry {
	return &Registry{
		engines: cache.New(idle, idle/2),
		build:   build,
	}
}

// Engine returns the device's engine, creating it on first use. Every call
// refreshes the idle timer and adopts the caller's language.
func (r *Registry) Engine(ctx context.Context, id identity.Identity) *Engine {
	if v, ok := r.engines.Get(id.DeviceID); ok {
		e := r.touch(id.DeviceID, v.(*Engine))
		e.SetLanguage(id.Language)
		return e
	}

	e := r.build(context.WithoutCancel(ctx), id)
	e.setActivityHook(func() { r.touch(id.DeviceID, e) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if err := r.engines.Add(id.DeviceID, e, cache.DefaultExpiration); err == nil {
			return e
		}
		if v, ok := r.engines.Get(id.DeviceID); ok {
			winner := v.(*Engine)
			winner.SetLanguage(id.Language)
			return winner
		}
	}
}

// touch restarts e's idle timer, or pins it while it is busy. A newer
// engine already registered for the device wins and is returned instead.
func (r *Registry) touch(deviceID string, e *Engine) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.engines.Get(deviceID); ok && v.(*Engine) != e {
		return v.(*Engine)
	}
	ttl := cache.DefaultExpiration
	if e.Busy() {
		ttl = cache.NoExpiration
	}
	r.engines.Set(deviceID, e, ttl)
	return e
}

// Len reports how many engines are live.
func (r *Registry) Len() int {
	return r.engines.ItemCount()
}

// DeviceEngines returns a BuildFunc that scopes store to each device and
// keeps saved items next to the session snapshots.
func DeviceEngines(store storage.Store, client Backend, logger *zap.Logger) BuildFunc {
	return func(ctx context.Context, id identity.Identity) *Engine {
		scoped := storage.Namespace(store, id.DeviceID)
		return NewEngine(ctx, Options{
			Identity: id,
			Store:    scoped,
			Backend:  client,
			Saved:    saved.New(scoped),
			Logger:   logger,
		})
	}
}
