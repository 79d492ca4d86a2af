package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTTL is how long an engine with no requests or streams is kept.
const DefaultIdleTTL = 15 * time.Minute

// EngineFactory builds the engine for one user. An empty userID means an
// anonymous session that only sees global notifications.
type EngineFactory func(userID string) *Engine

type registryEntry struct {
	engine   *Engine
	inUse    int
	lastUsed time.Time
}

// Registry keeps one initialized Engine per user, built on first use and
// closed once it has been idle for the configured TTL.
type Registry struct {
	factory EngineFactory
	logger  *zap.Logger
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	engines map[string]*registryEntry
}

type RegistryOption func(*Registry)

// WithIdleTTL sets how long an unused engine survives. Zero keeps the default.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

func withRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(factory EngineFactory, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factory: factory,
		logger:  logger,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		engines: make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns userID's engine, initializing it on first use.
func (r *Registry) Get(ctx context.Context, userID string) *Engine {
	e, release := r.Acquire(ctx, userID)
	release()
	return e
}

// Acquire returns userID's engine and keeps it from idle eviction until
// release is called. Streams hold it for their whole lifetime.
func (r *Registry) Acquire(ctx context.Context, userID string) (*Engine, func()) {
	r.mu.Lock()
	entry, ok := r.engines[userID]
	if !ok {
		entry = &registryEntry{engine: r.factory(userID)}
		r.engines[userID] = entry
		r.logger.Debug("engine created", zap.String("userId", userID), zap.Int("engines", len(r.engines)))
	}
	entry.inUse++
	entry.lastUsed = r.now()
	r.mu.Unlock()

	entry.engine.Initialize(ctx)

	var once sync.Once
	return entry.engine, func() {
		once.Do(func() {
			r.mu.Lock()
			entry.inUse--
			entry.lastUsed = r.now()
			r.mu.Unlock()
		})
	}
}

// Evict closes and forgets userID's engine.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	entry, ok := r.engines[userID]
	delete(r.engines, userID)
	r.mu.Unlock()
	if ok {
		entry.engine.Close()
	}
}

// EvictIdle closes engines not in use and untouched for the idle TTL. It
// returns the number evicted.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Engine
	for userID, entry := range r.engines {
		if entry.inUse == 0 && entry.lastUsed.Before(cutoff) {
			idle = append(idle, entry.engine)
			delete(r.engines, userID)
		}
	}
	remaining := len(r.engines)
	r.mu.Unlock()

	for _, e := range idle {
		e.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug("idle engines evicted", zap.Int("evicted", len(idle)), zap.Int("engines", remaining))
	}
	return len(idle)
}

// RunJanitor calls EvictIdle every interval until ctx ends.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close closes every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range engines {
		entry.engine.Close()
	}
}
