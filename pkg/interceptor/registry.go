package interceptor

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps enhanced methods to their interceptor chains.
//
// Chains are assembled with Register while a method is being enhanced and
// published with Seal. A sealed chain is immutable: ChainFor reads it from a
// copy-on-write map without taking any lock, so every concurrent call of an
// enhanced method can look up its chain in O(1).
//
// Register and Seal are enhancement-time operations. They are safe to call
// concurrently with each other but must happen before the first call of the
// method they affect.
type Registry struct {
	// mu serializes writers (Register, Seal)
	mu sync.Mutex

	// pending holds chains that are still being assembled
	pending map[MethodKey][]Interceptor

	// sealed is the published, read-only view
	sealed atomic.Pointer[map[MethodKey][]Interceptor]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		pending: make(map[MethodKey][]Interceptor),
	}
	empty := make(map[MethodKey][]Interceptor)
	r.sealed.Store(&empty)
	return r
}

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Register appends ic to the chain of key. Interceptors run their Before in
// the order they were registered.
//
// Returns ErrChainSealed if the chain of key was already published.
func (r *Registry) Register(key MethodKey, ic Interceptor) error {
	if ic == nil {
		return &RegistryError{Method: key, Err: ErrNilInterceptor}
	}
	if err := key.Validate(); err != nil {
		return &RegistryError{Method: key, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := (*r.sealed.Load())[key]; ok {
		return &RegistryError{Method: key, Err: ErrChainSealed}
	}
	r.pending[key] = append(r.pending[key], ic)
	return nil
}

// Declare records key as enhanced even if no interceptor is registered for
// it, so that an empty chain can be sealed and looked up.
func (r *Registry) Declare(key MethodKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := (*r.sealed.Load())[key]; ok {
		return
	}
	if _, ok := r.pending[key]; !ok {
		r.pending[key] = nil
	}
}

// Seal publishes the chain of key. Further Register calls for key fail.
// Sealing an unknown key publishes an empty chain. Sealing twice is a no-op.
func (r *Registry) Seal(key MethodKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealLocked([]MethodKey{key})
}

// SealAll publishes every pending chain.
func (r *Registry) SealAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]MethodKey, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	r.sealLocked(keys)
}

// sealLocked copies the current published map, adds keys and swaps it in.
// Caller must hold mu.
func (r *Registry) sealLocked(keys []MethodKey) {
	current := *r.sealed.Load()
	next := make(map[MethodKey][]Interceptor, len(current)+len(keys))
	for k, v := range current {
		next[k] = v
	}

	for _, key := range keys {
		if _, ok := current[key]; ok {
			continue
		}
		pending := r.pending[key]
		chain := make([]Interceptor, len(pending))
		copy(chain, pending)
		next[key] = chain
		delete(r.pending, key)
	}

	r.sealed.Store(&next)
}

// ChainFor returns the sealed chain of key. The returned slice must not be
// modified.
//
// An unknown key returns a *RegistryError wrapping ErrUnknownMethod: the
// method was enhanced without its chain being sealed, which is a wiring bug.
func (r *Registry) ChainFor(key MethodKey) ([]Interceptor, error) {
	chain, ok := (*r.sealed.Load())[key]
	if !ok {
		return nil, &RegistryError{Method: key, Err: ErrUnknownMethod}
	}
	return chain, nil
}

// MustChainFor is like ChainFor but panics on an unknown key.
// Use it only during initialization.
func (r *Registry) MustChainFor(key MethodKey) []Interceptor {
	chain, err := r.ChainFor(key)
	if err != nil {
		panic(err)
	}
	return chain
}

// IsSealed reports whether key has a published chain.
func (r *Registry) IsSealed(key MethodKey) bool {
	_, ok := (*r.sealed.Load())[key]
	return ok
}

// Keys returns the sealed method keys sorted by their string form.
func (r *Registry) Keys() []MethodKey {
	sealed := *r.sealed.Load()
	keys := make([]MethodKey, 0, len(sealed))
	for k := range sealed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Len returns the number of sealed chains.
func (r *Registry) Len() int {
	return len(*r.sealed.Load())
}
