// Package proxy provides a thin forwarding handle that lazily resolves an
// underlying object, either one fixed shared object or one object per
// logical execution context borrowed from a pool. Callers forward work
// through typed closures, so the proxy is used exactly like the wrapped
// object without reflection.
package proxy

import (
	"context"
	"errors"
	"sync"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

// Scope is the sharing granularity of the underlying object.
type Scope int

const (
	// ScopeShared forwards every caller to one fixed object, which must be
	// safe for concurrent use.
	ScopeShared Scope = iota + 1
	// ScopeContext binds at most one pooled object per logical execution
	// context, identified by a caller-supplied key.
	ScopeContext
)

var (
	// ErrUnbound is returned when neither an object nor a pool is bound.
	ErrUnbound = errors.New("proxy: no object or pool bound")
	// ErrAlreadyBound is returned on any attempt to rebind after first use.
	ErrAlreadyBound = errors.New("proxy: cannot rebind after first use")
)

// Proxy forwards operations to a scope-resolved underlying object.
type Proxy[T any] struct {
	mu     sync.Mutex
	scope  Scope
	bound  bool
	used   bool
	shared T
	pool   *pool.Pool[T]
	// slots holds at most one currently-bound object per context key
	slots map[string]*pool.Object[T]
}

// New returns an unbound proxy; Bind or BindPool must be called before use.
func New[T any]() *Proxy[T] {
	return &Proxy[T]{slots: make(map[string]*pool.Object[T])}
}

// NewShared returns a proxy forwarding every caller to obj.
func NewShared[T any](obj T) *Proxy[T] {
	p := New[T]()
	_ = p.Bind(obj)
	return p
}

// NewPooled returns a proxy that borrows one object per context key from pl.
func NewPooled[T any](pl *pool.Pool[T]) *Proxy[T] {
	p := New[T]()
	_ = p.BindPool(pl)
	return p
}

// Bind fixes a single shared object. Rebinding after first use fails.
func (p *Proxy[T]) Bind(obj T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used {
		return ErrAlreadyBound
	}
	p.scope = ScopeShared
	p.bound = true
	p.shared = obj
	p.pool = nil
	return nil
}

// BindPool sets the pool supplying per-context objects. Rebinding after
// first use fails.
func (p *Proxy[T]) BindPool(pl *pool.Pool[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used {
		return ErrAlreadyBound
	}
	p.scope = ScopeContext
	p.bound = true
	p.pool = pl
	return nil
}

// Scope reports the sharing granularity the proxy resolved to.
func (p *Proxy[T]) Scope() Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scope
}

// Get resolves the bound object for the given context key, acquiring one
// from the pool on the key's first use. The object stays bound to the key
// until Release, so several operations within one logical unit of work reuse
// the same borrow. Timeout and creation failures propagate from the pool.
func (p *Proxy[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	p.mu.Lock()
	if !p.bound {
		p.mu.Unlock()
		return zero, ErrUnbound
	}
	p.used = true
	if p.scope == ScopeShared {
		obj := p.shared
		p.mu.Unlock()
		return obj, nil
	}
	if o, ok := p.slots[key]; ok {
		p.mu.Unlock()
		return o.Value(), nil
	}
	pl := p.pool
	p.mu.Unlock()

	// acquire outside the proxy lock, the pool may block
	o, err := pl.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	if existing, ok := p.slots[key]; ok {
		// lost the race for this key, keep the binding that won
		p.mu.Unlock()
		pl.Release(o)
		return existing.Value(), nil
	}
	p.slots[key] = o
	p.mu.Unlock()
	return o.Value(), nil
}

// Do forwards one operation to the object bound to key.
func (p *Proxy[T]) Do(ctx context.Context, key string, fn func(T) error) error {
	v, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	return fn(v)
}

// Release returns the object bound to key to the pool and clears the slot.
// A no-op for unbound keys and for the shared scope.
func (p *Proxy[T]) Release(key string) {
	p.mu.Lock()
	o, ok := p.slots[key]
	if ok {
		delete(p.slots, key)
	}
	pl := p.pool
	p.mu.Unlock()
	if ok && pl != nil {
		pl.Release(o)
	}
}

// With runs fn against the object resolved for key and guarantees the key's
// binding is released on exit, regardless of success or failure.
func (p *Proxy[T]) With(ctx context.Context, key string, fn func(T) error) error {
	v, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	defer p.Release(key)
	return fn(v)
}

// HasObject reports whether key currently has a bound object.
func (p *Proxy[T]) HasObject(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scope == ScopeShared {
		return p.bound
	}
	_, ok := p.slots[key]
	return ok
}
