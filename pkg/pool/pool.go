// Package pool implements a generic concurrent resource pool for expensive,
// slow-to-create objects (network connections, browser sessions, rotating
// egress credentials) shared across concurrent callers. Objects are created
// on demand by a caller-supplied factory, tracked with per-object usage
// metadata, and recycled by a background housekeeping cycle.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/metric"
)

type objectState int

const (
	stateAvailable objectState = iota
	stateInUse
	stateCondemned
	stateDestroyed
)

// Object is the pool's handle around one created value. The pool never
// inspects the value; it only tracks metadata alongside it. An Object is
// exclusively owned by the pool while available or condemned; a caller holds
// a temporary, non-owning borrow between Acquire and Release.
type Object[T any] struct {
	value        T
	seq          int64
	uses         int64
	createdAt    time.Time
	lastAcquired time.Time
	lastReleased time.Time
	state        objectState
}

// Value returns the wrapped object. Only meaningful while the caller holds
// the borrow.
func (o *Object[T]) Value() T { return o.value }

// Seq returns the creation sequence number assigned by the pool instance.
func (o *Object[T]) Seq() int64 { return o.seq }

type counters struct {
	creating     int64
	created      int64
	uses         int64
	killed       int64
	recycled     int64
	wornOut      int64
	borrows      int64
	returns      int64
	destroyed    int64
	healthChecks int64
	badHealth    int64
	hkRounds     int64
	hkErrors     int64
	hcRounds     int64
	hcErrors     int64
}

// Pool is a thread-safe pool of objects created on demand.
type Pool[T any] struct {
	cfg   Config
	hooks Hooks[T]

	// sem gates the number of objects concurrently in use or being created.
	// Available objects hold no token. nil when unbounded.
	sem *semaphore.Weighted

	// mu serializes all set and counter mutations. Held only for
	// bookkeeping, never across a hook call or object creation.
	mu        sync.Mutex
	available map[*Object[T]]struct{}
	inUse     map[*Object[T]]struct{}
	condemned []*Object[T]
	minSize   int
	seq       int64
	// pending counts creations in flight, so the refill target can account
	// for objects that exist but are not yet in a set
	pending int
	ctr     counters
	down    bool
	hkLast  time.Time
	hkTotal time.Duration

	startedAt time.Time
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

// New builds a pool, performs the initial fill to MinSize (tolerating and
// logging individual creation failures) and starts the housekeeper when the
// recycling policy requires one.
func New[T any](cfg Config, hooks Hooks[T]) (*Pool[T], error) {
	if hooks.Create == nil {
		return nil, fmt.Errorf("%w: Create hook is required", ErrInvalidConfig)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	p := &Pool[T]{
		cfg:       cfg,
		hooks:     hooks,
		available: make(map[*Object[T]]struct{}),
		inUse:     make(map[*Object[T]]struct{}),
		minSize:   cfg.MinSize,
		startedAt: time.Now(),
	}
	if cfg.MaxSize > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.MaxSize))
	}
	p.interval = cfg.housekeepingInterval(hooks.IsHealthy != nil)

	// The pool tries to be resilient to transient factory failures, so the
	// initial fill only logs errors and the housekeeper retries later.
	p.fill()

	if p.interval > 0 {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.housekeeper()
	}
	return p, nil
}

// Acquire obtains an object, creating one when none is available. On bounded
// pools it first waits for a capacity token, up to the caller's context
// deadline or the configured AcquireTimeout, and fails with ErrTimeout. A
// timed-out Acquire never holds on to a token. Factory failures propagate as
// *CreateError.
func (p *Pool[T]) Acquire(ctx context.Context) (*Object[T], error) {
	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		return nil, ErrShuttingDown
	}
	p.mu.Unlock()

	start := time.Now()
	if p.sem != nil {
		waitCtx := ctx
		if p.cfg.AcquireTimeout > 0 {
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
				defer cancel()
			}
		}
		if err := p.sem.Acquire(waitCtx, 1); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			metric.Incr(metric.PoolAcquireTimeout, p.tags())
			return nil, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
	}

	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		p.releaseToken()
		return nil, ErrShuttingDown
	}

	// pop-any selection, no ordering guarantee
	var obj *Object[T]
	for o := range p.available {
		obj = o
		break
	}
	if obj != nil {
		delete(p.available, obj)
		obj.state = stateInUse
		obj.uses++
		obj.lastAcquired = time.Now()
		p.inUse[obj] = struct{}{}
		p.ctr.uses++
		p.mu.Unlock()
		p.runHook("on_acquire", p.hooks.OnAcquire, obj.value)
		p.observeAcquire(start)
		return obj, nil
	}

	seq := p.seq
	p.seq++
	p.ctr.creating++
	p.pending++
	p.mu.Unlock()

	// Creation happens outside the lock; the capacity token acquired above
	// already throttles concurrent creations.
	obj, err := p.createObject(ctx, seq)
	if err != nil {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		p.releaseToken()
		metric.Incr(metric.PoolObjectCreateFailed, p.tags())
		return nil, &CreateError{Seq: seq, Err: err}
	}

	p.mu.Lock()
	p.pending--
	if p.down {
		p.mu.Unlock()
		p.destroyObject(obj)
		p.releaseToken()
		return nil, ErrShuttingDown
	}
	p.ctr.created++
	obj.state = stateInUse
	obj.uses = 1
	obj.lastAcquired = time.Now()
	p.inUse[obj] = struct{}{}
	p.ctr.uses++
	p.mu.Unlock()

	p.runHook("on_acquire", p.hooks.OnAcquire, obj.value)
	p.observeAcquire(start)
	return obj, nil
}

// Release returns a borrowed object to the pool. Releasing an object that is
// not currently in use (double release, or a handle invalidated by the
// borrow-kill reclaim) is a no-op and does not disturb the capacity gate.
// Objects that reached MaxUse are retired instead of returned to available.
func (p *Pool[T]) Release(obj *Object[T]) {
	if obj == nil {
		return
	}
	p.runHook("on_release", p.hooks.OnRelease, obj.value)

	wornOut := false
	p.mu.Lock()
	if _, ok := p.inUse[obj]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, obj)
	if p.cfg.MaxUse > 0 && obj.uses >= p.cfg.MaxUse {
		obj.state = stateCondemned
		p.condemned = append(p.condemned, obj)
		p.ctr.wornOut++
		wornOut = true
	} else {
		obj.state = stateAvailable
		obj.lastReleased = time.Now()
		p.available[obj] = struct{}{}
	}
	p.mu.Unlock()

	p.releaseToken()
	if wornOut {
		metric.ObservePoolDestroy(p.cfg.Name, metric.TagValueReasonWornOut, 1)
	}
	p.drain()
	p.fill()
}

// With acquires an object, runs fn against it and releases it regardless of
// the outcome.
func (p *Pool[T]) With(ctx context.Context, fn func(T) error) error {
	obj, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(obj)
	return fn(obj.value)
}

// Shutdown stops the housekeeper, forces MinSize to zero and destroys every
// available and in-use object. Destroying in-use objects is a known-unsafe
// teardown action and is logged.
func (p *Pool[T]) Shutdown() {
	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		return
	}
	p.down = true
	p.minSize = 0
	p.mu.Unlock()

	if p.stop != nil {
		close(p.stop)
		<-p.done
	}

	p.mu.Lock()
	if n := len(p.inUse); n > 0 {
		log.Warn().Str("pool", p.cfg.Name).Msgf("destroying %d in-use objects at shutdown", n)
	}
	for o := range p.inUse {
		delete(p.inUse, o)
		o.state = stateCondemned
		p.condemned = append(p.condemned, o)
	}
	for o := range p.available {
		delete(p.available, o)
		o.state = stateCondemned
		p.condemned = append(p.condemned, o)
	}
	n := int64(len(p.condemned))
	p.mu.Unlock()

	metric.ObservePoolDestroy(p.cfg.Name, metric.TagValueReasonShutdown, n)
	p.drain()
}

func (p *Pool[T]) createObject(ctx context.Context, seq int64) (*Object[T], error) {
	v, err := p.hooks.Create(ctx, seq)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	obj := &Object[T]{
		value:        v,
		seq:          seq,
		createdAt:    now,
		lastAcquired: now,
		lastReleased: now,
	}
	p.runHook("on_create", p.hooks.OnCreate, v)
	metric.Incr(metric.PoolObjectCreated, p.tags())
	return obj, nil
}

func (p *Pool[T]) destroyObject(obj *Object[T]) {
	p.runHook("on_destroy", p.hooks.OnDestroy, obj.value)
	obj.state = stateDestroyed
}

// drain destroys everything condemned so far. The batch is detached under
// the lock; OnDestroy runs outside it.
func (p *Pool[T]) drain() {
	p.mu.Lock()
	if len(p.condemned) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.condemned
	p.condemned = nil
	p.ctr.destroyed += int64(len(batch))
	p.mu.Unlock()

	for _, o := range batch {
		p.destroyObject(o)
	}
}

// fill creates new available objects until MinSize available objects exist,
// tolerating and logging individual creation failures. On bounded pools the
// target is capped so live plus in-flight creations never exceed MaxSize:
// warm objects are only restored once borrowers give capacity back. Fill
// tokens are transient: they throttle concurrent creation but are returned
// as soon as the object lands in the available set.
func (p *Pool[T]) fill() {
	p.mu.Lock()
	limit := p.fillNeedLocked()
	p.mu.Unlock()

	for i := 0; i < limit; i++ {
		if p.sem != nil && !p.sem.TryAcquire(1) {
			return
		}
		p.mu.Lock()
		if p.down || p.fillNeedLocked() <= 0 {
			p.mu.Unlock()
			p.releaseToken()
			return
		}
		seq := p.seq
		p.seq++
		p.ctr.creating++
		p.pending++
		p.mu.Unlock()

		obj, err := p.createObject(context.Background(), seq)
		p.releaseToken()
		if err != nil {
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
			log.Error().Err(err).Str("pool", p.cfg.Name).Msg("new object failed")
			metric.Incr(metric.PoolObjectCreateFailed, p.tags())
			continue
		}
		p.mu.Lock()
		p.pending--
		p.ctr.created++
		obj.state = stateAvailable
		p.available[obj] = struct{}{}
		p.mu.Unlock()
	}
}

// fillNeedLocked reports how many objects fill may still create: enough to
// restore MinSize available objects, but never letting live plus in-flight
// objects exceed MaxSize. Caller holds mu.
func (p *Pool[T]) fillNeedLocked() int {
	need := p.minSize - len(p.available)
	if p.cfg.MaxSize > 0 {
		room := p.cfg.MaxSize - len(p.available) - len(p.inUse) - p.pending
		if room < need {
			need = room
		}
	}
	return need
}

func (p *Pool[T]) releaseToken() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// runHook invokes an optional hook, recovering and logging a panic so a
// misbehaving hook never aborts pool bookkeeping.
func (p *Pool[T]) runHook(name string, fn func(T), v T) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("pool", p.cfg.Name).Str("hook", name).Interface("panic", r).Msg("hook panicked")
		}
	}()
	fn(v)
}

func (p *Pool[T]) observeAcquire(start time.Time) {
	tags := p.tags()
	metric.Incr(metric.PoolAcquireCount, tags)
	metric.Timing(metric.PoolAcquireLatency, time.Since(start), tags)
}

func (p *Pool[T]) tags() []string {
	return metric.BuildTag(metric.NewTag(metric.TagPool, p.cfg.Name))
}
